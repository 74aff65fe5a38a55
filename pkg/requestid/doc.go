// Package requestid tags every HTTP request with a correlation id.
//
// Middleware honours a valid X-Request-ID (or X-Correlation-ID) from the
// caller and otherwise generates a UUIDv7. The id is echoed in the response
// and stored in the request context, where FromContext reads it.
// LoggerExtractor plugs it into logger.New so that every *Context log call
// made while serving the request carries request_id.
package requestid
