package handler

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/reviewhub/pkg/logger"
	"github.com/dmitrymomot/reviewhub/pkg/requestid"
)

// ErrorMapper translates a domain error into an HTTPError. It reports false
// for errors it does not recognise.
type ErrorMapper func(err error) (HTTPError, bool)

// NewErrorHandler returns an error handler that logs err and renders it as a
// JSON error body. Mappers are consulted in order before the built-in
// classification of HTTPError, ValidationError and binding errors.
func NewErrorHandler(log *slog.Logger, mappers ...ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		status := http.StatusInternalServerError
		detail := errorToDetail(err, &status)
		for _, m := range mappers {
			if httpErr, ok := m(err); ok {
				status = httpErr.Code
				detail = &ErrorDetail{Code: httpErr.Key, Message: publicMessage(httpErr.Code, err)}
				break
			}
		}

		r := ctx.Request()
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		if renderErr := JSONError(detail, WithJSONStatus(status)).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}
