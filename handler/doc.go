// Package handler provides type-safe HTTP handlers for JSON APIs.
//
// A HandlerFunc receives a request struct already filled by binders and
// returns a Response. Wrap adapts it to http.HandlerFunc:
//
//	type CancelRequest struct {
//		CompanyID string `path:"companyID"`
//		Immediate bool   `query:"immediate"`
//	}
//
//	func (h *Handler) cancel(ctx handler.Context, req CancelRequest) handler.Response {
//		if err := h.svc.CancelSubscription(ctx, req.CompanyID, req.Immediate); err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.Empty()
//	}
//
//	r.Delete("/companies/{companyID}/subscription", handler.Wrap(h.cancel,
//		handler.WithBinders[handler.Context, CancelRequest](binder.Path(chi.URLParam), binder.Query()),
//	))
//
// # Responses
//
// JSON wraps data in a {"data": ...} envelope; JSONError renders
// {"error": {"code", "message", "details"}} with a status derived from
// HTTPError or ValidationError in the error chain. Empty writes a bare
// status code.
//
// # Errors
//
// Binding and render failures go to the ErrorHandler. NewErrorHandler logs
// them with the request id and lets callers register ErrorMapper functions
// that translate domain errors into HTTP statuses. Server errors never leak
// their message to the client.
package handler
