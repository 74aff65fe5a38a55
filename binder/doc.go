// Package binder fills typed request structs from an HTTP request.
//
// Each binder reads one source and only the struct tags for that source:
//
//	type PaymentsRequest struct {
//		CompanyID string `path:"companyID"`
//		Skip      int    `query:"skip"`
//		Limit     int    `query:"limit"`
//	}
//
//	r.Get("/companies/{companyID}/payments", handler.Wrap(h.payments,
//		handler.WithBinders[handler.Context, PaymentsRequest](
//			binder.Path(chi.URLParam),
//			binder.Query(),
//		),
//	))
//
// JSON returns ErrBinderNotApplicable for body-less methods so that the same
// request type can be reused for reads and writes.
package binder
