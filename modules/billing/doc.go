// Package billing mounts the subscription lifecycle and the processor
// webhook on a chi router.
//
//	h := billing.NewHandler(service, reconciler, resolveUser,
//		billing.WithLogger(log),
//		billing.WithRateLimiter(limiter),
//	)
//	r.Mount("/billing", h.Handle())
//
// Company routes require a user from the injected UserResolver. Domain
// errors are mapped by MapError: validation 422, conflict 409, not found
// 404, processor failures 502, bad webhook signatures 400.
package billing
