// Package billing is the payment processor boundary of reviewhub.
//
// Gateway lists the processor capabilities the subscription lifecycle needs:
// customers, single-price subscriptions, scheduled and immediate
// cancellation, invoices, prices and default payment methods. StripeGateway
// implements it against one Stripe account; Provider pairs the live and the
// test account and picks one per company:
//
//	gw := provider.For(company.IsTest)
//	res, err := gw.CreateSubscription(ctx, billing.SubscriptionParams{...})
//
// Webhooks are verified with the live secret first and the test secret
// second, then decoded into a closed set of Event types
// (SubscriptionCreated, SubscriptionUpdated, SubscriptionDeleted,
// PaymentSucceeded, PaymentFailed, UnrecognizedEvent).
//
// Failed processor calls are returned as *GatewayError carrying the
// operation and environment.
package billing
