// Package subscription implements the subscription lifecycle of ReviewHub
// companies and keeps local billing state in line with the payment
// processor.
//
// The package has four entry points sharing the same repositories:
//
//   - Service starts trials, subscribes, cancels, resubscribes and manages
//     the default payment method. Processor calls are synchronous; the
//     final local state is written by the webhook Reconciler.
//   - Reconciler verifies processor webhooks and applies subscription
//     events to the company record.
//   - Ledger records payment attempts idempotently by processor payment id.
//   - Reminder emails companies whose trial ends soon, at most once each.
//
// Lifecycle mutations are serialized per company with a lock stored in the
// subscription itself (Subscription.InProgress). The lock is taken before
// the processor is called, released when the call fails, and otherwise
// cleared by the webhook that reports the result. A lock older than
// Config.LockTTL is considered abandoned and may be taken over.
//
// Errors are sentinel values classified with KindOf, which the HTTP layer
// maps to status codes.
//
// Storage is abstracted by CompanyRepository and PaymentRepository. The
// in-memory implementations here back tests and local development; see
// the mongostore and pgstore subpackages for durable ones.
package subscription
