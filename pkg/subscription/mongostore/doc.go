// Package mongostore implements the subscription repositories on MongoDB.
//
// Companies live in the "companies" collection with the subscription
// embedded; payments live in "payments". Call EnsureIndexes once at start
// up before serving traffic: payment idempotency depends on the unique
// index on external_payment_id.
package mongostore
