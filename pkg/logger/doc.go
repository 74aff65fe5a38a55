// Package logger builds *slog.Logger instances for reviewhub services.
//
// New applies a list of Option values, picks a text or JSON handler and wraps
// it with ContextHandler, which pulls request-scoped attributes out of
// context.Context on every record.
//
// Attribute helpers (CompanyID, SubscriptionID, CustomerID, PaymentID,
// EventType, Environment, Component, Duration, Error) keep key names
// consistent between the lifecycle service, the webhook reconciler and the
// reminder job. Helpers for optional identifiers return an empty slog.Attr
// when given an empty value, so callers do not need nil checks:
//
//	log.InfoContext(ctx, "subscription created",
//	    logger.CompanyID(company.ID),
//	    logger.SubscriptionID(sub.ExternalSubscriptionID),
//	)
//
// Environment defaults come from WithEnvironment (APP_ENV); LOG_LEVEL and
// LOG_FORMAT can override them through WithConfig.
package logger
