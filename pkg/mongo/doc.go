// Package mongo opens MongoDB connections for reviewhub stores.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//	db, err := mongo.Open(ctx, cfg)
//
// Probe adapts a client to the httpserver readiness check signature.
package mongo
