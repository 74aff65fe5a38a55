package main

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

// Identity headers are set by the authenticating proxy in front of the
// service.
const (
	headerUserID    = "X-User-ID"
	headerUserName  = "X-User-Name"
	headerUserEmail = "X-User-Email"
)

var errUnauthenticated = errors.New("request carries no user identity")

func userFromHeaders(r *http.Request) (subscription.User, error) {
	id := r.Header.Get(headerUserID)
	if id == "" {
		return subscription.User{}, errUnauthenticated
	}
	return subscription.User{
		ID:    id,
		Name:  r.Header.Get(headerUserName),
		Email: r.Header.Get(headerUserEmail),
	}, nil
}
