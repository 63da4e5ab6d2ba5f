// Package auth authenticates requests before they reach the upload server.
package auth

import (
	"context"
	"errors"
	"net/http"
)

type User struct {
	Name string
}

type Engine interface {

	// Authenticate inspects the given HTTP request for credentials this
	// engine accepts. If valid, it returns the authenticated User; otherwise
	// it returns nil. An error is returned only if the credentials could not
	// be checked at all.
	Authenticate(ctx context.Context, r *http.Request) (*User, error)
}

type compound struct {
	engines []Engine
}

// Any returns an Engine accepting a request as soon as one of engines does.
func Any(engines ...Engine) Engine {
	return &compound{engines: engines}
}

func (e *compound) Authenticate(ctx context.Context, r *http.Request) (*User, error) {
	var errs []error
	for _, engine := range e.engines {
		user, err := engine.Authenticate(ctx, r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if user != nil {
			return user, nil
		}
	}

	return nil, errors.Join(errs...)
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFrom returns the user stored in ctx by the Require middleware.
func UserFrom(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(contextKey{}).(*User)
	return user, ok && user != nil
}
