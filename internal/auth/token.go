package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

const BearerPrefix = "Bearer "

// Token is a static bearer token and the user it authenticates.
type Token struct {
	Name  string `mapstructure:"name" yaml:"name" validate:"required"`
	Token string `mapstructure:"token" yaml:"token" validate:"required,min=16"`
}

type TokenEngine struct {
	tokens []Token
}

func NewTokenEngine(tokens ...Token) *TokenEngine {
	return &TokenEngine{tokens: tokens}
}

// Authenticate checks the Authorization header for one of the configured
// bearer tokens.
func (e *TokenEngine) Authenticate(_ context.Context, r *http.Request) (*User, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, BearerPrefix) {
		return nil, nil
	}

	presented := []byte(strings.TrimSpace(header[len(BearerPrefix):]))
	if len(presented) == 0 {
		return nil, nil
	}

	var user *User
	for _, t := range e.tokens {
		if subtle.ConstantTimeCompare(presented, []byte(t.Token)) == 1 && user == nil {
			user = &User{Name: t.Name}
		}
	}

	return user, nil
}
