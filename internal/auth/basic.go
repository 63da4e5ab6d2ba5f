package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// Credential is a user name and password accepted through HTTP Basic
// authentication.
type Credential struct {
	Name     string `mapstructure:"name" yaml:"name" validate:"required"`
	Password string `mapstructure:"password" yaml:"password" validate:"required"`
}

type BasicEngine struct {
	passwords map[string]string
}

// NewBasicEngine creates a BasicEngine accepting creds. A later credential
// replaces an earlier one of the same name.
func NewBasicEngine(creds ...Credential) *BasicEngine {
	e := &BasicEngine{passwords: make(map[string]string, len(creds))}
	for _, c := range creds {
		e.passwords[c.Name] = c.Password
	}
	return e
}

// Authenticate checks the Authorization header for valid Basic Auth
// credentials.
func (e *BasicEngine) Authenticate(_ context.Context, r *http.Request) (*User, error) {
	name, password, ok := r.BasicAuth()
	if !ok {
		return nil, nil
	}

	want, found := e.passwords[name]
	if !found {
		return nil, nil
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(want)) != 1 {
		return nil, nil
	}

	return &User{Name: name}, nil
}
