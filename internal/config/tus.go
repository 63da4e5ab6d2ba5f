package config

import (
	"net/http"

	"resumable/internal/auth"
	"resumable/pkg/tus"
	"resumable/pkg/tus/uid"
)

// StoreConfig returns the protocol level store configuration.
func (c *Config) StoreConfig() tus.StoreConfig {
	cfg := tus.StoreConfig{
		Path:             c.Protocol.Path,
		RelativeLocation: c.Protocol.RelativeLocation,
		AbsoluteLocation: c.Protocol.PublicSite,
		AllowedOrigins:   c.Protocol.AllowedOrigins,
		IDGenerator:      uid.New,
	}

	if c.Protocol.IDGenerator == "uuid" {
		cfg.IDGenerator = uid.UUID
	}

	return cfg
}

// ServerOptions returns the dispatcher options. Routes are added by the
// caller.
func (c *Config) ServerOptions() []tus.ConfigOption {
	return []tus.ConfigOption{
		tus.WithBasePath(c.Protocol.BasePath),
		tus.WithMaxSize(c.Protocol.MaxSize),
		tus.WithMaxChunkSize(c.Protocol.MaxChunkSize),
		tus.WithForwardedHeaders(c.Protocol.ForwardedHeaders),
	}
}

// Enabled reports whether any credentials are configured.
func (c AuthConfig) Enabled() bool {
	return len(c.Users) > 0 || len(c.Tokens) > 0
}

// Middleware returns the authentication middleware for the configured
// credentials, or nil when authentication is disabled.
func (c AuthConfig) Middleware() func(http.Handler) http.Handler {
	if !c.Enabled() {
		return nil
	}

	return auth.Require(auth.Any(auth.NewBasicEngine(c.Users...), auth.NewTokenEngine(c.Tokens...)), c.Realm)
}
