package tus

import (
	"context"
	"strings"
)

// RouteFunc answers a GET request on an application path.
type RouteFunc func(ctx context.Context, req *Request) *Response

type Config struct {
	// BasePath is the prefix under which the server is mounted. It is
	// prepended to the store path in URLs.
	BasePath string

	// MaxSize is the largest Upload-Length accepted. Zero means unlimited.
	MaxSize int64

	// MaxChunkSize bounds the body of a single PATCH or creation-with-upload
	// request. Zero means unlimited.
	MaxChunkSize int64

	// RespectForwardedHeaders makes Location URLs follow X-Forwarded-Host
	// and X-Forwarded-Proto.
	RespectForwardedHeaders bool

	// Routes maps exact request paths to GET callbacks which take
	// precedence over protocol downloads.
	Routes map[string]RouteFunc
}

type ConfigOption func(*Config)

func WithBasePath(basePath string) ConfigOption {
	return func(cfg *Config) {
		cfg.BasePath = strings.TrimSuffix(basePath, "/")
	}
}

func WithMaxSize(size int64) ConfigOption {
	return func(cfg *Config) {
		cfg.MaxSize = size
	}
}

func WithMaxChunkSize(size int64) ConfigOption {
	return func(cfg *Config) {
		cfg.MaxChunkSize = size
	}
}

func WithForwardedHeaders(enabled bool) ConfigOption {
	return func(cfg *Config) {
		cfg.RespectForwardedHeaders = enabled
	}
}

// WithRoute registers fn for GET requests on exactly path.
func WithRoute(path string, fn RouteFunc) ConfigOption {
	return func(cfg *Config) {
		if cfg.Routes == nil {
			cfg.Routes = make(map[string]RouteFunc)
		}
		cfg.Routes[path] = fn
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
