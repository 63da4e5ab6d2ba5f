package tus

import (
	"context"
	"io"
	"log/slog"
)

// Handler implements the protocol semantics of one HTTP method.
type Handler interface {
	EventSource
	Send(ctx context.Context, req *Request) *Response
}

// baseHandler carries what every handler needs: the store, its resolved
// capabilities, the server configuration and an emitter of its own.
type baseHandler struct {
	Emitter
	store  DataStore
	caps   Capabilities
	config *Config
}

func (h *baseHandler) init(store DataStore, caps Capabilities, cfg *Config) {
	h.store = store
	h.caps = caps
	h.config = cfg
}

// fail logs err and renders it through the error taxonomy.
func (h *baseHandler) fail(ctx context.Context, method string, req *Request, err error) *Response {
	tusErr := AsError(err)

	level := slog.LevelDebug
	if tusErr.StatusCode >= 500 {
		level = slog.LevelError
	}

	slog.Log(ctx, level, "Request failed",
		"method", method,
		"path", req.Path,
		"id", req.FileID,
		"kind", tusErr.Kind.String(),
		"status", tusErr.StatusCode,
		"error", err,
	)

	return NewResponse(tusErr.StatusCode, tusErr.Body)
}

// body returns the request body bounded by the configured chunk size. A
// declared length beyond the bound fails with ErrSizeExceeded.
func (h *baseHandler) body(req *Request) (io.Reader, error) {
	if h.config.MaxChunkSize <= 0 {
		return req.Body, nil
	}
	if req.ContentLength > h.config.MaxChunkSize {
		return nil, ErrSizeExceeded
	}
	return io.LimitReader(req.Body, h.config.MaxChunkSize), nil
}
