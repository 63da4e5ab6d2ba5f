package tus

import (
	"context"
	"net/http"
)

// DeleteHandler terminates uploads.
type DeleteHandler struct {
	baseHandler
}

func NewDeleteHandler(store DataStore, caps Capabilities, cfg *Config) *DeleteHandler {
	h := &DeleteHandler{}
	h.init(store, caps, cfg)
	return h
}

func (h *DeleteHandler) Send(ctx context.Context, req *Request) *Response {
	if req.FileID == "" {
		return NewResponse(http.StatusNotFound, "Invalid path name\n")
	}

	if err := h.store.Remove(ctx, req.FileID); err != nil {
		return h.fail(ctx, http.MethodDelete, req, err)
	}

	return NewResponse(http.StatusNoContent, "")
}
