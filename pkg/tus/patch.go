package tus

import (
	"context"
	"net/http"
	"strconv"
)

// PatchHandler appends a chunk to an upload after verifying the client's
// view of the offset.
type PatchHandler struct {
	baseHandler
}

func NewPatchHandler(store DataStore, caps Capabilities, cfg *Config) *PatchHandler {
	h := &PatchHandler{}
	h.init(store, caps, cfg)
	return h
}

func (h *PatchHandler) Send(ctx context.Context, req *Request) *Response {
	if req.FileID == "" {
		return h.fail(ctx, http.MethodPatch, req, ErrFileNotFound)
	}

	offset, ok := req.UploadOffset()
	if !ok {
		return h.fail(ctx, http.MethodPatch, req, ErrMissingOffset)
	}

	if req.ContentType() == "" {
		return h.fail(ctx, http.MethodPatch, req, ErrInvalidContentType)
	}

	upload, err := h.store.GetOffset(ctx, req.FileID)
	if err != nil {
		return h.fail(ctx, http.MethodPatch, req, err)
	}

	if offset != upload.Size {
		return h.fail(ctx, http.MethodPatch, req, ErrInvalidOffset)
	}

	if length, ok := req.UploadLength(); ok && upload.LengthDeferred {
		if err := h.declareLength(ctx, upload, length); err != nil {
			return h.fail(ctx, http.MethodPatch, req, err)
		}
	}

	if !upload.LengthDeferred && req.ContentLength > upload.Remaining() {
		return h.fail(ctx, http.MethodPatch, req, ErrSizeExceeded)
	}

	body, err := h.body(req)
	if err != nil {
		return h.fail(ctx, http.MethodPatch, req, err)
	}

	newOffset, err := h.store.Write(ctx, req.FileID, offset, body)
	if err != nil {
		return h.fail(ctx, http.MethodPatch, req, err)
	}

	res := NewResponse(http.StatusNoContent, "")
	res.Header.Set(HeaderUploadOffset, strconv.FormatInt(newOffset, 10))
	return res
}

// declareLength finalizes a deferred length and updates upload to match.
func (h *PatchHandler) declareLength(ctx context.Context, upload *Upload, length int64) error {
	if !h.caps.CanDeclareLength() || length < 0 {
		return ErrInvalidLength
	}

	if h.config.MaxSize > 0 && length > h.config.MaxSize {
		return ErrSizeExceeded
	}

	if err := h.caps.LengthDeclarer.DeclareLength(ctx, upload.ID, length); err != nil {
		return err
	}

	return DeclareLength(upload, length)
}
