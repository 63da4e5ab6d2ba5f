package tus

import (
	"context"
	"net/http"
	"strconv"
)

// HeadHandler reports how much of an upload has been received.
type HeadHandler struct {
	baseHandler
}

func NewHeadHandler(store DataStore, caps Capabilities, cfg *Config) *HeadHandler {
	h := &HeadHandler{}
	h.init(store, caps, cfg)
	return h
}

func (h *HeadHandler) Send(ctx context.Context, req *Request) *Response {
	if req.FileID == "" {
		return h.fail(ctx, http.MethodHead, req, ErrFileNotFound)
	}

	upload, err := h.store.GetOffset(ctx, req.FileID)
	if err != nil {
		return h.fail(ctx, http.MethodHead, req, err)
	}

	res := NewResponse(http.StatusOK, "")
	res.NoBody = true
	res.Header.Set(HeaderCacheControl, "no-store")
	res.Header.Set(HeaderUploadOffset, strconv.FormatInt(upload.Size, 10))

	if upload.LengthDeferred {
		res.Header.Set(HeaderUploadDeferLength, "1")
	} else {
		res.Header.Set(HeaderUploadLength, strconv.FormatInt(upload.Length, 10))
	}

	if upload.Metadata != "" {
		res.Header.Set(HeaderUploadMetadata, upload.Metadata)
	}

	return res
}
