package tus

import (
	"context"
	"mime"
	"net/http"
	"strconv"
)

// GetHandler streams completed uploads back to the client.
type GetHandler struct {
	baseHandler
}

func NewGetHandler(store DataStore, caps Capabilities, cfg *Config) *GetHandler {
	h := &GetHandler{}
	h.init(store, caps, cfg)
	return h
}

func (h *GetHandler) Send(ctx context.Context, req *Request) *Response {
	if !h.caps.CanRead() || req.FileID == "" {
		return h.fail(ctx, http.MethodGet, req, ErrFileNotFound)
	}

	upload, err := h.store.GetOffset(ctx, req.FileID)
	if err != nil {
		return h.fail(ctx, http.MethodGet, req, err)
	}

	if !upload.IsComplete() {
		return h.fail(ctx, http.MethodGet, req, ErrFileNotFound)
	}

	stream, err := h.caps.Reader.Read(ctx, req.FileID)
	if err != nil {
		return h.fail(ctx, http.MethodGet, req, err)
	}

	res := NewResponse(http.StatusOK, "")
	res.Stream = stream
	res.Header.Set(HeaderContentLength, strconv.FormatInt(upload.Size, 10))
	res.Header.Set(HeaderContentType, "application/octet-stream")

	meta := upload.DecodedMetadata()
	if filetype := meta["filetype"]; filetype != "" {
		if _, _, err := mime.ParseMediaType(filetype); err == nil {
			res.Header.Set(HeaderContentType, filetype)
		}
	}
	if filename := meta["filename"]; filename != "" {
		if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); disposition != "" {
			res.Header.Set(HeaderContentDisposition, disposition)
		}
	}

	return res
}
