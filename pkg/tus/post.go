package tus

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// PostHandler creates uploads, optionally storing a first chunk sent along
// with the creation request.
type PostHandler struct {
	baseHandler
}

func NewPostHandler(store DataStore, caps Capabilities, cfg *Config) *PostHandler {
	h := &PostHandler{}
	h.init(store, caps, cfg)
	return h
}

func (h *PostHandler) Send(ctx context.Context, req *Request) *Response {
	spec, err := h.uploadSpec(req)
	if err != nil {
		return h.fail(ctx, http.MethodPost, req, err)
	}

	upload, err := h.store.Create(ctx, spec)
	if err != nil {
		return h.fail(ctx, http.MethodPost, req, err)
	}

	url := h.location(req, upload.ID)
	h.Emit(Event{Kind: EventFileCreated, URL: url, ID: upload.ID, Upload: upload})

	res := NewResponse(http.StatusCreated, "")
	res.Header.Set(HeaderLocation, url)

	contentType := req.ContentType()
	if contentType == "" || IsInvalidHeader(HeaderContentType, contentType) {
		return res
	}

	body, err := h.body(req)
	if err != nil {
		return h.fail(ctx, http.MethodPost, req, err)
	}

	offset, err := h.store.Write(ctx, upload.ID, 0, body)
	if err != nil {
		failed := h.fail(ctx, http.MethodPost, req, err)
		failed.Header.Set(HeaderLocation, url)
		return failed
	}

	res.Header.Set(HeaderUploadOffset, strconv.FormatInt(offset, 10))
	return res
}

// uploadSpec reads the creation headers. Exactly one of Upload-Length and
// Upload-Defer-Length must be present.
func (h *PostHandler) uploadSpec(req *Request) (UploadSpec, error) {
	length, hasLength := req.UploadLength()
	deferred := req.UploadDeferLength()

	switch {
	case hasLength && deferred, !hasLength && !deferred:
		return UploadSpec{}, ErrInvalidLength
	case deferred:
		if !h.caps.CanDeclareLength() {
			return UploadSpec{}, ErrInvalidLength
		}
		return NewDeferredUploadSpec(req.UploadMetadata()), nil
	}

	if length < 0 {
		return UploadSpec{}, ErrInvalidLength
	}

	if h.config.MaxSize > 0 && length > h.config.MaxSize {
		return UploadSpec{}, ErrSizeExceeded
	}

	return NewUploadSpec(length, req.UploadMetadata()), nil
}

// location computes the URL of the upload resource id.
func (h *PostHandler) location(req *Request, id string) string {
	cfg := h.store.Config()
	path := h.config.BasePath + cfg.Path + "/" + id

	switch {
	case cfg.AbsoluteLocation != "":
		return cfg.AbsoluteLocation + cfg.Path + "/" + id
	case cfg.RelativeLocation:
		return path
	}

	host := req.Host
	scheme := ""
	if h.config.RespectForwardedHeaders {
		if fwd := req.Header.Get(HeaderForwardedHost); fwd != "" {
			host = fwd
		}
		if proto := strings.ToLower(req.Header.Get(HeaderForwardedProto)); proto == "http" || proto == "https" {
			scheme = proto + ":"
		}
	}

	return scheme + "//" + host + path
}
