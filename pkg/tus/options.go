package tus

import (
	"context"
	"net/http"
	"strconv"
)

// OptionsHandler answers capability discovery and CORS preflight requests.
type OptionsHandler struct {
	baseHandler
}

func NewOptionsHandler(store DataStore, caps Capabilities, cfg *Config) *OptionsHandler {
	h := &OptionsHandler{}
	h.init(store, caps, cfg)
	return h
}

func (h *OptionsHandler) Send(_ context.Context, _ *Request) *Response {
	res := NewResponse(http.StatusNoContent, "")
	res.Header.Set(HeaderAllowMethods, allowedMethods)
	res.Header.Set(HeaderAllowHeaders, allowedHeaders)
	res.Header.Set(HeaderMaxAge, MaxAge)
	res.Header.Set(HeaderTusVersion, Version)

	if extensions := h.store.Config().ExtensionList(); extensions != "" {
		res.Header.Set(HeaderTusExtension, extensions)
	}

	if h.config.MaxSize > 0 {
		res.Header.Set(HeaderTusMaxSize, strconv.FormatInt(h.config.MaxSize, 10))
	}

	return res
}
