package tus

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
)

// methods lists every method with a protocol handler, in the order event
// subscriptions are fanned out.
var methods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodOptions,
	http.MethodPatch,
	http.MethodPost,
	http.MethodDelete,
}

// Server dispatches protocol requests to the handler of their method.
type Server struct {
	Config Config

	store    DataStore
	caps     Capabilities
	handlers map[string]Handler

	lastListener atomic.Uint64
}

// NewServer builds a server on top of store. The capabilities of store and
// the GET routing table are fixed from here on.
func NewServer(store DataStore, opts ...ConfigOption) (*Server, error) {
	if store == nil {
		return nil, errors.New("server requires a data store")
	}

	s := &Server{
		Config: NewConfig(opts...),
		store:  store,
		caps:   CapabilitiesOf(store),
	}

	s.handlers = map[string]Handler{
		http.MethodGet:     NewGetHandler(store, s.caps, &s.Config),
		http.MethodHead:    NewHeadHandler(store, s.caps, &s.Config),
		http.MethodOptions: NewOptionsHandler(store, s.caps, &s.Config),
		http.MethodPatch:   NewPatchHandler(store, s.caps, &s.Config),
		http.MethodPost:    NewPostHandler(store, s.caps, &s.Config),
		http.MethodDelete:  NewDeleteHandler(store, s.caps, &s.Config),
	}

	return s, nil
}

// Store returns the data store the server was built with.
func (s *Server) Store() DataStore {
	return s.store
}

// Capabilities returns the optional operations resolved for the store.
func (s *Server) Capabilities() Capabilities {
	return s.caps
}

// Subscribe registers fn for events of kind raised by the store or by any
// handler. The returned id removes the listener from all of them.
func (s *Server) Subscribe(kind EventKind, fn Listener) ListenerID {
	id := ListenerID(s.lastListener.Add(1))
	for _, source := range s.sources() {
		source.On(kind, id, fn)
	}
	return id
}

// Unsubscribe removes the listener registered under id for kind.
func (s *Server) Unsubscribe(kind EventKind, id ListenerID) {
	for _, source := range s.sources() {
		source.Off(kind, id)
	}
}

func (s *Server) sources() []EventSource {
	sources := []EventSource{s.store}
	for _, method := range methods {
		sources = append(sources, s.handlers[method])
	}
	return sources
}

// Handle runs the protocol for req and returns the response to render. It
// never panics on malformed input and always returns a response.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if override := req.MethodOverride(); override != "" {
		req.Method = override
	}
	req.Method = strings.ToUpper(req.Method)
	req.FileID = s.fileID(req.Path)

	res := s.dispatch(ctx, req)
	if res.Header == nil {
		res.Header = make(http.Header)
	}

	if req.Method != http.MethodOptions {
		res.Header.Set(HeaderTusResumable, Version)
	}

	return res
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.Method == http.MethodGet {
		if route, ok := s.Config.Routes[req.Path]; ok {
			slog.Debug("Serving registered route", "path", req.Path)
			if res := route(ctx, req); res != nil {
				return res
			}
			return NewResponse(http.StatusNoContent, "")
		}

		res := s.handlers[http.MethodGet].Send(ctx, req)
		s.applyCORS(req, res)
		return res
	}

	if req.Method != http.MethodOptions {
		if _, ok := req.Header[HeaderTusResumable]; !ok {
			return NewResponse(http.StatusPreconditionFailed, "Tus-Resumable Required\n")
		}

		if invalid := invalidHeaders(req.Header, req.Method == http.MethodPatch); len(invalid) > 0 {
			slog.Debug("Rejecting request with invalid headers", "method", req.Method, "headers", invalid)
			return NewResponse(http.StatusPreconditionFailed, "Invalid "+strings.Join(invalid, " ")+"\n")
		}
	}

	handler, ok := s.handlers[req.Method]

	var res *Response
	if ok {
		res = handler.Send(ctx, req)
	} else {
		res = NewResponse(http.StatusNotFound, "Not found\n")
	}

	s.applyCORS(req, res)
	return res
}

func (s *Server) applyCORS(req *Request, res *Response) {
	res.Header.Set(HeaderExposeHeaders, exposedHeaders)

	origin := req.Origin()
	if origin == "" {
		return
	}

	allowed := s.store.Config().AllowedOrigins
	if len(allowed) == 0 || slices.Contains(allowed, origin) {
		res.Header.Set(HeaderAllowOrigin, origin)
	}
}

// fileID extracts the upload id from path, which has the form
// {base}{store path}/{id}. It returns "" when no id is addressed.
func (s *Server) fileID(path string) string {
	prefix := s.Config.BasePath + s.store.Config().Path + "/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}

	id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
	if strings.Contains(id, "/") {
		return ""
	}

	return id
}
