package tus

import (
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Request is the transport independent view of an inbound request.
type Request struct {
	Method string
	Path   string
	Host   string
	Header http.Header
	Body   io.Reader

	// ContentLength is the declared body length, or -1 when unknown.
	ContentLength int64

	// FileID is the upload id addressed by the request path. The dispatcher
	// fills it in.
	FileID string
}

// NewRequest adapts an *http.Request.
func NewRequest(r *http.Request) *Request {
	var body io.Reader = http.NoBody
	if r.Body != nil {
		body = r.Body
	}

	return &Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Host:          r.Host,
		Header:        r.Header,
		Body:          body,
		ContentLength: r.ContentLength,
	}
}

// UploadOffset returns the Upload-Offset header and whether it was present.
func (r *Request) UploadOffset() (int64, bool) {
	return r.int64Header(HeaderUploadOffset)
}

// UploadLength returns the Upload-Length header and whether it was present.
func (r *Request) UploadLength() (int64, bool) {
	return r.int64Header(HeaderUploadLength)
}

// UploadDeferLength reports whether Upload-Defer-Length was sent.
func (r *Request) UploadDeferLength() bool {
	_, ok := r.Header[HeaderUploadDeferLength]
	return ok
}

// UploadMetadata returns the raw Upload-Metadata header.
func (r *Request) UploadMetadata() string {
	return r.Header.Get(HeaderUploadMetadata)
}

// ContentType returns the Content-Type header.
func (r *Request) ContentType() string {
	return r.Header.Get(HeaderContentType)
}

// Origin returns the Origin header.
func (r *Request) Origin() string {
	return r.Header.Get(HeaderOrigin)
}

// MethodOverride returns the upper-cased X-HTTP-Method-Override header.
func (r *Request) MethodOverride() string {
	return strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderMethodOverride)))
}

// int64Header parses an integer header. A header that is present but
// malformed reports ok with a value of -1; the dispatcher rejects such
// requests before any handler sees them.
func (r *Request) int64Header(name string) (int64, bool) {
	values, ok := r.Header[name]
	if !ok || len(values) == 0 {
		return 0, false
	}

	v, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return -1, true
	}
	return v, true
}

// Response describes the reply to a request. Exactly one of Body and Stream
// is used.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string

	// Stream, when set, is copied to the client and closed afterwards.
	Stream io.ReadCloser

	// NoBody marks replies that never carry a body, such as HEAD. Render
	// leaves Content-Length alone for them.
	NoBody bool
}

// NewResponse returns a response with an empty header set.
func NewResponse(statusCode int, body string) *Response {
	return &Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
		Body:       body,
	}
}

// Render writes the response onto w. Content-Length is derived from Body
// unless a stream is sent or NoBody is set.
func (res *Response) Render(w http.ResponseWriter) error {
	header := w.Header()
	for key, values := range res.Header {
		header[key] = values
	}

	if res.Stream != nil {
		defer res.Stream.Close()
		w.WriteHeader(res.StatusCode)
		_, err := io.Copy(w, res.Stream)
		return err
	}

	if bodyAllowed(res.StatusCode) && !res.NoBody {
		header.Set(HeaderContentLength, strconv.Itoa(len(res.Body)))
	}

	w.WriteHeader(res.StatusCode)
	if res.Body == "" || res.NoBody || !bodyAllowed(res.StatusCode) {
		return nil
	}

	_, err := io.WriteString(w, res.Body)
	return err
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}
