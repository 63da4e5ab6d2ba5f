package tus_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"resumable/internal/storage/memstore"
	"resumable/pkg/tus"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestServer creates a Server backed by an in-memory store and returns it
// along with an httptest.Server wrapping its handler.
func NewTestServer(t *testing.T, cfg tus.StoreConfig, opts ...tus.ConfigOption) (*tus.Server, *httptest.Server) {
	t.Helper()

	if cfg.Path == "" {
		cfg.Path = "/files"
	}

	store, err := memstore.New(cfg)
	require.NoError(t, err, "memstore.New error")

	return newTestServer(t, store, opts...)
}

func newTestServer(t *testing.T, store tus.DataStore, opts ...tus.ConfigOption) (*tus.Server, *httptest.Server) {
	t.Helper()

	srv, err := tus.NewServer(store, opts...)
	require.NoError(t, err, "NewServer error")

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return srv, httpSrv
}

type RequestOption func(*http.Request)

func WithContentType(contentType string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set("Content-Type", contentType)
	}
}

// WithChunk attaches body as an offset+octet-stream payload.
func WithChunk(body []byte) RequestOption {
	return func(req *http.Request) {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", tus.ContentTypeOffsetOctetStream)
		}
	}
}

func WithHeader(key string, value string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set(key, value)
	}
}

func WithoutHeader(key string) RequestOption {
	return func(req *http.Request) {
		req.Header.Del(key)
	}
}

func WithOffset(offset string) RequestOption {
	return WithHeader("Upload-Offset", offset)
}

func DoMethod(t *testing.T, method string, url string, opts ...RequestOption) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, nil)
	require.NoError(t, err, "creating "+method+" request")
	req.Header.Set("Tus-Resumable", "1.0.0")
	for _, opt := range opts {
		opt(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoErrorf(t, err, "%s %s error", method, url)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func DoPost(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodPost, url, opts...)
}

func DoPatch(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodPatch, url, opts...)
}

func DoHead(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodHead, url, opts...)
}

func DoGet(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodGet, url, opts...)
}

func DoDelete(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodDelete, url, opts...)
}

func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "reading response body")
	return string(data)
}

// CreateUpload creates an upload of length bytes and returns its URL on
// the test server.
func CreateUpload(t *testing.T, baseURL string, length string, opts ...RequestOption) string {
	t.Helper()
	opts = append([]RequestOption{WithHeader("Upload-Length", length)}, opts...)
	resp := DoPost(t, baseURL+"/files", opts...)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "POST status: %s", ReadBody(t, resp))
	location := resp.Header.Get("Location")
	require.NotEmpty(t, location, "Location header")
	return baseURL + "/files/" + path.Base(location)
}

func TestScenarioCreateUploadDownload(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "100"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "1.0.0", resp.Header.Get("Tus-Resumable"))

	location := resp.Header.Get("Location")
	host := strings.TrimPrefix(httpSrv.URL, "http:")
	require.True(t, strings.HasPrefix(location, host+"/files/"), "Location %q should be protocol relative", location)
	id := path.Base(location)
	require.Len(t, id, 32)
	url := httpSrv.URL + "/files/" + id

	resp = DoHead(t, url)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "0", resp.Header.Get("Upload-Offset"))
	require.Equal(t, "100", resp.Header.Get("Upload-Length"))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.Empty(t, resp.Header.Get("Content-Length"), "HEAD does not announce an empty body")

	payload := bytes.Repeat([]byte("0123456789"), 10)
	resp = DoPatch(t, url, WithOffset("0"), WithChunk(payload))
	require.Equal(t, http.StatusNoContent, resp.StatusCode, ReadBody(t, resp))
	require.Equal(t, "100", resp.Header.Get("Upload-Offset"))

	resp = DoGet(t, url)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "100", resp.Header.Get("Content-Length"))
	require.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, string(payload), ReadBody(t, resp))
}

func TestScenarioOffsetConflict(t *testing.T) {
	srv, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "100")

	resp := DoPatch(t, url, WithOffset("50"), WithChunk([]byte("late")))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "Incorrect Upload-Offset\n", ReadBody(t, resp))

	upload, err := srv.Store().GetOffset(t.Context(), path.Base(url))
	require.NoError(t, err)
	require.Zero(t, upload.Size, "store must be unchanged")
}

func TestScenarioDeleteThenHead(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "10")

	resp := DoDelete(t, url)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = DoHead(t, url)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = DoDelete(t, url)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "The file for this url was not found\n", ReadBody(t, resp))
}

func TestDeleteWithoutID(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoDelete(t, httpSrv.URL+"/files")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Invalid path name\n", ReadBody(t, resp))
}

func TestDownloadRequiresCompletion(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "10")

	resp := DoPatch(t, url, WithOffset("0"), WithChunk([]byte("12345")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = DoGet(t, url)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "in-progress uploads are not downloadable")
	require.Equal(t, "The file for this url was not found\n", ReadBody(t, resp))

	resp = DoPatch(t, url, WithOffset("5"), WithChunk([]byte("67890")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "10", resp.Header.Get("Upload-Offset"))

	resp = DoGet(t, url)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1234567890", ReadBody(t, resp))
}

func TestDownloadHonoursMetadata(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "5",
		WithHeader("Upload-Metadata", "filename dGVzdC50eHQ=,filetype dGV4dC9wbGFpbg=="))

	resp := DoHead(t, url)
	require.Equal(t, "filename dGVzdC50eHQ=,filetype dGV4dC9wbGFpbg==", resp.Header.Get("Upload-Metadata"), "metadata is echoed verbatim")

	resp = DoPatch(t, url, WithOffset("0"), WithChunk([]byte("hello")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = DoGet(t, url)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	require.Equal(t, "attachment; filename=test.txt", resp.Header.Get("Content-Disposition"))
	require.Equal(t, "hello", ReadBody(t, resp))
}

func TestDownloadOfUnknownUpload(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoGet(t, httpSrv.URL+"/files/doesnotexist")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = DoGet(t, httpSrv.URL+"/elsewhere")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequiredHeaderGate(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "10")

	for _, method := range []string{http.MethodPost, http.MethodHead, http.MethodPatch, http.MethodDelete} {
		target := url
		if method == http.MethodPost {
			target = httpSrv.URL + "/files"
		}

		resp := DoMethod(t, method, target, WithoutHeader("Tus-Resumable"), WithHeader("Upload-Length", "10"))
		require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode, method)
		if method != http.MethodHead {
			require.Equal(t, "Tus-Resumable Required\n", ReadBody(t, resp), method)
		}
	}

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Tus-Resumable", ""), WithHeader("Upload-Length", "10"))
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	require.Equal(t, "Invalid Tus-Resumable\n", ReadBody(t, resp), "an empty header is present but invalid")

	resp = DoMethod(t, http.MethodOptions, httpSrv.URL+"/files", WithoutHeader("Tus-Resumable"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode, "OPTIONS is exempt")

	resp = DoHead(t, url)
	require.Equal(t, http.StatusOK, resp.StatusCode, "upload untouched by the rejected requests")
	require.Equal(t, "0", resp.Header.Get("Upload-Offset"))
}

func TestInvalidHeadersAreListed(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoPost(t, httpSrv.URL+"/files",
		WithHeader("Upload-Length", "abc"),
		WithHeader("Upload-Metadata", "a b c"))
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	require.Equal(t, "Invalid Upload-Length Upload-Metadata\n", ReadBody(t, resp))

	resp = DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "10"), WithHeader("Tus-Resumable", "0.2.2"))
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	require.Equal(t, "Invalid Tus-Resumable\n", ReadBody(t, resp))
}

func TestContentTypeOnlyCheckedForPatch(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "4"), WithChunk([]byte("data")), WithContentType("not a type"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "POST ignores a malformed Content-Type")
	require.Empty(t, resp.Header.Get("Upload-Offset"), "the body is not stored")

	url := httpSrv.URL + "/files/" + path.Base(resp.Header.Get("Location"))
	resp = DoPatch(t, url, WithOffset("0"), WithContentType("not a type"), WithChunk([]byte("data")))
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	require.Equal(t, "Invalid Content-Type\n", ReadBody(t, resp))
}

func TestPatchPreconditions(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "10")

	resp := DoPatch(t, url, WithChunk([]byte("abc")))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "Missing Upload-Offset\n", ReadBody(t, resp))

	resp = DoPatch(t, url, WithOffset("0"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "Missing Content-Type\n", ReadBody(t, resp))

	resp = DoPatch(t, httpSrv.URL+"/files", WithOffset("0"), WithChunk([]byte("abc")))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = DoPatch(t, httpSrv.URL+"/files/doesnotexist", WithOffset("0"), WithChunk([]byte("abc")))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "The file for this url was not found\n", ReadBody(t, resp))

	resp = DoPatch(t, url, WithOffset("0"), WithChunk([]byte("more than ten bytes")))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, "chunks may not overflow the length")
}

func TestConcurrentPatchesAtSameOffset(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "100")

	const writers = 6

	statuses := make(chan int, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := bytes.Repeat([]byte{byte('a' + i)}, 10)
			req, err := http.NewRequestWithContext(t.Context(), http.MethodPatch, url, bytes.NewReader(body))
			if err != nil {
				statuses <- 0
				return
			}
			req.Header.Set("Tus-Resumable", "1.0.0")
			req.Header.Set("Upload-Offset", "0")
			req.Header.Set("Content-Type", tus.ContentTypeOffsetOctetStream)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				statuses <- 0
				return
			}
			_ = resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for status := range statuses {
		counts[status]++
	}
	require.Equal(t, map[int]int{http.StatusNoContent: 1, http.StatusConflict: writers - 1}, counts)

	resp := DoHead(t, url)
	require.Equal(t, "10", resp.Header.Get("Upload-Offset"))
}

func TestCreationWithUpload(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "11"), WithChunk([]byte("hello")))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "5", resp.Header.Get("Upload-Offset"))

	url := httpSrv.URL + "/files/" + path.Base(resp.Header.Get("Location"))
	resp = DoPatch(t, url, WithOffset("5"), WithChunk([]byte(" world")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = DoGet(t, url)
	require.Equal(t, "hello world", ReadBody(t, resp))
}

func TestLengthHeadersAreMutuallyExclusive(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoPost(t, httpSrv.URL+"/files")
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode, "neither header")
	require.Equal(t, "Invalid Upload-Length\n", ReadBody(t, resp))

	resp = DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "10"), WithHeader("Upload-Defer-Length", "1"))
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode, "both headers")
	require.Equal(t, "Invalid Upload-Length\n", ReadBody(t, resp))

	resp = DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Defer-Length", "2"))
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	require.Equal(t, "Invalid Upload-Defer-Length\n", ReadBody(t, resp))
}

func TestDeferredLength(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Defer-Length", "1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	url := httpSrv.URL + "/files/" + path.Base(resp.Header.Get("Location"))

	resp = DoHead(t, url)
	require.Equal(t, "1", resp.Header.Get("Upload-Defer-Length"))
	require.Empty(t, resp.Header.Get("Upload-Length"))

	resp = DoPatch(t, url, WithOffset("0"), WithChunk([]byte("abc")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "3", resp.Header.Get("Upload-Offset"))

	resp = DoPatch(t, url, WithOffset("3"), WithHeader("Upload-Length", "6"), WithChunk([]byte("def")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode, ReadBody(t, resp))
	require.Equal(t, "6", resp.Header.Get("Upload-Offset"))

	resp = DoHead(t, url)
	require.Equal(t, "6", resp.Header.Get("Upload-Length"))
	require.Empty(t, resp.Header.Get("Upload-Defer-Length"))

	resp = DoGet(t, url)
	require.Equal(t, "abcdef", ReadBody(t, resp))
}

// basicStore hides every optional capability of the wrapped store.
type basicStore struct {
	tus.DataStore
}

func TestMissingCapabilities(t *testing.T) {
	store, err := memstore.New(tus.StoreConfig{Path: "/files"})
	require.NoError(t, err)

	srv, httpSrv := newTestServer(t, basicStore{store})
	require.False(t, srv.Capabilities().CanRead())
	require.False(t, srv.Capabilities().CanDeclareLength())

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Defer-Length", "1"))
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode, "deferred lengths need a LengthDeclarer")

	url := CreateUpload(t, httpSrv.URL, "2")
	resp = DoPatch(t, url, WithOffset("0"), WithChunk([]byte("ok")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = DoGet(t, url)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "downloads need a Reader")
}

func TestOptions(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{}, tus.WithMaxSize(1<<20))

	resp := DoMethod(t, http.MethodOptions, httpSrv.URL+"/files", WithoutHeader("Tus-Resumable"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "POST, GET, HEAD, PATCH, DELETE, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Upload-Offset")
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-HTTP-Method-Override")
	require.Equal(t, "86400", resp.Header.Get("Access-Control-Max-Age"))
	require.Equal(t, "1.0.0", resp.Header.Get("Tus-Version"))
	require.Equal(t, "creation,creation-with-upload,creation-defer-length,termination", resp.Header.Get("Tus-Extension"))
	require.Equal(t, "1048576", resp.Header.Get("Tus-Max-Size"))
	require.Empty(t, resp.Header.Get("Tus-Resumable"), "OPTIONS does not carry Tus-Resumable")
	require.Equal(t, "Upload-Offset, Location, Upload-Length, Tus-Version, Tus-Resumable, Tus-Max-Size, Tus-Extension, Upload-Metadata, Upload-Defer-Length",
		resp.Header.Get("Access-Control-Expose-Headers"))

	resp = DoMethod(t, http.MethodOptions, httpSrv.URL+"/files", WithHeader("Upload-Length", "garbage"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode, "OPTIONS skips header validation")
}

func TestExtensionsFollowStoreConfig(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{Extensions: []string{}})

	resp := DoMethod(t, http.MethodOptions, httpSrv.URL+"/files")
	require.Empty(t, resp.Header.Values("Tus-Extension"))
	require.Empty(t, resp.Header.Values("Tus-Max-Size"))
}

func TestCORS(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "1"), WithHeader("Origin", "https://app.example.com"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "Location")

	resp = DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "1"))
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "no Origin, nothing echoed")

	_, restricted := NewTestServer(t, tus.StoreConfig{AllowedOrigins: []string{"https://app.example.com"}})

	resp = DoPost(t, restricted.URL+"/files", WithHeader("Upload-Length", "1"), WithHeader("Origin", "https://evil.example.com"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "origin not allowed")

	resp = DoPost(t, restricted.URL+"/files", WithHeader("Upload-Length", "1"), WithHeader("Origin", "https://app.example.com"))
	require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMethodOverride(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "10")

	resp := DoPost(t, url, WithHeader("X-HTTP-Method-Override", "PATCH"), WithOffset("0"), WithChunk([]byte("12345")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode, ReadBody(t, resp))
	require.Equal(t, "5", resp.Header.Get("Upload-Offset"))

	resp = DoPost(t, url, WithHeader("X-HTTP-Method-Override", "PATCH;rm"))
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	require.Equal(t, "Invalid X-Http-Method-Override\n", ReadBody(t, resp))

	resp = DoPost(t, url, WithHeader("X-HTTP-Method-Override", "delete"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode, "override is case insensitive")

	resp = DoHead(t, url)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownMethod(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})

	resp := DoMethod(t, http.MethodPut, httpSrv.URL+"/files")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Not found\n", ReadBody(t, resp))
}

func TestLocation(t *testing.T) {
	t.Run("relative", func(t *testing.T) {
		_, httpSrv := NewTestServer(t, tus.StoreConfig{RelativeLocation: true})
		resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "1"))
		require.Regexp(t, `^/files/[0-9A-Za-z]{32}$`, resp.Header.Get("Location"))
	})

	t.Run("absolute", func(t *testing.T) {
		_, httpSrv := NewTestServer(t, tus.StoreConfig{AbsoluteLocation: "https://cdn.example.com/", RelativeLocation: true})
		resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "1"))
		require.Regexp(t, `^https://cdn\.example\.com/files/[0-9A-Za-z]{32}$`, resp.Header.Get("Location"))
	})

	t.Run("forwarded", func(t *testing.T) {
		_, httpSrv := NewTestServer(t, tus.StoreConfig{}, tus.WithForwardedHeaders(true))
		resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "1"),
			WithHeader("X-Forwarded-Host", "uploads.example.org"),
			WithHeader("X-Forwarded-Proto", "https"))
		require.Regexp(t, `^https://uploads\.example\.org/files/[0-9A-Za-z]{32}$`, resp.Header.Get("Location"))
	})

	t.Run("forwarded headers ignored by default", func(t *testing.T) {
		_, httpSrv := NewTestServer(t, tus.StoreConfig{})
		resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "1"),
			WithHeader("X-Forwarded-Host", "uploads.example.org"))
		require.NotContains(t, resp.Header.Get("Location"), "uploads.example.org")
	})

	t.Run("base path", func(t *testing.T) {
		_, httpSrv := NewTestServer(t, tus.StoreConfig{RelativeLocation: true}, tus.WithBasePath("/api/"))
		resp := DoPost(t, httpSrv.URL+"/api/files", WithHeader("Upload-Length", "2"))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		location := resp.Header.Get("Location")
		require.Regexp(t, `^/api/files/[0-9A-Za-z]{32}$`, location)

		resp = DoHead(t, httpSrv.URL+location)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = DoHead(t, httpSrv.URL+"/files/"+path.Base(location))
		require.Equal(t, http.StatusNotFound, resp.StatusCode, "ids are only resolved below the base path")
	})
}

func TestTrailingSlashes(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{})
	url := CreateUpload(t, httpSrv.URL, "1")

	resp := DoHead(t, url+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = DoHead(t, strings.Replace(url, "/files/", "//files//", 1))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = DoHead(t, url+"/nested")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSizeLimits(t *testing.T) {
	_, httpSrv := NewTestServer(t, tus.StoreConfig{}, tus.WithMaxSize(10), tus.WithMaxChunkSize(4))

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "11"))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.Equal(t, "Upload-Length exceeded\n", ReadBody(t, resp))

	url := CreateUpload(t, httpSrv.URL, "10")

	resp = DoPatch(t, url, WithOffset("0"), WithChunk([]byte("12345")))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, "chunk above the chunk size")

	resp = DoPatch(t, url, WithOffset("0"), WithChunk([]byte("1234")))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "4", resp.Header.Get("Upload-Offset"))

	resp = DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Defer-Length", "1"))
	deferred := httpSrv.URL + "/files/" + path.Base(resp.Header.Get("Location"))
	resp = DoPatch(t, deferred, WithOffset("0"), WithHeader("Upload-Length", "20"), WithChunk([]byte("1")))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, "declared length above the maximum")
}

func TestEvents(t *testing.T) {
	srv, httpSrv := NewTestServer(t, tus.StoreConfig{})

	var mu sync.Mutex
	var events []tus.Event
	record := func(ev tus.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	created := srv.Subscribe(tus.EventFileCreated, record)
	srv.Subscribe(tus.EventUploadComplete, record)
	srv.Subscribe(tus.EventFileDeleted, record)

	resp := DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "3"))
	location := resp.Header.Get("Location")
	url := httpSrv.URL + "/files/" + path.Base(location)

	DoPatch(t, url, WithOffset("0"), WithChunk([]byte("abc")))
	DoDelete(t, url)

	mu.Lock()
	require.Len(t, events, 3)
	require.Equal(t, tus.EventFileCreated, events[0].Kind)
	require.Equal(t, location, events[0].URL, "file-created carries the resource URL")
	require.Equal(t, path.Base(location), events[0].ID)
	require.NotNil(t, events[0].Upload)
	require.Equal(t, tus.EventUploadComplete, events[1].Kind)
	require.Equal(t, int64(3), events[1].Upload.Size)
	require.Equal(t, tus.EventFileDeleted, events[2].Kind)
	require.Equal(t, path.Base(location), events[2].ID)
	events = nil
	mu.Unlock()

	srv.Unsubscribe(tus.EventFileCreated, created)
	DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "3"))

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, events, "unsubscribed listeners are not called")
}

func TestZeroLengthUploadCompletesOnCreate(t *testing.T) {
	srv, httpSrv := NewTestServer(t, tus.StoreConfig{})

	completed := make(chan tus.Event, 1)
	srv.Subscribe(tus.EventUploadComplete, func(ev tus.Event) { completed <- ev })

	url := CreateUpload(t, httpSrv.URL, "0")
	require.Equal(t, path.Base(url), (<-completed).ID)

	resp := DoGet(t, url)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "0", resp.Header.Get("Content-Length"))
}

func TestRoutes(t *testing.T) {
	calls := 0
	_, httpSrv := NewTestServer(t, tus.StoreConfig{},
		tus.WithRoute("/", func(_ context.Context, req *tus.Request) *tus.Response {
			calls++
			res := tus.NewResponse(http.StatusOK, "landing page for "+req.Path)
			res.Header.Set("Content-Type", "text/plain")
			return res
		}),
		tus.WithRoute("/files", func(context.Context, *tus.Request) *tus.Response { return nil }),
	)

	resp := DoGet(t, httpSrv.URL+"/", WithoutHeader("Tus-Resumable"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "landing page for /", ReadBody(t, resp))
	require.Equal(t, "1.0.0", resp.Header.Get("Tus-Resumable"))
	require.Equal(t, 1, calls)

	resp = DoGet(t, httpSrv.URL+"/files")
	require.Equal(t, http.StatusNoContent, resp.StatusCode, "a nil route response is empty")

	resp = DoHead(t, httpSrv.URL+"/")
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "routes only answer GET")
	require.Equal(t, 1, calls)
}

// faultyStore fails every lookup with err.
type faultyStore struct {
	tus.DataStore
	err error
}

func (s faultyStore) GetOffset(context.Context, string) (*tus.Upload, error) {
	return nil, s.err
}

func TestBackendErrors(t *testing.T) {
	store, err := memstore.New(tus.StoreConfig{Path: "/files"})
	require.NoError(t, err)

	t.Run("backend status", func(t *testing.T) {
		_, httpSrv := newTestServer(t, faultyStore{store, tus.NewError(http.StatusServiceUnavailable, "Backend unavailable\n")})
		resp := DoPatch(t, httpSrv.URL+"/files/abc", WithOffset("0"), WithChunk([]byte("x")))
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Equal(t, "Backend unavailable\n", ReadBody(t, resp))
	})

	t.Run("unknown", func(t *testing.T) {
		_, httpSrv := newTestServer(t, faultyStore{store, errors.New("disk on fire")})
		resp := DoPatch(t, httpSrv.URL+"/files/abc", WithOffset("0"), WithChunk([]byte("x")))
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Equal(t, "Unknown error: disk on fire\n", ReadBody(t, resp))
	})
}

// panickyStore panics on every lookup.
type panickyStore struct {
	tus.DataStore
}

func (panickyStore) GetOffset(context.Context, string) (*tus.Upload, error) {
	panic("corrupted state")
}

func TestPanicsBecome500(t *testing.T) {
	store, err := memstore.New(tus.StoreConfig{Path: "/files"})
	require.NoError(t, err)

	_, httpSrv := newTestServer(t, panickyStore{store})

	resp := DoPatch(t, httpSrv.URL+"/files/abc", WithOffset("0"), WithChunk([]byte("x")))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "Unknown error\n", ReadBody(t, resp))

	resp = DoPost(t, httpSrv.URL+"/files", WithHeader("Upload-Length", "1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "the server keeps serving")
}

func TestNewServerRequiresStore(t *testing.T) {
	_, err := tus.NewServer(nil)
	require.Error(t, err)
}
