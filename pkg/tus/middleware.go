package tus

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ResponseWriterWrapper records the status code and the number of body bytes
// written through it.
type ResponseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
	BytesWritten        int64
}

func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *ResponseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.BytesWritten += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *ResponseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type LogEntry struct {
	IP            string
	Method        string
	Override      string
	URL           string
	Proto         string
	UploadOffset  string
	ContentLength int64
	DurationMS    float64
	StatusCode    int
	BytesWritten  int64
}

func (e LogEntry) User() slog.Attr {
	return slog.Group("user", "ip", e.IP)
}

func (e LogEntry) Request() slog.Attr {
	return slog.Group("request",
		"proto", e.Proto,
		"method", e.Method,
		"url", e.URL,
		"duration_ms", e.DurationMS,
		"status_code", e.StatusCode,
		"bytes_written", e.BytesWritten,
	)
}

func (e LogEntry) Upload() slog.Attr {
	return slog.Group("upload",
		"method_override", e.Override,
		"offset", e.UploadOffset,
		"content_length", e.ContentLength,
	)
}

// LogRequest is middleware that logs every request once it was answered.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		entry := LogEntry{
			IP:            r.RemoteAddr,
			Method:        r.Method,
			Override:      r.Header.Get(HeaderMethodOverride),
			URL:           r.URL.String(),
			Proto:         r.Proto,
			UploadOffset:  r.Header.Get(HeaderUploadOffset),
			ContentLength: r.ContentLength,
		}

		writer := ResponseWriterWrapper{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(&writer, r)
		elapsed := time.Since(start).Nanoseconds()

		entry.DurationMS = float64(elapsed) / float64(time.Millisecond)
		entry.StatusCode = writer.WrittenResponseCode
		entry.BytesWritten = writer.BytesWritten

		switch {
		case writer.WrittenResponseCode >= 500:
			slog.Error("Request", entry.User(), entry.Request(), entry.Upload())
		case writer.WrittenResponseCode >= 400:
			slog.Warn("Request", entry.User(), entry.Request(), entry.Upload())
		default:
			slog.Info("Request", entry.User(), entry.Request(), entry.Upload())
		}
	})
}

// SlashFix collapses duplicate slashes and strips a trailing slash so that
// "/files/" and "/files" address the same collection.
func SlashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for strings.Contains(r.URL.Path, "//") {
			r.URL.Path = strings.ReplaceAll(r.URL.Path, "//", "/")
		}

		if r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}

		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panicking handler into a 500 response.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					// we don't recover http.ErrAbortHandler so the response
					// to the client is aborted, this should not be logged
					panic(rvr)
				}

				slog.Error("Internal Error in HTTP handler", "error", rvr, "method", r.Method, "path", r.URL.Path)

				res := ErrUnknown(nil)
				w.Header().Set(HeaderTusResumable, Version)
				w.WriteHeader(res.StatusCode)
				_, _ = w.Write([]byte(res.Body))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
