package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	gotus "github.com/eventials/go-tus"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

const (
	ObjectName    = "example.txt"
	ObjectContent = "Hello from the resumable upload example!\n"
)

// NewUpload prepares the upload of path, or of a generated text file when
// path is empty.
func NewUpload(path string, repeat int) (*gotus.Upload, []byte, error) {
	if path == "" {
		content := bytes.Repeat([]byte(ObjectContent), repeat)
		upload := gotus.NewUploadFromBytes(content)
		upload.Metadata["filename"] = ObjectName
		upload.Metadata["filetype"] = "text/plain"
		return upload, content, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	upload := gotus.NewUploadFromBytes(content)
	upload.Metadata["filename"] = filepath.Base(path)
	return upload, content, nil
}

// UploadFile sends upload to the collection at endpoint in chunks of
// chunkSize bytes and returns the URL of the new resource.
func UploadFile(endpoint string, upload *gotus.Upload, chunkSize int64, override bool) (string, error) {
	cfg := gotus.DefaultConfig()
	cfg.ChunkSize = chunkSize
	cfg.OverridePatchMethod = override

	client, err := gotus.NewClient(endpoint, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create client: %w", err)
	}

	uploader, err := client.CreateUpload(upload)
	if err != nil {
		return "", fmt.Errorf("failed to create upload: %w", err)
	}

	slog.Info("Created upload", "url", uploader.Url(), "size", upload.Size())

	for uploader.Offset() < upload.Size() {
		if err := uploader.UploadChunck(); err != nil {
			return "", fmt.Errorf("failed to upload chunk at offset %d: %w", uploader.Offset(), err)
		}
		slog.Info("Uploaded chunk", "offset", uploader.Offset(), "size", upload.Size())
	}

	return uploader.Url(), nil
}

func request(ctx context.Context, method string, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Tus-Resumable", "1.0.0")
	return http.DefaultClient.Do(req)
}

// CheckOffset asks the server for the offset of url and compares it with
// want.
func CheckOffset(ctx context.Context, url string, want int64) error {
	resp, err := request(ctx, http.MethodHead, url)
	if err != nil {
		return fmt.Errorf("HEAD %s: %w", url, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HEAD %s: unexpected status %s", url, resp.Status)
	}

	offset, err := strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
	if err != nil {
		return fmt.Errorf("HEAD %s: invalid Upload-Offset: %w", url, err)
	}
	if offset != want {
		return fmt.Errorf("HEAD %s: offset %d, want %d", url, offset, want)
	}

	slog.Info("Verified offset", "url", url, "offset", offset)
	return nil
}

// DownloadFile fetches url and compares the payload with want.
func DownloadFile(ctx context.Context, url string, want []byte) error {
	resp, err := request(ctx, http.MethodGet, url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	if !bytes.Equal(data, want) {
		return fmt.Errorf("GET %s: downloaded %d bytes differ from the %d uploaded", url, len(data), len(want))
	}

	slog.Info("Downloaded upload", "url", url, "bytes", len(data), "disposition", resp.Header.Get("Content-Disposition"))
	return nil
}

// RemoveFile terminates the upload at url.
func RemoveFile(ctx context.Context, url string) error {
	resp, err := request(ctx, http.MethodDelete, url)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", url, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("DELETE %s: unexpected status %s", url, resp.Status)
	}

	slog.Info("Removed upload", "url", url)
	return nil
}

func Run(ctx context.Context) error {
	endpoint := flag.String("endpoint", getenv("RESUMABLE_ENDPOINT", "http://127.0.0.1:1080/files"), "collection URL of the server")
	file := flag.String("file", "", "file to upload (a generated text file when empty)")
	repeat := flag.Int("repeat", 64*1024, "how often the generated text is repeated")
	chunkSize := flag.Int64("chunk-size", 512*1024, "bytes per PATCH request")
	override := flag.Bool("override", false, "send chunks as POST with X-HTTP-Method-Override")
	keep := flag.Bool("keep", false, "keep the upload instead of terminating it")

	flag.Parse()

	upload, content, err := NewUpload(*file, *repeat)
	if err != nil {
		return err
	}

	// 1. Upload the file in chunks.
	url, err := UploadFile(*endpoint, upload, *chunkSize, *override)
	if err != nil {
		return err
	}

	// 2. Ask the server for the offset.
	if err := CheckOffset(ctx, url, int64(len(content))); err != nil {
		return err
	}

	// 3. Download the file again.
	if err := DownloadFile(ctx, url, content); err != nil {
		return err
	}

	if *keep {
		return nil
	}

	// 4. Terminate the upload.
	return RemoveFile(ctx, url)
}

func main() {
	slog.SetDefault(slog.New(log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := Run(ctx); err != nil {
		slog.Error("Example failed", "error", err)
		os.Exit(1)
	}
}
