// Package ui renders the demonstration page served next to the upload
// endpoint.
package ui

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"resumable/pkg/tus"
)

// RecentUploads is the number of uploads listed on the home page.
const RecentUploads = 20

// Lister is implemented by stores able to enumerate their uploads.
type Lister interface {
	List(ctx context.Context, limit int) ([]*tus.Upload, error)
}

// FromUpload converts a stored upload for display. collection is the URL
// path of the upload collection.
func FromUpload(u *tus.Upload, collection string) Upload {
	name := u.DecodedMetadata()["filename"]
	if name == "" {
		name = u.ID
	}

	length := "unknown"
	if !u.LengthDeferred {
		length = strconv.FormatInt(u.Length, 10)
	}

	return Upload{
		ID:       u.ID,
		Name:     name,
		URL:      collection + "/" + u.ID,
		Size:     u.Size,
		Length:   length,
		Complete: u.IsComplete(),
		Created:  u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Home returns a GET route rendering HomePage. lister may be nil, in which
// case no uploads are listed.
func Home(collection string, chunkSize int64, lister Lister) tus.RouteFunc {
	return func(ctx context.Context, req *tus.Request) *tus.Response {
		var uploads []Upload
		if lister != nil {
			stored, err := lister.List(ctx, RecentUploads)
			if err != nil {
				slog.Warn("Failed to list uploads", "error", err)
			}
			for _, u := range stored {
				uploads = append(uploads, FromUpload(u, collection))
			}
		}

		var buf bytes.Buffer
		if err := HomePage(collection, chunkSize, uploads).Render(ctx, &buf); err != nil {
			slog.Error("Failed to render home page", "path", req.Path, "error", err)
			return tus.NewResponse(http.StatusInternalServerError, "failed to render page\n")
		}

		res := tus.NewResponse(http.StatusOK, buf.String())
		res.Header.Set("Content-Type", "text/html; charset=utf-8")
		return res
	}
}
