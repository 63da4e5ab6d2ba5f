package tus

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"resumable/pkg/tus/uid"
)

// DataStore is the contract every storage backend satisfies.
//
// Implementations must serialize Write, DeclareLength and Remove calls for
// the same upload id so that the offset comparison and the append happen
// atomically. A Write that is interrupted must leave Size at the number of
// bytes that were durably stored.
type DataStore interface {
	EventSource

	// Config returns the store configuration used to build resource URLs.
	Config() StoreConfig

	// Create allocates an id and persists an empty upload record. It fails
	// with ErrInvalidLength unless exactly one of a length or a deferred
	// length is specified.
	Create(ctx context.Context, spec UploadSpec) (*Upload, error)

	// Write appends src to the upload starting at offset and returns the
	// new size. It fails with ErrInvalidOffset if offset is not the current
	// size and never stores bytes past the upload length.
	Write(ctx context.Context, id string, offset int64, src io.Reader) (int64, error)

	// GetOffset returns a snapshot of the upload record.
	GetOffset(ctx context.Context, id string) (*Upload, error)

	// Remove deletes the upload. Subsequent operations on id fail with
	// ErrFileNotFound.
	Remove(ctx context.Context, id string) error
}

// Reader is the optional capability of streaming a stored upload back.
type Reader interface {
	Read(ctx context.Context, id string) (io.ReadCloser, error)
}

// LengthDeclarer is the optional capability of setting the length of an
// upload created with a deferred length.
type LengthDeclarer interface {
	DeclareLength(ctx context.Context, id string, length int64) error
}

// Capabilities describes which optional operations a store offers. It is
// resolved once when the server is built.
type Capabilities struct {
	Reader         Reader
	LengthDeclarer LengthDeclarer
}

// CapabilitiesOf probes store for every optional capability.
func CapabilitiesOf(store DataStore) Capabilities {
	var caps Capabilities
	if r, ok := store.(Reader); ok {
		caps.Reader = r
	}
	if d, ok := store.(LengthDeclarer); ok {
		caps.LengthDeclarer = d
	}
	return caps
}

// CanRead reports whether completed uploads can be downloaded.
func (c Capabilities) CanRead() bool {
	return c.Reader != nil
}

// CanDeclareLength reports whether deferred lengths can be finalized.
func (c Capabilities) CanDeclareLength() bool {
	return c.LengthDeclarer != nil
}

// StoreConfig is the configuration surface shared by all stores.
type StoreConfig struct {
	// Path is the URL path prefix under which uploads are addressed, for
	// example "/files".
	Path string

	// RelativeLocation makes Location headers omit the host.
	RelativeLocation bool

	// AbsoluteLocation, when set, replaces scheme and host of Location
	// headers. It takes precedence over RelativeLocation.
	AbsoluteLocation string

	// Extensions lists the protocol extensions the store supports, in the
	// order they are advertised.
	Extensions []string

	// AllowedOrigins restricts which Origin values are echoed back. An empty
	// list allows every origin.
	AllowedOrigins []string

	// IDGenerator returns fresh upload ids. It defaults to uid.New.
	IDGenerator func() string
}

// ExtensionList renders the declared extensions as a Tus-Extension value.
func (c StoreConfig) ExtensionList() string {
	return strings.Join(c.Extensions, ",")
}

// BaseStore provides the behavior common to all stores: configuration,
// event publishing and record allocation. Backends embed it.
type BaseStore struct {
	Emitter
	config StoreConfig
}

// NewBaseStore validates cfg and fills in defaults. defaultExtensions is
// used when cfg declares none.
func NewBaseStore(cfg StoreConfig, defaultExtensions ...string) (*BaseStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("store must have a path")
	}

	cfg.Path = "/" + strings.Trim(cfg.Path, "/")
	cfg.AbsoluteLocation = strings.TrimSuffix(cfg.AbsoluteLocation, "/")

	if cfg.Extensions == nil {
		cfg.Extensions = defaultExtensions
	}

	if cfg.IDGenerator == nil {
		cfg.IDGenerator = uid.New
	}

	return &BaseStore{config: cfg}, nil
}

func (b *BaseStore) Config() StoreConfig {
	return b.config
}

// NewUpload validates spec and returns a fresh record with a newly generated
// id. It does not persist anything.
func (b *BaseStore) NewUpload(spec UploadSpec) (*Upload, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	upload := &Upload{
		ID:             b.config.IDGenerator(),
		LengthDeferred: spec.LengthDeferred,
		Metadata:       spec.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if !spec.LengthDeferred {
		upload.Length = spec.Length
	}

	return upload, nil
}

// Created publishes the events that follow a successful Create.
func (b *BaseStore) Created(upload *Upload) {
	b.Emit(Event{Kind: EventUploadCreated, ID: upload.ID, Upload: clone(upload)})
	if upload.IsComplete() {
		b.Emit(Event{Kind: EventUploadComplete, ID: upload.ID, Upload: clone(upload)})
	}
}

// Written publishes the events that follow a successful Write which moved the
// size from before to upload.Size.
func (b *BaseStore) Written(before int64, upload *Upload) {
	if before != upload.Size && upload.IsComplete() {
		b.Emit(Event{Kind: EventUploadComplete, ID: upload.ID, Upload: clone(upload)})
	}
}

// LengthDeclared publishes upload-complete when declaring the length of
// upload made it complete.
func (b *BaseStore) LengthDeclared(upload *Upload) {
	if upload.IsComplete() {
		b.Emit(Event{Kind: EventUploadComplete, ID: upload.ID, Upload: clone(upload)})
	}
}

// Removed publishes the file-deleted event.
func (b *BaseStore) Removed(id string) {
	b.Emit(Event{Kind: EventFileDeleted, ID: id})
}

// CheckWrite verifies that a write at offset is acceptable for upload and
// returns the maximum number of bytes it may store, or -1 for no limit.
func CheckWrite(upload *Upload, offset int64) (int64, error) {
	if offset != upload.Size {
		return 0, ErrInvalidOffset
	}
	return upload.Remaining(), nil
}

// DeclareLength applies length to a deferred upload. Declaring the length an
// upload already has is a no-op; anything else on a non-deferred upload, or
// a length below the stored size, fails with ErrInvalidLength.
func DeclareLength(upload *Upload, length int64) error {
	if !upload.LengthDeferred {
		if upload.Length == length {
			return nil
		}
		return ErrInvalidLength
	}

	if length < upload.Size {
		return ErrInvalidLength
	}

	upload.Length = length
	upload.LengthDeferred = false
	return nil
}

// LimitBody caps src at limit bytes. A negative limit leaves src untouched.
func LimitBody(src io.Reader, limit int64) io.Reader {
	if limit < 0 {
		return src
	}
	return io.LimitReader(src, limit)
}

func clone(upload *Upload) *Upload {
	c := *upload
	return &c
}
