// Package s3store keeps uploads in an S3 compatible bucket.
//
// Every upload is stored as a JSON record at {prefix}{id}.info and one object
// per accepted chunk at {prefix}{id}.part/{offset}, the offset zero padded so
// that listing order is payload order.
package s3store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"resumable/internal/storage/lock"
	"resumable/pkg/tus"

	jsoniter "github.com/json-iterator/go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var Extensions = []string{
	tus.ExtensionCreation,
	tus.ExtensionCreationWithUpload,
	tus.ExtensionCreationDeferLength,
	tus.ExtensionTermination,
}

const (
	infoSuffix  = ".info"
	partsSuffix = ".part/"

	// partSize is the buffer used to stream chunks of unknown length.
	partSize = 16 << 20
)

// Options configures the bucket connection.
type Options struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint" validate:"required"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket" validate:"required"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Secure    bool   `mapstructure:"secure" yaml:"secure"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

// Store is a tus.DataStore backed by an S3 bucket. Per upload locking is
// local to the process, so a bucket must not be shared by several servers.
type Store struct {
	*tus.BaseStore

	client *minio.Client
	bucket string
	prefix string
	locks  *lock.Locker
}

// Connect dials the bucket described by opts, creating the bucket if needed.
func Connect(ctx context.Context, cfg tus.StoreConfig, opts Options) (*Store, error) {
	lookup := minio.BucketLookupAuto
	if opts.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.Secure,
		Region:       opts.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	if err := EnsureBucket(ctx, client, opts.Bucket, opts.Region); err != nil {
		return nil, err
	}

	return New(cfg, client, opts.Bucket, opts.Prefix)
}

// New wraps an existing client. Objects are placed under prefix in bucket.
func New(cfg tus.StoreConfig, client *minio.Client, bucket string, prefix string) (*Store, error) {
	base, err := tus.NewBaseStore(cfg, Extensions...)
	if err != nil {
		return nil, err
	}

	if client == nil || bucket == "" {
		return nil, errors.New("s3store: client and bucket are required")
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Store{
		BaseStore: base,
		client:    client,
		bucket:    bucket,
		prefix:    strings.TrimPrefix(prefix, "/"),
		locks:     lock.New(),
	}, nil
}

// EnsureBucket checks if a bucket exists, and creates it if it does not.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
		}
		slog.Info("Created bucket", "bucket", bucket)
	}
	return nil
}

func (s *Store) infoKey(id string) string {
	return s.prefix + id + infoSuffix
}

func (s *Store) partsPrefix(id string) string {
	return s.prefix + id + partsSuffix
}

func (s *Store) partKey(id string, offset int64) string {
	return fmt.Sprintf("%s%020d", s.partsPrefix(id), offset)
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\\")
}

// translate maps a missing object onto the protocol's not found error.
func translate(id string, err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("upload %q: %w", id, tus.ErrFileNotFound)
	}
	return err
}

func (s *Store) getInfo(ctx context.Context, id string) (*tus.Upload, error) {
	if !validID(id) {
		return nil, fmt.Errorf("invalid upload id %q: %w", id, tus.ErrFileNotFound)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.infoKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(id, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(id, err)
	}

	var upload tus.Upload
	if err := json.Unmarshal(data, &upload); err != nil {
		return nil, fmt.Errorf("decode upload %q: %w", id, err)
	}
	return &upload, nil
}

func (s *Store) putInfo(ctx context.Context, upload *tus.Upload) error {
	data, err := json.Marshal(upload)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.infoKey(upload.ID), strings.NewReader(string(data)), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("store upload %q: %w", upload.ID, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, spec tus.UploadSpec) (*tus.Upload, error) {
	upload, err := s.NewUpload(spec)
	if err != nil {
		return nil, err
	}

	if err := s.putInfo(ctx, upload); err != nil {
		return nil, err
	}

	slog.Debug("Created upload", "id", upload.ID, "bucket", s.bucket)
	s.Created(upload)
	return upload, nil
}

func (s *Store) Write(ctx context.Context, id string, offset int64, src io.Reader) (int64, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return 0, err
	}
	defer unlock()

	upload, err := s.getInfo(ctx, id)
	if err != nil {
		return 0, err
	}

	limit, err := tus.CheckWrite(upload, offset)
	if err != nil {
		return upload.Size, err
	}

	body := bufio.NewReader(tus.LimitBody(src, limit))
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		return offset, err
	}

	info, err := s.client.PutObject(ctx, s.bucket, s.partKey(id, offset), body, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		PartSize:    partSize,
	})
	if err != nil {
		// A failed PutObject stores nothing, so the offset is unchanged.
		return offset, fmt.Errorf("store chunk of %q: %w", id, err)
	}

	upload.Size = offset + info.Size
	if err := s.putInfo(context.WithoutCancel(ctx), upload); err != nil {
		_ = s.client.RemoveObject(context.WithoutCancel(ctx), s.bucket, s.partKey(id, offset), minio.RemoveObjectOptions{})
		return offset, err
	}

	s.Written(offset, upload)
	return upload.Size, nil
}

func (s *Store) GetOffset(ctx context.Context, id string) (*tus.Upload, error) {
	return s.getInfo(ctx, id)
}

func (s *Store) parts(ctx context.Context, id string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.partsPrefix(id), Recursive: true}) {
		if obj.Err != nil {
			return nil, translate(id, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *Store) Read(ctx context.Context, id string) (io.ReadCloser, error) {
	upload, err := s.getInfo(ctx, id)
	if err != nil {
		return nil, err
	}

	keys, err := s.parts(ctx, id)
	if err != nil {
		return nil, err
	}

	stream := &partReader{ctx: ctx, client: s.client, bucket: s.bucket, keys: keys}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(stream, upload.Size), stream}, nil
}

func (s *Store) DeclareLength(ctx context.Context, id string, length int64) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	upload, err := s.getInfo(ctx, id)
	if err != nil {
		return err
	}

	wasDeferred := upload.LengthDeferred
	if err := tus.DeclareLength(upload, length); err != nil {
		return err
	}

	if !wasDeferred {
		return nil
	}

	if err := s.putInfo(ctx, upload); err != nil {
		return err
	}

	s.LengthDeclared(upload)
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.getInfo(ctx, id); err != nil {
		return err
	}

	keys, err := s.parts(ctx, id)
	if err != nil {
		return err
	}

	// Record first: chunks without a record are unreachable.
	if err := s.client.RemoveObject(ctx, s.bucket, s.infoKey(id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove upload %q: %w", id, err)
	}

	for _, key := range keys {
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			slog.Warn("Failed to remove chunk", "id", id, "key", key, "error", err)
		}
	}

	slog.Debug("Removed upload", "id", id, "chunks", len(keys))
	s.Removed(id)
	return nil
}

// List returns up to limit uploads, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*tus.Upload, error) {
	var uploads []*tus.Upload
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}

		id, ok := strings.CutSuffix(strings.TrimPrefix(obj.Key, s.prefix), infoSuffix)
		if !ok || !validID(id) {
			continue
		}

		upload, err := s.getInfo(ctx, id)
		if errors.Is(err, tus.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}

	slices.SortFunc(uploads, func(a, b *tus.Upload) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(uploads) > limit {
		uploads = uploads[:limit]
	}
	return uploads, nil
}

// partReader streams a list of objects back to back, opening each one only
// when the previous one is exhausted.
type partReader struct {
	ctx    context.Context
	client *minio.Client
	bucket string
	keys   []string
	cur    *minio.Object
}

func (r *partReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if len(r.keys) == 0 {
				return 0, io.EOF
			}

			obj, err := r.client.GetObject(r.ctx, r.bucket, r.keys[0], minio.GetObjectOptions{})
			if err != nil {
				return 0, err
			}
			r.cur = obj
			r.keys = r.keys[1:]
		}

		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			_ = r.cur.Close()
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *partReader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}
