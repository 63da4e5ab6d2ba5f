package config

import (
	"fmt"

	"resumable/internal/storage/s3store"

	"github.com/mitchellh/mapstructure"
)

// FileStoreOptions are the settings below store.file.
type FileStoreOptions struct {
	// Index selects the upload record index.
	Index string `mapstructure:"index" validate:"oneof=sqlite badger"`

	// IndexPath overrides the location of the index inside the data
	// directory.
	IndexPath string `mapstructure:"index_path"`
}

// FileOptions decodes the file store settings of cfg.
func FileOptions(cfg *Config) (FileStoreOptions, error) {
	var opts FileStoreOptions
	if err := mapstructure.Decode(cfg.Store.File, &opts); err != nil {
		return opts, fmt.Errorf("failed to decode store.file: %w", err)
	}

	if opts.Index == "" {
		opts.Index = "sqlite"
	}

	if err := validate.Struct(opts); err != nil {
		return opts, fmt.Errorf("store.file: %w", formatValidationError(err))
	}
	return opts, nil
}

// S3Options decodes the S3 store settings of cfg.
func S3Options(cfg *Config) (s3store.Options, error) {
	var opts s3store.Options

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return opts, err
	}

	if err := decoder.Decode(cfg.Store.S3); err != nil {
		return opts, fmt.Errorf("failed to decode store.s3: %w", err)
	}

	if err := validate.Struct(opts); err != nil {
		return opts, fmt.Errorf("store.s3: %w", formatValidationError(err))
	}
	return opts, nil
}
