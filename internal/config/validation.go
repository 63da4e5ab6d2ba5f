package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its struct tags and the rules that span
// several fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Protocol.MaxSize > 0 && cfg.Protocol.MaxChunkSize > cfg.Protocol.MaxSize {
		return fmt.Errorf("protocol.max_chunk_size (%d) must not exceed protocol.max_size (%d)",
			cfg.Protocol.MaxChunkSize, cfg.Protocol.MaxSize)
	}

	switch cfg.Store.Type {
	case "file":
		if cfg.Store.DataDir == "" {
			return errors.New("store.data_dir: required for the file store")
		}
		if _, err := FileOptions(cfg); err != nil {
			return err
		}
	case "s3":
		if _, err := S3Options(cfg); err != nil {
			return err
		}
	}

	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		if field == "" {
			field = fe.Field()
		}
		if fe.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s: failed %q (%s)", field, fe.Tag(), fe.Param()))
		} else {
			messages = append(messages, fmt.Sprintf("%s: failed %q", field, fe.Tag()))
		}
	}

	return errors.New(strings.Join(messages, "; "))
}
