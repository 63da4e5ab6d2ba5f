package config

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// Dump writes cfg to w as YAML. Secrets are masked.
func Dump(w io.Writer, cfg *Config) error {
	out := *cfg
	out.Store.S3 = maps.Clone(cfg.Store.S3)
	if secret, ok := out.Store.S3["secret_key"].(string); ok && secret != "" {
		out.Store.S3["secret_key"] = redacted
	}

	out.Server.Auth.Users = slices.Clone(cfg.Server.Auth.Users)
	for i := range out.Server.Auth.Users {
		out.Server.Auth.Users[i].Password = redacted
	}
	out.Server.Auth.Tokens = slices.Clone(cfg.Server.Auth.Tokens)
	for i := range out.Server.Auth.Tokens {
		out.Server.Auth.Tokens[i].Token = redacted
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
