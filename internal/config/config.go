// Package config loads the server configuration from a file, the environment
// and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resumable/internal/auth"

	"github.com/spf13/viper"
)

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`

	// Caller adds the source location to every record.
	Caller bool `mapstructure:"caller" yaml:"caller"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gte=0"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `mapstructure:"tls_cert" yaml:"tls_cert" validate:"required_with=TLSKey"`
	TLSKey  string `mapstructure:"tls_key" yaml:"tls_key" validate:"required_with=TLSCert"`

	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// AuthConfig protects the server with HTTP Basic or bearer token
// authentication. It is disabled while no users and tokens are configured.
type AuthConfig struct {
	Realm  string            `mapstructure:"realm" yaml:"realm" validate:"required"`
	Users  []auth.Credential `mapstructure:"users" yaml:"users" validate:"dive"`
	Tokens []auth.Token      `mapstructure:"tokens" yaml:"tokens" validate:"dive"`
}

type ProtocolConfig struct {
	// Path is the collection path uploads are created under.
	Path string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`

	// BasePath is the prefix the server is mounted under behind a proxy.
	BasePath string `mapstructure:"base_path" yaml:"base_path" validate:"omitempty,startswith=/"`

	// PublicSite replaces scheme and host of Location URLs.
	PublicSite string `mapstructure:"public_site" yaml:"public_site" validate:"omitempty,url"`

	RelativeLocation bool     `mapstructure:"relative_location" yaml:"relative_location"`
	ForwardedHeaders bool     `mapstructure:"forwarded_headers" yaml:"forwarded_headers"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins" validate:"dive,url"`
	MaxSize          int64    `mapstructure:"max_size" yaml:"max_size" validate:"gte=0"`
	MaxChunkSize     int64    `mapstructure:"max_chunk_size" yaml:"max_chunk_size" validate:"gte=0"`
	IDGenerator      string   `mapstructure:"id_generator" yaml:"id_generator" validate:"oneof=token uuid"`
}

type StoreConfig struct {
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=file memory s3"`

	// DataDir holds payloads and the index of the file store.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	File map[string]any `mapstructure:"file" yaml:"file"`
	S3   map[string]any `mapstructure:"s3" yaml:"s3"`
}

const (
	EnvPrefix      = "RESUMABLE"
	configName     = "resumable"
	defaultListen  = "127.0.0.1:1080"
	defaultPath    = "/files"
	defaultDataDir = "./files"
)

// DefaultMaxChunkSize bounds a single request body unless configured
// otherwise.
const DefaultMaxChunkSize = 2 << 20

var defaults = map[string]any{
	"logging.level":              "info",
	"logging.caller":             false,
	"server.listen":              defaultListen,
	"server.shutdown_timeout":    30 * time.Second,
	"server.read_timeout":        0,
	"server.write_timeout":       0,
	"server.tls_cert":            "",
	"server.tls_key":             "",
	"server.auth.realm":          "resumable",
	"protocol.path":              defaultPath,
	"protocol.base_path":         "",
	"protocol.public_site":       "",
	"protocol.relative_location": false,
	"protocol.forwarded_headers": false,
	"protocol.allowed_origins":   []string{},
	"protocol.max_size":          0,
	"protocol.max_chunk_size":    DefaultMaxChunkSize,
	"protocol.id_generator":      "token",
	"store.type":                 "file",
	"store.data_dir":             defaultDataDir,
	"store.file.index":           "sqlite",
	"store.s3.endpoint":          "",
	"store.s3.access_key":        "",
	"store.s3.secret_key":        "",
	"store.s3.region":            "",
	"store.s3.bucket":            "",
	"store.s3.prefix":            "",
	"store.s3.secure":            false,
	"store.s3.path_style":        false,
}

// aliases binds environment names understood by earlier deployments.
var aliases = map[string]string{
	"protocol.public_site": "TUS_PUBLIC_SITE",
	"protocol.path":        "TUS_PUBLIC_PATH",
	"store.data_dir":       "TUS_LOCAL_PATH",
}

// Load reads the configuration file at configPath, or resumable.{yaml,toml,json}
// from the working or config directory when configPath is empty, and overlays
// RESUMABLE_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	normalize(&cfg)
	return &cfg
}

func setupViper(v *viper.Viper, configPath string) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range aliases {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envKey, alias)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.AddConfigPath(ConfigDir())
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Store.Type = strings.ToLower(cfg.Store.Type)
	cfg.Protocol.IDGenerator = strings.ToLower(cfg.Protocol.IDGenerator)

	if cfg.Protocol.Path != "/" {
		cfg.Protocol.Path = strings.TrimSuffix(cfg.Protocol.Path, "/")
	}
	cfg.Protocol.BasePath = strings.TrimSuffix(cfg.Protocol.BasePath, "/")
	cfg.Protocol.PublicSite = strings.TrimSuffix(cfg.Protocol.PublicSite, "/")

	if cfg.Store.File == nil {
		cfg.Store.File = make(map[string]any)
	}
	if cfg.Store.S3 == nil {
		cfg.Store.S3 = make(map[string]any)
	}
}

// ConfigDir is the per-user directory searched for a configuration file.
func ConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, configName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", configName)
}
