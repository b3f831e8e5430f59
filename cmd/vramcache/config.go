package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/vramcache/blobstore"
	blobminio "github.com/hupe1980/vramcache/blobstore/minio"
	blobs3 "github.com/hupe1980/vramcache/blobstore/s3"
	"github.com/hupe1980/vramcache/codec"
	"github.com/hupe1980/vramcache/source"
)

// Config is the JSON configuration file of the tool.
type Config struct {
	// Settings is a settings.Open URI. The budget is read from and saved there.
	Settings string `json:"settings"`
	// MaxBytes overrides the saved budget for a single run.
	MaxBytes *int64 `json:"max_bytes,omitempty"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	Source StoreConfig `json:"source"`
	// Output receives computed images. Defaults to Source.
	Output *StoreConfig `json:"output,omitempty"`

	Throttle           source.ThrottleConfig `json:"throttle"`
	MaxConcurrentLoads int                   `json:"max_concurrent_loads"`
}

// StoreConfig selects a blob store.
type StoreConfig struct {
	Type     string `json:"type"` // local, memory, minio, s3
	Root     string `json:"root,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	MinIO *blobminio.Config `json:"minio,omitempty"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Settings:  "vramcache-settings.json",
		LogLevel:  "info",
		LogFormat: "text",
		Source:    StoreConfig{Type: "local", Root: "."},
	}
}

// LoadConfig reads path over DefaultConfig. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := codec.Default.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.MaxBytes != nil && *c.MaxBytes < 0 {
		return fmt.Errorf("max_bytes must not be negative")
	}
	if c.MaxConcurrentLoads < 0 {
		return fmt.Errorf("max_concurrent_loads must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	if err := c.Source.validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if c.Output != nil {
		if err := c.Output.validate(); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Type {
	case "", "local", "memory":
		return nil
	case "minio":
		if s.MinIO == nil {
			return fmt.Errorf("minio store needs a minio section")
		}
		return nil
	case "s3":
		if s.Bucket == "" {
			return fmt.Errorf("s3 store needs a bucket")
		}
		return nil
	}
	return fmt.Errorf("unknown store type %q", s.Type)
}

// OpenStore creates the blob store described by s.
func OpenStore(ctx context.Context, s StoreConfig) (blobstore.BlobStore, error) {
	switch s.Type {
	case "", "local":
		root := s.Root
		if root == "" {
			root = "."
		}
		return blobstore.NewLocalStore(root), nil
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "minio":
		if s.MinIO == nil {
			return nil, fmt.Errorf("minio store needs a minio section")
		}
		return blobminio.Dial(ctx, *s.MinIO)
	case "s3":
		var opts []blobs3.Option
		if s.Prefix != "" {
			opts = append(opts, blobs3.WithPrefix(s.Prefix))
		}
		if s.Region != "" {
			opts = append(opts, blobs3.WithRegion(s.Region))
		}
		if s.Endpoint != "" {
			opts = append(opts, blobs3.WithEndpoint(s.Endpoint))
		}
		return blobs3.New(ctx, s.Bucket, opts...)
	}
	return nil, fmt.Errorf("unknown store type %q", s.Type)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log_level %q", s)
}
