package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/hammerspace/internal/client/blobstore"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"

	SourceAPI = "api"
	SourceS3  = "s3"
)

type ServerConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Transport string        `mapstructure:"transport"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	DB       string `mapstructure:"db"`
	CacheDir string `mapstructure:"cache_dir"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// ContentConfig selects where ciphertext is downloaded from. Tree and key
// operations always go to the server.
type ContentConfig struct {
	Source string   `mapstructure:"source"`
	S3     S3Config `mapstructure:"s3"`
}

type KeysConfig struct {
	MaxDepth         int  `mapstructure:"max_depth"`
	InvalidateOnSync bool `mapstructure:"invalidate_on_sync"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type LogConfig struct {
	Backend string        `mapstructure:"backend"`
	Format  string        `mapstructure:"format"`
	Level   string        `mapstructure:"level"`
	File    LogFileConfig `mapstructure:"file"`
}

// Config holds runtime settings for the hammer CLI.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Content ContentConfig `mapstructure:"content"`
	Keys    KeysConfig    `mapstructure:"keys"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Log     LogConfig     `mapstructure:"log"`
}

func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "hammerspace")
	}
	return ".hammerspace"
}

func cacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "hammerspace")
	}
	return filepath.Join(".hammerspace", "cache")
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Server = ServerConfig{
		Endpoint:  "http://127.0.0.1:8080",
		Transport: TransportHTTP,
		Timeout:   30 * time.Second,
	}
	c.Storage = StorageConfig{
		DB:       filepath.Join(dataDir(), "hammer.db"),
		CacheDir: cacheDir(),
	}
	c.Content = ContentConfig{Source: SourceAPI}
	c.Keys = KeysConfig{MaxDepth: 64, InvalidateOnSync: true}
	c.Upload = UploadConfig{MaxBytes: 100 << 20}
	c.Log = LogConfig{
		Backend: logging.BackendSlog,
		Format:  logging.FormatText,
		Level:   "info",
		File:    LogFileConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Server.Endpoint == "":
		return fmt.Errorf("%w: server.endpoint is empty", ErrInvalidConfig)
	case c.Server.Transport != TransportHTTP && c.Server.Transport != TransportGRPC:
		return fmt.Errorf("%w: unknown server.transport %q", ErrInvalidConfig, c.Server.Transport)
	case c.Server.Timeout <= 0:
		return fmt.Errorf("%w: server.timeout must be positive", ErrInvalidConfig)
	case c.Storage.DB == "":
		return fmt.Errorf("%w: storage.db is empty", ErrInvalidConfig)
	case c.Storage.CacheDir == "":
		return fmt.Errorf("%w: storage.cache_dir is empty", ErrInvalidConfig)
	case c.Content.Source != SourceAPI && c.Content.Source != SourceS3:
		return fmt.Errorf("%w: unknown content.source %q", ErrInvalidConfig, c.Content.Source)
	case c.Content.Source == SourceS3 && c.Content.S3.Bucket == "":
		return fmt.Errorf("%w: content.s3.bucket is required for the s3 source", ErrInvalidConfig)
	case c.Keys.MaxDepth <= 0:
		return fmt.Errorf("%w: keys.max_depth must be positive", ErrInvalidConfig)
	case c.Upload.MaxBytes <= 0:
		return fmt.Errorf("%w: upload.max_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c LogConfig) Logging() logging.Config {
	return logging.Config{
		Backend: c.Backend,
		Format:  c.Format,
		Level:   c.Level,
		File: logging.FileConfig{
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
			Compress:   c.File.Compress,
		},
	}
}

func (c S3Config) Blobstore() blobstore.Config {
	return blobstore.Config{
		Bucket:    c.Bucket,
		Region:    c.Region,
		Endpoint:  c.Endpoint,
		Prefix:    c.Prefix,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
	}
}
