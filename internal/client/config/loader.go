package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: server.endpoint is read from
// HAMMER_SERVER_ENDPOINT.
const EnvPrefix = "HAMMER"

// FlagKeys maps command-line flag names to the settings they override.
var FlagKeys = map[string]string{
	"server":    "server.endpoint",
	"transport": "server.transport",
	"db":        "storage.db",
	"cache-dir": "storage.cache_dir",
	"log-level": "log.level",
}

// DefaultConfigPaths returns the directories searched for config.yaml when
// no file is given explicitly.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "hammerspace"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".hammerspace"))
	}
	return paths
}

func setDefaults(v *viper.Viper) {
	var d Config
	d.LoadDefaults()

	v.SetDefault("server.endpoint", d.Server.Endpoint)
	v.SetDefault("server.transport", d.Server.Transport)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("storage.db", d.Storage.DB)
	v.SetDefault("storage.cache_dir", d.Storage.CacheDir)
	v.SetDefault("content.source", d.Content.Source)
	v.SetDefault("content.s3.bucket", "")
	v.SetDefault("content.s3.region", "")
	v.SetDefault("content.s3.endpoint", "")
	v.SetDefault("content.s3.prefix", "")
	v.SetDefault("content.s3.access_key", "")
	v.SetDefault("content.s3.secret_key", "")
	v.SetDefault("keys.max_depth", d.Keys.MaxDepth)
	v.SetDefault("keys.invalidate_on_sync", d.Keys.InvalidateOnSync)
	v.SetDefault("upload.max_bytes", d.Upload.MaxBytes)
	v.SetDefault("log.backend", d.Log.Backend)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file.path", d.Log.File.Path)
	v.SetDefault("log.file.max_size_mb", d.Log.File.MaxSizeMB)
	v.SetDefault("log.file.max_backups", d.Log.File.MaxBackups)
	v.SetDefault("log.file.max_age_days", d.Log.File.MaxAgeDays)
	v.SetDefault("log.file.compress", d.Log.File.Compress)
}

// LoadConfig builds a Config from defaults, then the config file, then
// HAMMER_* environment variables, then the flags in FlagKeys that were set
// on fs. Later sources take precedence. With an empty path a config.yaml is
// looked up in DefaultConfigPaths and may be absent; an explicit path must
// exist. fs may be nil.
func LoadConfig(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if fs != nil {
		for name, key := range FlagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
