// Package config loads runtime configuration for the hammer CLI.
//
// # Sources and precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A YAML, JSON or TOML file, given with --config or found as config.yaml
//     in DefaultConfigPaths.
//  3. Environment variables named HAMMER_<SECTION>_<KEY>, for example
//     HAMMER_SERVER_ENDPOINT or HAMMER_CONTENT_S3_BUCKET.
//  4. Command-line flags listed in FlagKeys.
//
// # File layout
//
//	server:
//	  endpoint: https://storage.example.com
//	  transport: http        # or grpc
//	  timeout: 30s
//	storage:
//	  db: ~/.config/hammerspace/hammer.db
//	  cache_dir: ~/.cache/hammerspace
//	content:
//	  source: api            # or s3
//	  s3: {bucket: blobs, region: eu-west-1}
//	keys:
//	  max_depth: 64
//	  invalidate_on_sync: true
//	upload:
//	  max_bytes: 104857600
//	log:
//	  backend: slog          # or zap
//	  format: text           # or json
//	  level: info
//	  file: {path: "", max_size_mb: 10}
package config
