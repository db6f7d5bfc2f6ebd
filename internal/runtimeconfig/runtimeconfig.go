// Package runtimeconfig loads the tunables that govern the streaming
// manager, buffer pool, and HTTP byte source. It follows the same
// koanf-based default-then-override loading shape as go-musicfox's
// internal/configs/loader.go: start from compiled-in defaults, then layer a
// TOML file (or raw bytes) on top via koanf providers.
package runtimeconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"
)

// Config holds every tunable named across spec §4.1-4.3.
type Config struct {
	// Streaming manager queue discipline (spec §4.3).
	MaxQueuedChunks int `koanf:"max_queued_chunks"`
	MaxQueuedBytes  int `koanf:"max_queued_bytes"`
	MinQueuedChunks int `koanf:"min_queued_chunks"`
	MinQueuedBytes  int `koanf:"min_queued_bytes"`

	// Buffer pool (spec §4.2).
	PoolMaxTotalBytes int `koanf:"pool_max_total_bytes"`
	PoolBinCap        int `koanf:"pool_bin_cap"`

	// HTTP byte source (spec §4.1).
	HTTPTimeout        time.Duration `koanf:"http_timeout"`
	HTTPMaxRetries     int           `koanf:"http_max_retries"`
	HTTPRetryBackoff   time.Duration `koanf:"http_retry_backoff"`
	HTTPMaxConnsPerHost int          `koanf:"http_max_conns_per_host"`

	// Corruption recovery thresholds (spec §7).
	MaxConsecutiveCorruption int `koanf:"max_consecutive_corruption"`
}

// Default returns the compiled-in defaults matching the literal values named
// in spec.md §4.2-§4.3 and §7.
func Default() *Config {
	return &Config{
		MaxQueuedChunks:           32,
		MaxQueuedBytes:            1 << 20, // 1 MiB
		MinQueuedChunks:           4,
		MinQueuedBytes:            64 << 10, // 64 KiB
		PoolMaxTotalBytes:         64 << 20, // 64 MiB, host-tunable
		PoolBinCap:                64,
		HTTPTimeout:               10 * time.Second,
		HTTPMaxRetries:            3,
		HTTPRetryBackoff:          100 * time.Millisecond,
		HTTPMaxConnsPerHost:       1,
		MaxConsecutiveCorruption: 16,
	}
}

// Load layers an optional TOML file over the compiled-in defaults, the way
// configs.NewConfigFromTomlFile does for go-musicfox. A missing file is not
// an error — the defaults stand alone.
func Load(tomlPath string) (*Config, error) {
	k := koanf.New(".")

	def := Default()
	if err := k.Load(rawbytes.Provider(defaultsTOML(def)), toml.Parser()); err != nil {
		return nil, fmt.Errorf("runtimeconfig.Load: loading defaults: %w", err)
	}

	if tomlPath != "" {
		if err := k.Load(file.Provider(tomlPath), toml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("runtimeconfig.Load: loading %q: %w", tomlPath, err)
			}
		}
	}

	out := &Config{}
	unmarshalConf := koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result: out,
		},
	}
	if err := k.UnmarshalWithConf("", out, unmarshalConf); err != nil {
		return nil, fmt.Errorf("runtimeconfig.Load: unmarshal: %w", err)
	}
	return out, nil
}

// defaultsTOML renders cfg as a minimal TOML document so it can be fed
// through the same rawbytes+toml provider path as a user override file,
// keeping one code path for "defaults" and "overrides" instead of a second
// struct-reflection provider.
func defaultsTOML(cfg *Config) []byte {
	return []byte(fmt.Sprintf(`
max_queued_chunks = %d
max_queued_bytes = %d
min_queued_chunks = %d
min_queued_bytes = %d
pool_max_total_bytes = %d
pool_bin_cap = %d
http_timeout = %q
http_max_retries = %d
http_retry_backoff = %q
http_max_conns_per_host = %d
max_consecutive_corruption = %d
`,
		cfg.MaxQueuedChunks, cfg.MaxQueuedBytes, cfg.MinQueuedChunks, cfg.MinQueuedBytes,
		cfg.PoolMaxTotalBytes, cfg.PoolBinCap,
		cfg.HTTPTimeout.String(), cfg.HTTPMaxRetries, cfg.HTTPRetryBackoff.String(), cfg.HTTPMaxConnsPerHost,
		cfg.MaxConsecutiveCorruption,
	))
}
