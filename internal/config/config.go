// Package config loads the indexer's runtime configuration: RPC endpoint,
// store location, fetcher parallelism, and which sub-indexers to run.
//
// CLI argument parsing is out of scope for this package — it only reads
// environment variables (via envconfig struct tags) and, if present, a
// YAML overlay file. main.go decides whether to point it at a config
// file; config.Load never looks one up on its own initiative.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the root configuration object. Zero value is not meaningful;
// use Load or Default.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	RPC     RPCConfig     `yaml:"rpc"`
	Store   StoreConfig   `yaml:"store"`
	Fetcher FetcherConfig `yaml:"fetcher"`
	Index   IndexConfig   `yaml:"index"`
	API     APIConfig     `yaml:"api"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
}

// RPCConfig describes how to reach the upstream full node. Connection
// pooling, retries, and the wire protocol itself are internal/nodeclient's
// concern; this is just the dial target.
type RPCConfig struct {
	Host string `yaml:"host" envconfig:"RPC_HOST"`
	User string `yaml:"user" envconfig:"RPC_USER"`
	Pass string `yaml:"pass" envconfig:"RPC_PASS"`
	TLS  bool   `yaml:"tls" envconfig:"RPC_TLS"`
}

type StoreConfig struct {
	Directory     string `yaml:"dir" envconfig:"STORE_DIR"`
	SchemaVersion uint32 `yaml:"-"` // fixed by internal/store, not configurable
}

// FetcherConfig bounds the block-download pipeline.
type FetcherConfig struct {
	Parallelism int `yaml:"parallelism" envconfig:"FETCHER_PARALLELISM"`
}

// IndexConfig toggles which sub-indexers the updater runs. Sat tracking
// always runs since the other three key off satpoints.
type IndexConfig struct {
	Dunes        bool `yaml:"indexDunes" envconfig:"INDEX_DUNES"`
	Inscriptions bool `yaml:"indexInscriptions" envconfig:"INDEX_INSCRIPTIONS"`
	Drc20        bool `yaml:"indexDrc20" envconfig:"INDEX_DRC20"`
}

// APIConfig addresses the read API listener; /metrics is served from
// the same router.
type APIConfig struct {
	ListenAddress string `yaml:"listenAddress" envconfig:"API_LISTEN_ADDRESS"`
}

// Default returns the baseline configuration before env/YAML overlays
// are applied.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		RPC: RPCConfig{
			Host: "localhost:22555", // Dogecoin Core's default RPC port
		},
		Store: StoreConfig{
			Directory:     "./.dogeindexer",
			SchemaVersion: SchemaVersion,
		},
		Fetcher: FetcherConfig{
			Parallelism: 8,
		},
		Index: IndexConfig{
			Dunes:        true,
			Inscriptions: true,
			Drc20:        true,
		},
		API: APIConfig{
			ListenAddress: ":5339",
		},
	}
}

// SchemaVersion is the current on-disk layout version. internal/store
// refuses to open a database written by any other version.
const SchemaVersion uint32 = 6

// Load builds a Config by starting from Default, optionally overlaying a
// YAML file at yamlPath (skipped if empty or missing), then applying
// environment variables, which always win.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
			}
		case os.IsNotExist(err):
			// Optional overlay; absence is not an error.
		default:
			return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: env overlay: %w", err)
	}
	cfg.Store.SchemaVersion = SchemaVersion

	if cfg.Fetcher.Parallelism <= 0 {
		cfg.Fetcher.Parallelism = 1
	}
	return cfg, nil
}
