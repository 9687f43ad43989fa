// Package config provides YAML-based configuration for the server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Query   QueryConfig   `yaml:"query"`
	Agent   AgentConfig   `yaml:"agent"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`
}

// StorageConfig contains metadata-store and columnar-store settings.
type StorageConfig struct {
	DataDirectory  string `yaml:"data_directory"`
	StoreDirectory string `yaml:"store_directory"`
	TempDirectory  string `yaml:"temp_directory"`
	MetadataPath   string `yaml:"metadata_path"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	MaxRows        int64  `yaml:"max_rows"`
	// PartitionRowThreshold is the minimum row count before a file with a
	// date column is written as date-partitioned parquet.
	PartitionRowThreshold int64 `yaml:"partition_row_threshold"`
	SampleRows            int   `yaml:"sample_rows"`
}

// QueryConfig contains query-engine limits.
type QueryConfig struct {
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	MaxResultRows   int    `yaml:"max_result_rows"`
	HandleTTL       int    `yaml:"handle_ttl_minutes"`
	DuckDBThreads   int    `yaml:"duckdb_threads"`
	DuckDBMemoryCap string `yaml:"duckdb_memory_limit"`
}

// AgentConfig contains LLM settings.
type AgentConfig struct {
	Model          string `yaml:"model"`
	MaxTokens      int64  `yaml:"max_tokens"`
	HistoryWindow  int    `yaml:"history_window"`
	MaxSuggestions int    `yaml:"max_suggestions"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	Level                string `yaml:"level"` // debug | info | warn | error
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "http://localhost:5173,http://localhost:3000",
			ReadTimeout:  30,
			WriteTimeout: 60,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Storage: StorageConfig{
			DataDirectory:         "./data",
			StoreDirectory:        "./data/store",
			TempDirectory:         "./data/temp",
			MetadataPath:          "./data/metadata.db",
			MaxUploadBytes:        512 << 20,
			MaxRows:               10_000_000,
			PartitionRowThreshold: 100_000,
			SampleRows:            1000,
		},
		Query: QueryConfig{
			TimeoutSeconds:  30,
			MaxResultRows:   10_000,
			HandleTTL:       30,
			DuckDBThreads:   4,
			DuckDBMemoryCap: "1GB",
		},
		Agent: AgentConfig{
			Model:          "claude-3-5-haiku-20241022",
			MaxTokens:      4096,
			HistoryWindow:  3,
			MaxSuggestions: 4,
		},
		Logging: LoggingConfig{
			Level:                "info",
			EnableRequestLogging: true,
		},
	}
}

// Load reads a YAML config file, applying defaults for missing fields.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Query.TimeoutSeconds < 1 {
		return fmt.Errorf("query.timeout_seconds must be positive")
	}
	if c.Query.MaxResultRows < 1 {
		return fmt.Errorf("query.max_result_rows must be positive")
	}
	if c.Storage.SampleRows < 1 {
		return fmt.Errorf("storage.sample_rows must be positive")
	}
	return nil
}

// EnsureDirectories creates all configured data directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.StoreDirectory,
		c.Storage.TempDirectory,
		filepath.Dir(c.Storage.MetadataPath),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}

// GetServerAddr returns the listen address.
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// QueryTimeout returns the per-query wall-clock bound.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Query.TimeoutSeconds) * time.Second
}
