package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DatabaseURL    string        // DOCSYNC_DATABASE_URL (required)
	SearchURL      string        // DOCSYNC_SEARCH_URL (default "http://localhost:9200"; "mem://" = in-process)
	DefaultIndex   string        // DOCSYNC_DEFAULT_INDEX (default "docsync")
	ChunkSize      int           // DOCSYNC_CHUNK_SIZE (default 500)
	ExcludedModels []string      // DOCSYNC_EXCLUDED_MODELS (comma-separated labels)
	NATSURL        string        // DOCSYNC_NATS_URL (optional, empty = no events)
	GRPCAddr       string        // DOCSYNC_GRPC_ADDR (default ":9090")
	SyncInterval   time.Duration // DOCSYNC_SYNC_INTERVAL (default 10m; 0 = sync once)

	// IndexSettings maps logical index names to their desired settings,
	// read from DOCSYNC_SETTINGS_FILE.
	IndexSettings map[string]map[string]any

	// Export settings
	ExportS3Bucket   string // DOCSYNC_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Key      string // DOCSYNC_EXPORT_S3_KEY (default "docsync/{date}.jsonl")
	ExportS3Region   string // DOCSYNC_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Endpoint string // DOCSYNC_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
}

// MemorySearch reports whether SearchURL selects the in-process store.
func (c *Config) MemorySearch() bool {
	return strings.HasPrefix(c.SearchURL, "mem://")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("DOCSYNC_DATABASE_URL"),
		SearchURL:        envOrDefault("DOCSYNC_SEARCH_URL", "http://localhost:9200"),
		DefaultIndex:     envOrDefault("DOCSYNC_DEFAULT_INDEX", "docsync"),
		ExcludedModels:   splitList(os.Getenv("DOCSYNC_EXCLUDED_MODELS")),
		NATSURL:          os.Getenv("DOCSYNC_NATS_URL"),
		GRPCAddr:         envOrDefault("DOCSYNC_GRPC_ADDR", ":9090"),
		ExportS3Bucket:   os.Getenv("DOCSYNC_EXPORT_S3_BUCKET"),
		ExportS3Key:      envOrDefault("DOCSYNC_EXPORT_S3_KEY", "docsync/{date}.jsonl"),
		ExportS3Region:   envOrDefault("DOCSYNC_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint: os.Getenv("DOCSYNC_EXPORT_S3_ENDPOINT"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("DOCSYNC_DATABASE_URL is required")
	}

	chunk, err := strconv.Atoi(envOrDefault("DOCSYNC_CHUNK_SIZE", "500"))
	if err != nil {
		return nil, fmt.Errorf("DOCSYNC_CHUNK_SIZE: %w", err)
	}
	if chunk <= 0 {
		return nil, fmt.Errorf("DOCSYNC_CHUNK_SIZE must be positive, got %d", chunk)
	}
	c.ChunkSize = chunk

	d, err := time.ParseDuration(envOrDefault("DOCSYNC_SYNC_INTERVAL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("DOCSYNC_SYNC_INTERVAL: %w", err)
	}
	c.SyncInterval = d

	if path := os.Getenv("DOCSYNC_SETTINGS_FILE"); path != "" {
		settings, err := LoadSettings(path)
		if err != nil {
			return nil, fmt.Errorf("DOCSYNC_SETTINGS_FILE: %w", err)
		}
		c.IndexSettings = settings
	}

	return c, nil
}

type settingsFile struct {
	Indexes map[string]map[string]any `toml:"indexes"`
}

// LoadSettings reads per-index settings from a TOML file of the form
//
//	[indexes.docsync.index]
//	number_of_replicas = 2
func LoadSettings(path string) (map[string]map[string]any, error) {
	var f settingsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, err
	}
	if f.Indexes == nil {
		f.Indexes = map[string]map[string]any{}
	}
	return f.Indexes, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
