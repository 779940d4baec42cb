// Package config provides configuration loading for ragd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, VECTORSTORE_COLLECTION, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from an optional YAML file, then overrides with
// environment variables. An empty configPath skips the file step.
//
// Environment variables use underscore separator and are uppercased. The
// transformer splits on the first underscore into section and field:
//
//	SERVER_PORT              -> server.port
//	EMBEDDINGS_BASE_URL      -> embeddings.base_url
//	VECTORSTORE_COLLECTION   -> vectorstore.collection
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// knownSections limits env loading to ragd's own namespace so unrelated
// process environment (PATH, HOME, ...) never leaks into the config map.
var knownSections = map[string]bool{
	"server":      true,
	"logging":     true,
	"embeddings":  true,
	"vectorstore": true,
	"providers":   true,
	"query":       true,
	"ingest":      true,
}

// envTransform maps environment variable names to config keys.
// Split on first underscore only: section.field_name.
func envTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 || !knownSections[parts[0]] {
		return "" // skip unrelated environment variables
	}
	return parts[0] + "." + parts[1]
}
