package config

import (
	"fmt"
	"maps"
	"strings"
)

// envProvider marks the environment layer in a source list.
// The actual environment loading is handled by koanf's native env provider in loader.go.
type envProvider struct{}

// NewEnvProvider creates a new environment variable configuration source.
func NewEnvProvider() Source {
	return &envProvider{}
}

// Load returns empty map as environment loading is handled natively by koanf.
func (e *envProvider) Load() (map[string]any, error) {
	return make(map[string]any), nil
}

// Type returns the source type identifier.
func (e *envProvider) Type() SourceType {
	return SourceEnv
}

// cliProvider implements Source interface for CLI flags.
type cliProvider struct {
	flags map[string]any
}

// CLIFlagPaths maps root command flag names to configuration paths.
var CLIFlagPaths = map[string]string{
	"client":         "client.default",
	"base-url":       "rest.base_url",
	"server-address": "grpc.server_address",
	"service-name":   "grpc.service_name",
	"timeout":        "rest.timeout",
	"grpc-timeout":   "grpc.timeout",
	"oauth":          "rest.oauth",
	"cache":          "cache.enabled",
	"log-level":      "logging.level",
	"log-json":       "logging.json",
}

// NewCLIProvider creates a new CLI flags configuration source.
// Only flags listed in CLIFlagPaths are applied.
func NewCLIProvider(flags map[string]any) Source {
	return &cliProvider{
		flags: flags,
	}
}

// Load returns the CLI flags as configuration data.
func (c *cliProvider) Load() (map[string]any, error) {
	config := make(map[string]any)
	for key, value := range c.flags {
		path, ok := CLIFlagPaths[key]
		if !ok {
			continue
		}
		if err := setNested(config, path, value); err != nil {
			return nil, fmt.Errorf("failed to set CLI flag %s: %w", key, err)
		}
	}
	return config, nil
}

// Type returns the source type identifier.
func (c *cliProvider) Type() SourceType {
	return SourceCLI
}

// mapProvider serves a nested or dot-keyed map, typically built in code.
type mapProvider struct {
	data map[string]any
}

// NewMapProvider creates a configuration source from a map.
// Keys may be nested maps or dot-separated paths.
func NewMapProvider(data map[string]any) Source {
	return &mapProvider{data: maps.Clone(data)}
}

func (m *mapProvider) Load() (map[string]any, error) {
	config := make(map[string]any)
	for key, value := range m.data {
		if !strings.Contains(key, ".") {
			config[key] = value
			continue
		}
		if err := setNested(config, key, value); err != nil {
			return nil, err
		}
	}
	return config, nil
}

func (m *mapProvider) Type() SourceType {
	return SourceMap
}

// defaultProvider implements Source interface for default values.
type defaultProvider struct{}

// NewDefaultProvider creates a new default configuration source.
func NewDefaultProvider() Source {
	return &defaultProvider{}
}

// Load returns the default configuration as a map.
func (d *defaultProvider) Load() (map[string]any, error) {
	cfg := Default()
	return map[string]any{
		"client": map[string]any{"default": cfg.Client.Default},
		"rest": map[string]any{
			"timeout": cfg.REST.Timeout,
		},
		"grpc": map[string]any{
			"server_address": cfg.GRPC.ServerAddress,
			"service_name":   cfg.GRPC.ServiceName,
			"timeout":        cfg.GRPC.Timeout,
		},
		"cache": map[string]any{
			"driver":       cfg.Cache.Driver,
			"response_ttl": cfg.Cache.ResponseTTL,
		},
	}, nil
}

// Type returns the source type identifier.
func (d *defaultProvider) Type() SourceType {
	return SourceDefault
}

// setNested sets a value in a nested map structure using dot notation.
// It returns an error if a path conflict is encountered.
func setNested(m map[string]any, path string, value any) error {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	current := m
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return fmt.Errorf("configuration conflict: key %q is not a map", strings.Join(parts[:i+1], "."))
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return nil
}
