package config

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// EnvMapping ties an environment variable to a koanf path.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
	Sensitive  bool
}

var (
	cachedMappings []EnvMapping
	mappingsOnce   sync.Once
)

// EnvMappings returns every env-tagged field of Config, sorted by variable name.
func EnvMappings() []EnvMapping {
	mappingsOnce.Do(func() {
		cachedMappings = walkEnvTags(reflect.TypeOf(Config{}), "")
		sort.Slice(cachedMappings, func(i, j int) bool {
			return cachedMappings[i].EnvVar < cachedMappings[j].EnvVar
		})
	})
	return cachedMappings
}

func walkEnvTags(t reflect.Type, prefix string) []EnvMapping {
	var out []EnvMapping
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("koanf")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if env := field.Tag.Get("env"); env != "" && env != "-" {
			out = append(out, EnvMapping{
				EnvVar:     env,
				ConfigPath: path,
				Sensitive:  field.Type == reflect.TypeOf(SensitiveString("")) || field.Tag.Get("sensitive") == "true",
			})
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			out = append(out, walkEnvTags(field.Type, path)...)
		}
	}
	return out
}

// EnvToConfigPath maps environment variable names to koanf paths.
func EnvToConfigPath() map[string]string {
	mappings := EnvMappings()
	result := make(map[string]string, len(mappings))
	for _, m := range mappings {
		result[m.EnvVar] = m.ConfigPath
	}
	return result
}

// EnvVarFor returns the environment variable bound to a config path, if any.
func EnvVarFor(configPath string) string {
	for _, m := range EnvMappings() {
		if m.ConfigPath == configPath {
			return m.EnvVar
		}
	}
	return ""
}

// IsSensitivePath reports whether the value at configPath is a secret.
func IsSensitivePath(configPath string) bool {
	configPath = strings.TrimSpace(configPath)
	for _, m := range EnvMappings() {
		if m.ConfigPath == configPath {
			return m.Sensitive
		}
	}
	return false
}
