package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "REMOTEQ_"

// loader implements the Service interface for configuration management.
type loader struct {
	koanf      *koanf.Koanf
	validator  *validator.Validate
	metadata   Metadata
	metadataMu sync.RWMutex
}

// sensitiveStringDecodeHook is a mapstructure decode hook that converts strings to SensitiveString
func sensitiveStringDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}

// NewService creates a new configuration service with validation support.
func NewService() Service {
	return &loader{
		koanf:     koanf.New("."),
		validator: validator.New(),
		metadata:  Metadata{Sources: make(map[string]SourceType)},
	}
}

// Load applies defaults, then sources in order, then REMOTEQ_* environment variables.
// Later layers win.
func (l *loader) Load(_ context.Context, sources ...Source) (*Config, error) {
	l.reset()
	if err := l.loadDefaults(); err != nil {
		return nil, err
	}
	for _, source := range sources {
		if source == nil || source.Type() == SourceEnv {
			continue
		}
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}
	if err := l.loadEnvironment(); err != nil {
		return nil, err
	}
	return l.unmarshalAndValidate()
}

func (l *loader) reset() {
	l.koanf = koanf.New(".")
	l.metadataMu.Lock()
	l.metadata.Sources = make(map[string]SourceType)
	l.metadata.LoadedAt = time.Now()
	l.metadataMu.Unlock()
}

func (l *loader) loadDefaults() error {
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	for _, key := range l.koanf.Keys() {
		l.trackSource(key, SourceDefault)
	}
	return nil
}

// loadEnvironment reads only variables declared through env struct tags.
func (l *loader) loadEnvironment() error {
	envToPath := EnvToConfigPath()
	return l.trackChanges(SourceEnv, func() error {
		err := l.koanf.Load(env.Provider(".", env.Opt{
			Prefix: envPrefix,
			TransformFunc: func(key string, value string) (string, any) {
				path, ok := envToPath[key]
				if !ok {
					return "", nil
				}
				return path, value
			},
		}), nil)
		if err != nil {
			return fmt.Errorf("failed to load environment variables: %w", err)
		}
		return nil
	})
}

func (l *loader) loadSource(source Source) error {
	data, err := source.Load()
	if err != nil {
		return fmt.Errorf("failed to load from source %s: %w", source.Type(), err)
	}
	if len(data) == 0 {
		return nil
	}
	return l.trackChanges(source.Type(), func() error {
		for key, value := range flattenMap("", data) {
			if err := l.koanf.Set(key, value); err != nil {
				return fmt.Errorf("failed to set key %s from source %s: %w", key, source.Type(), err)
			}
		}
		return nil
	})
}

// trackChanges attributes every key added or modified by apply to source.
func (l *loader) trackChanges(source SourceType, apply func() error) error {
	before := make(map[string]any)
	for _, key := range l.koanf.Keys() {
		before[key] = l.koanf.Get(key)
	}
	if err := apply(); err != nil {
		return err
	}
	for _, key := range l.koanf.Keys() {
		prev, existed := before[key]
		if !existed || !reflect.DeepEqual(prev, l.koanf.Get(key)) {
			l.trackSource(key, source)
		}
	}
	return nil
}

// flattenMap flattens a nested map into dot-notation keys
func flattenMap(prefix string, m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			for fk, fv := range flattenMap(key, nested) {
				result[fk] = fv
			}
			continue
		}
		result[key] = v
	}
	return result
}

func (l *loader) unmarshalAndValidate() (*Config, error) {
	var config Config
	if err := l.koanf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &config,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				sensitiveStringDecodeHook,
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Validate checks if the configuration meets all validation requirements.
func (l *loader) Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := validateCustom(config); err != nil {
		return fmt.Errorf("custom validation failed: %w", err)
	}
	return nil
}

// GetSource returns the source type for a specific configuration key.
func (l *loader) GetSource(key string) SourceType {
	l.metadataMu.RLock()
	defer l.metadataMu.RUnlock()
	if source, ok := l.metadata.Sources[key]; ok {
		return source
	}
	return SourceDefault
}

func (l *loader) trackSource(key string, source SourceType) {
	l.metadataMu.Lock()
	defer l.metadataMu.Unlock()
	l.metadata.Sources[key] = source
}

func validateCustom(config *Config) error {
	if config.REST.OAuth {
		if strings.TrimSpace(config.OAuth.ClientID) == "" {
			return fmt.Errorf("oauth client_id is required when rest.oauth is enabled")
		}
		if config.OAuth.BaseURL == "" && config.REST.BaseURL == "" {
			return fmt.Errorf("oauth base_url or rest.base_url is required when rest.oauth is enabled")
		}
	}
	creds := config.GRPC.Credentials
	if (creds.CertPath == "") != (creds.KeyPath == "") {
		return fmt.Errorf("grpc credentials cert_path and key_path must be set together")
	}
	if creds.Type == "insecure" && (creds.CertPath != "" || creds.CAPath != "") {
		return fmt.Errorf("grpc credentials paths require credentials type tls")
	}
	if config.Cache.Driver == CacheDriverRedis && config.Redis.URL == "" &&
		(config.Redis.Host == "" || config.Redis.Port == "") {
		return fmt.Errorf("redis url or host and port are required for the redis cache driver")
	}
	return nil
}
