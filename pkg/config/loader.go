package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the layered configuration for env from configDir into a typed
// Config, starting from Defaults and finishing with environment overrides.
func Load(env string, configDir string) (*Config, error) {
	merged, err := LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	// map → YAML → struct，复用 yaml 标签与 duration 解析
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideLogFromEnv(&cfg.Log)
	OverrideMetricsFromEnv(&cfg.Metrics)
	OverrideGmailFromEnv(&cfg.Gmail)
	OverrideTracingFromEnv(&cfg.Tracing)
	return &cfg, nil
}

// LoadConfig 按层加载：base.yaml → <env>.yaml → secrets.env 占位符替换。
// configDir 为空时使用 "config"。
func LoadConfig(env string, configDir string) (map[string]any, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := loadYAMLFile(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		layer, err := loadYAMLFile(filepath.Join(configDir, env+".yaml"))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// 环境文件可选
		case err != nil:
			return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
		default:
			merged = mergeMaps(merged, layer)
		}
	}

	secrets, err := loadEnvFile(filepath.Join(configDir, "secrets.env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load secrets.env: %w", err)
	}
	return expandPlaceholders(merged, secrets).(map[string]any), nil
}

func loadYAMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines; blank lines and # comments are skipped
// and surrounding quotes are removed.
func loadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	env := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return env, nil
}

// mergeMaps returns a copy of dst with src laid over it; nested maps merge
// key by key, everything else is replaced.
func mergeMaps(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		base, okBase := out[k].(map[string]any)
		over, okOver := v.(map[string]any)
		if okBase && okOver {
			out[k] = mergeMaps(base, over)
			continue
		}
		out[k] = v
	}
	return out
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandPlaceholders replaces ${NAME} in every string value, looking NAME up
// in secrets first and then in the process environment. Unknown names are
// left as they are.
func expandPlaceholders(v any, secrets map[string]string) any {
	switch val := v.(type) {
	case string:
		return placeholder.ReplaceAllStringFunc(val, func(m string) string {
			name := placeholder.FindStringSubmatch(m)[1]
			if s, ok := secrets[name]; ok {
				return s
			}
			if s, ok := os.LookupEnv(name); ok {
				return s
			}
			return m
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandPlaceholders(item, secrets)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandPlaceholders(item, secrets)
		}
		return out
	default:
		return v
	}
}

// GetEnv returns the environment value for key, or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 读取 CONFIG_ENV，默认 local
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
