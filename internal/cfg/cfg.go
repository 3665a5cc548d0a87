// Package cfg loads and validates service configuration from a YAML
// file with environment-variable overrides. Threshold policy, feature
// order, and categorical encodings all live here so operators can
// retune risk appetite without redeploying code.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	HighThreshold      float64
	LowThreshold       float64
	UseThreeTier       bool
	FeatureOrder       []string
	Encodings          map[string]map[string]float64
	ProtectedGroups    []string
	CalibrationBuckets int
	ModelPath          string
	BackgroundPath     string
	DataPath           string
	ListenPort         int
	MetricsPort        int
	WebhookURL         string
	WebhookTimeout     time.Duration
	LogLevel           string
}

type ConfigFile struct {
	Decision struct {
		HighThreshold float64 `yaml:"highThreshold"`
		LowThreshold  float64 `yaml:"lowThreshold"`
		UseThreeTier  *bool   `yaml:"useThreeTier"`
	} `yaml:"decision"`

	Features struct {
		Order     []string                      `yaml:"order"`
		Encodings map[string]map[string]float64 `yaml:"encodings"`
	} `yaml:"features"`

	Fairness struct {
		ProtectedGroups    []string `yaml:"protectedGroups"`
		CalibrationBuckets int      `yaml:"calibrationBuckets"`
	} `yaml:"fairness"`

	Model struct {
		Path           string `yaml:"path"`
		BackgroundPath string `yaml:"backgroundPath"`
	} `yaml:"model"`

	System struct {
		DataPath       string `yaml:"dataPath"`
		ListenPort     int    `yaml:"listenPort"`
		MetricsPort    int    `yaml:"metricsPort"`
		WebhookURL     string `yaml:"webhookURL"`
		WebhookTimeout string `yaml:"webhookTimeout"`
		LogLevel       string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	webhookTimeout, err := time.ParseDuration(config.System.WebhookTimeout)
	if err != nil {
		webhookTimeout = 5 * time.Second
	}

	threeTier := true
	if config.Decision.UseThreeTier != nil {
		threeTier = *config.Decision.UseThreeTier
	}

	settings := Settings{
		HighThreshold:      getFloatFromEnvOrConfig("HIGH_THRESHOLD", config.Decision.HighThreshold, 0.70),
		LowThreshold:       getFloatFromEnvOrConfig("LOW_THRESHOLD", config.Decision.LowThreshold, 0.30),
		UseThreeTier:       getBoolFromEnvOrConfig("USE_THREE_TIER", threeTier),
		FeatureOrder:       config.Features.Order,
		Encodings:          config.Features.Encodings,
		ProtectedGroups:    getListFromEnvOrConfig("PROTECTED_GROUPS", config.Fairness.ProtectedGroups),
		CalibrationBuckets: getIntFromEnvOrConfig("CALIBRATION_BUCKETS", config.Fairness.CalibrationBuckets, 10),
		ModelPath:          getEnvOrDefault("MODEL_PATH", config.Model.Path),
		BackgroundPath:     getEnvOrDefault("BACKGROUND_PATH", config.Model.BackgroundPath),
		DataPath:           getEnvOrDefault("DATA_PATH", config.System.DataPath),
		ListenPort:         getIntFromEnvOrConfig("LISTEN_PORT", config.System.ListenPort, 8080),
		MetricsPort:        getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 9090),
		WebhookURL:         getEnvOrDefault("WEBHOOK_URL", config.System.WebhookURL),
		WebhookTimeout:     webhookTimeout,
		LogLevel:           getEnvOrDefault("LOG_LEVEL", config.System.LogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		HighThreshold:      getFloatOrDefault("HIGH_THRESHOLD", 0.70),
		LowThreshold:       getFloatOrDefault("LOW_THRESHOLD", 0.30),
		UseThreeTier:       getBoolOrDefault("USE_THREE_TIER", true),
		ProtectedGroups:    splitOrDefault(os.Getenv("PROTECTED_GROUPS"), nil),
		CalibrationBuckets: getIntOrDefault("CALIBRATION_BUCKETS", 10),
		ModelPath:          getEnvOrDefault("MODEL_PATH", "models/model.json"),
		BackgroundPath:     os.Getenv("BACKGROUND_PATH"), // optional
		DataPath:           os.Getenv("DATA_PATH"),       // optional
		ListenPort:         getIntOrDefault("LISTEN_PORT", 8080),
		MetricsPort:        getIntOrDefault("METRICS_PORT", 9090),
		WebhookURL:         os.Getenv("WEBHOOK_URL"), // optional
		WebhookTimeout:     getDurationOrDefault("WEBHOOK_TIMEOUT", 5*time.Second),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return strings.Split(env, ",")
	}
	return configValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings checks the values the decision engine does not own.
// Threshold-policy consistency (high vs low, ranges) is validated by
// decision.NewEngine at startup so misconfiguration fails fast there.
func validateSettings(settings *Settings) error {
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	if settings.ListenPort < 1024 || settings.ListenPort > 65535 {
		return fmt.Errorf("listen port must be between 1024 and 65535, got %d", settings.ListenPort)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.ListenPort == settings.MetricsPort {
		return fmt.Errorf("listen port and metrics port must differ, both are %d", settings.ListenPort)
	}
	if settings.CalibrationBuckets < 2 || settings.CalibrationBuckets > 100 {
		return fmt.Errorf("calibration buckets must be between 2 and 100, got %d", settings.CalibrationBuckets)
	}
	if settings.WebhookTimeout < time.Second || settings.WebhookTimeout > time.Minute {
		return fmt.Errorf("webhook timeout must be between 1s and 1m, got %v", settings.WebhookTimeout)
	}
	for _, g := range settings.ProtectedGroups {
		if strings.TrimSpace(g) == "" {
			return fmt.Errorf("protected group names cannot be blank")
		}
	}
	return nil
}
