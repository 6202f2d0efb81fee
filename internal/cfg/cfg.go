package cfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cancer-predictor/internal/common"
	"cancer-predictor/internal/ml"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelDir         string `validate:"required"`
	ClassifierPath   string `validate:"required"`
	ScalerPath       string `validate:"required"`
	FeatureNamesPath string `validate:"required"`
	MetadataPath     string
	FeaturesFile     string

	Host            string
	Port            int `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64 `validate:"min=2,max=10485760"`
	AllowUnready    bool
	WSEnabled       bool
	WSPingInterval  time.Duration

	DataPath   string
	AuditLimit int `validate:"min=1"`

	DriftWindow    int     `validate:"min=0,max=100000"`
	DriftThreshold float64 `validate:"gt=0"`

	LogLevel      string `validate:"oneof=trace debug info warn error"`
	LogFormat     string `validate:"oneof=json console"`
	LogFile       string
	LogMaxSizeMB  int `validate:"min=1"`
	LogMaxBackups int `validate:"min=0"`
	LogMaxAgeDays int `validate:"min=0"`
}

type ConfigFile struct {
	Model struct {
		Dir          string `yaml:"dir"`
		Classifier   string `yaml:"classifier"`
		Scaler       string `yaml:"scaler"`
		FeatureNames string `yaml:"featureNames"`
		Metadata     string `yaml:"metadata"`
		FeaturesFile string `yaml:"featuresFile"`
	} `yaml:"model"`

	Server struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		ReadTimeout     string `yaml:"readTimeout"`
		WriteTimeout    string `yaml:"writeTimeout"`
		IdleTimeout     string `yaml:"idleTimeout"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
		MaxBodyBytes    int64  `yaml:"maxBodyBytes"`
		AllowUnready    bool   `yaml:"allowUnready"`
		WebSocket       struct {
			Enabled      *bool  `yaml:"enabled"`
			PingInterval string `yaml:"pingInterval"`
		} `yaml:"websocket"`
	} `yaml:"server"`

	Storage struct {
		DataPath   string `yaml:"dataPath"`
		AuditLimit int    `yaml:"auditLimit"`
	} `yaml:"storage"`

	Monitoring struct {
		DriftWindow    *int    `yaml:"driftWindow"`
		DriftThreshold float64 `yaml:"driftThreshold"`
	} `yaml:"monitoring"`

	Logging struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
	} `yaml:"logging"`
}

var validate = validator.New()

// Load reads settings from CONFIG_FILE when set, otherwise from the environment.
// A .env file (ENV_FILE, default ".env") is applied first and never overrides
// variables that are already set.
func Load() (Settings, error) {
	loadDotEnv()

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadDotEnv() {
	path := getEnvOrDefault(common.EnvEnvFile, common.DefaultEnvFile)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		log.Warn().Err(err).Str("path", path).Msg("failed to load env file")
	}
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

	wsEnabled := true
	if config.Server.WebSocket.Enabled != nil {
		wsEnabled = *config.Server.WebSocket.Enabled
	}

	driftWindow := ml.DefaultDriftWindow
	if config.Monitoring.DriftWindow != nil {
		driftWindow = *config.Monitoring.DriftWindow
	}
	driftThreshold := ml.DefaultDriftThreshold
	if config.Monitoring.DriftThreshold != 0 {
		driftThreshold = config.Monitoring.DriftThreshold
	}

	modelDir := getEnvOrDefault(common.EnvModelDir, orDefault(config.Model.Dir, common.DefaultModelDir))
	settings := Settings{
		ModelDir:         modelDir,
		ClassifierPath:   getEnvOrDefault(common.EnvClassifierPath, config.Model.Classifier),
		ScalerPath:       getEnvOrDefault(common.EnvScalerPath, config.Model.Scaler),
		FeatureNamesPath: getEnvOrDefault(common.EnvFeatureNamesPath, config.Model.FeatureNames),
		MetadataPath:     getEnvOrDefault(common.EnvMetadataPath, config.Model.Metadata),
		FeaturesFile:     getEnvOrDefault(common.EnvFeaturesFile, config.Model.FeaturesFile),

		Host:            getEnvOrDefault(common.EnvHost, orDefault(config.Server.Host, common.DefaultHost)),
		Port:            getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		ReadTimeout:     getDurationFromEnvOrConfig(common.EnvReadTimeout, config.Server.ReadTimeout, 10*time.Second),
		WriteTimeout:    getDurationFromEnvOrConfig(common.EnvWriteTimeout, config.Server.WriteTimeout, 30*time.Second),
		IdleTimeout:     getDurationFromEnvOrConfig(common.EnvIdleTimeout, config.Server.IdleTimeout, 60*time.Second),
		ShutdownTimeout: getDurationFromEnvOrConfig(common.EnvShutdownTimeout, config.Server.ShutdownTimeout, 10*time.Second),
		MaxBodyBytes:    int64(getIntFromEnvOrConfig(common.EnvMaxBodyBytes, int(config.Server.MaxBodyBytes), common.DefaultMaxBodyBytes)),
		AllowUnready:    getBoolFromEnvOrConfig(common.EnvAllowUnready, config.Server.AllowUnready),
		WSEnabled:       getBoolFromEnvOrConfig(common.EnvWSEnabled, wsEnabled),
		WSPingInterval:  getDurationFromEnvOrConfig(common.EnvWSPingInterval, config.Server.WebSocket.PingInterval, 30*time.Second),

		DataPath:   getEnvOrDefault(common.EnvDataPath, config.Storage.DataPath),
		AuditLimit: getIntFromEnvOrConfig(common.EnvAuditLimit, config.Storage.AuditLimit, common.DefaultAuditLimit),

		DriftWindow:    getIntOrDefault(common.EnvDriftWindow, driftWindow),
		DriftThreshold: getFloatOrDefault(common.EnvDriftThreshold, driftThreshold),

		LogLevel:      getEnvOrDefault(common.EnvLogLevel, orDefault(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:     getEnvOrDefault(common.EnvLogFormat, orDefault(config.Logging.Format, common.DefaultLogFormat)),
		LogFile:       getEnvOrDefault(common.EnvLogFile, config.Logging.File),
		LogMaxSizeMB:  getIntFromEnvOrConfig(common.EnvLogMaxSizeMB, config.Logging.MaxSizeMB, common.DefaultLogMaxSizeMB),
		LogMaxBackups: getIntFromEnvOrConfig(common.EnvLogMaxBackups, config.Logging.MaxBackups, common.DefaultLogMaxBackups),
		LogMaxAgeDays: getIntFromEnvOrConfig(common.EnvLogMaxAgeDays, config.Logging.MaxAgeDays, common.DefaultLogMaxAgeDays),
	}
	settings.fillArtifactPaths()

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelDir:         getEnvOrDefault(common.EnvModelDir, common.DefaultModelDir),
		ClassifierPath:   os.Getenv(common.EnvClassifierPath),
		ScalerPath:       os.Getenv(common.EnvScalerPath),
		FeatureNamesPath: os.Getenv(common.EnvFeatureNamesPath),
		MetadataPath:     os.Getenv(common.EnvMetadataPath),
		FeaturesFile:     os.Getenv(common.EnvFeaturesFile), // optional

		Host:            getEnvOrDefault(common.EnvHost, common.DefaultHost),
		Port:            getIntOrDefault(common.EnvPort, common.DefaultPort),
		ReadTimeout:     getDurationOrDefault(common.EnvReadTimeout, 10*time.Second),
		WriteTimeout:    getDurationOrDefault(common.EnvWriteTimeout, 30*time.Second),
		IdleTimeout:     getDurationOrDefault(common.EnvIdleTimeout, 60*time.Second),
		ShutdownTimeout: getDurationOrDefault(common.EnvShutdownTimeout, 10*time.Second),
		MaxBodyBytes:    int64(getIntOrDefault(common.EnvMaxBodyBytes, common.DefaultMaxBodyBytes)),
		AllowUnready:    getBoolOrDefault(common.EnvAllowUnready, false),
		WSEnabled:       getBoolOrDefault(common.EnvWSEnabled, true),
		WSPingInterval:  getDurationOrDefault(common.EnvWSPingInterval, 30*time.Second),

		DataPath:   os.Getenv(common.EnvDataPath), // optional
		AuditLimit: getIntOrDefault(common.EnvAuditLimit, common.DefaultAuditLimit),

		DriftWindow:    getIntOrDefault(common.EnvDriftWindow, ml.DefaultDriftWindow),
		DriftThreshold: getFloatOrDefault(common.EnvDriftThreshold, ml.DefaultDriftThreshold),

		LogLevel:      getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:     getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		LogFile:       os.Getenv(common.EnvLogFile),
		LogMaxSizeMB:  getIntOrDefault(common.EnvLogMaxSizeMB, common.DefaultLogMaxSizeMB),
		LogMaxBackups: getIntOrDefault(common.EnvLogMaxBackups, common.DefaultLogMaxBackups),
		LogMaxAgeDays: getIntOrDefault(common.EnvLogMaxAgeDays, common.DefaultLogMaxAgeDays),
	}
	settings.fillArtifactPaths()

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// fillArtifactPaths defaults any unset artifact path to the standard file in ModelDir.
func (s *Settings) fillArtifactPaths() {
	defaults := ml.PathsInDir(s.ModelDir)
	if s.ClassifierPath == "" {
		s.ClassifierPath = defaults.Classifier
	}
	if s.ScalerPath == "" {
		s.ScalerPath = defaults.Scaler
	}
	if s.FeatureNamesPath == "" {
		s.FeatureNamesPath = defaults.FeatureNames
	}
	if s.MetadataPath == "" {
		s.MetadataPath = defaults.Metadata
	}
}

// ArtifactPaths returns the artifact locations for the model store.
func (s Settings) ArtifactPaths() ml.ArtifactPaths {
	return ml.ArtifactPaths{
		Classifier:   s.ClassifierPath,
		Scaler:       s.ScalerPath,
		FeatureNames: s.FeatureNamesPath,
		Metadata:     s.MetadataPath,
	}
}

// Addr returns the listen address.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DriftEnabled reports whether accepted inputs are checked for drift.
func (s Settings) DriftEnabled() bool {
	return s.DriftWindow > 0
}

// AuditEnabled reports whether predictions are persisted.
func (s Settings) AuditEnabled() bool {
	return s.DataPath != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid number, using default")
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid boolean, using default")
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			defaultValue = d
		}
	}
	return getDurationOrDefault(key, defaultValue)
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	return getBoolOrDefault(key, configValue)
}

// validateSettings applies struct tag rules, then range checks the tags cannot express.
func validateSettings(settings *Settings) error {
	if err := validate.Struct(settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s is invalid (rule %q, got %v)", fe.Field(), fe.ActualTag(), fe.Value())
		}
		return err
	}

	// Validate time durations
	if settings.ReadTimeout < time.Second || settings.ReadTimeout > 5*time.Minute {
		return fmt.Errorf("read timeout must be between 1s and 5m, got %v", settings.ReadTimeout)
	}
	if settings.WriteTimeout < time.Second || settings.WriteTimeout > 5*time.Minute {
		return fmt.Errorf("write timeout must be between 1s and 5m, got %v", settings.WriteTimeout)
	}
	if settings.IdleTimeout < time.Second || settings.IdleTimeout > 30*time.Minute {
		return fmt.Errorf("idle timeout must be between 1s and 30m, got %v", settings.IdleTimeout)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}
	if settings.WSEnabled && (settings.WSPingInterval < time.Second || settings.WSPingInterval > 5*time.Minute) {
		return fmt.Errorf("websocket ping interval must be between 1s and 5m, got %v", settings.WSPingInterval)
	}

	if settings.AuditLimit > common.MaxAuditLimit {
		return fmt.Errorf("audit limit must be at most %d, got %d", common.MaxAuditLimit, settings.AuditLimit)
	}

	if settings.FeaturesFile != "" {
		if _, err := os.Stat(settings.FeaturesFile); err != nil {
			return fmt.Errorf("features file %s: %w", settings.FeaturesFile, err)
		}
	}
	if settings.LogFile != "" {
		if dir := filepath.Dir(settings.LogFile); dir != "." {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("log file directory %s does not exist", dir)
			}
		}
	}

	return nil
}
