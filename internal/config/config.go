package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mantonx/videoclipper/internal/logger"
	"github.com/mantonx/videoclipper/internal/system"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "VIDEOCLIPPER_"

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Upload and artifact storage
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Transcoding jobs and the worker pool
	Jobs JobsConfig `yaml:"jobs" json:"jobs"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Job history archive
	History HistoryConfig `yaml:"history" json:"history"`

	// Job event publishing
	Notify NotifyConfig `yaml:"notify" json:"notify"`

	// Prometheus metrics
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host              string        `yaml:"host" json:"host" env:"HOST" default:"0.0.0.0"`
	Port              int           `yaml:"port" json:"port" env:"PORT" default:"8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout" env:"READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds upload and output directory configuration
type StorageConfig struct {
	DataDir           string   `yaml:"data_dir" json:"data_dir" env:"DATA_DIR" default:"./data"`
	UploadDir         string   `yaml:"upload_dir" json:"upload_dir" env:"UPLOAD_DIR"`
	OutputDir         string   `yaml:"output_dir" json:"output_dir" env:"OUTPUT_DIR"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes" json:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" default:"1073741824"`
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions" env:"ALLOWED_EXTENSIONS" default:"mp4,webm,avi,mov,mkv,flv,wmv"`
}

// JobsConfig holds transcoding configuration
type JobsConfig struct {
	MaxWorkers     int           `yaml:"max_workers" json:"max_workers" env:"MAX_WORKERS" default:"0"`
	FFmpegPath     string        `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath    string        `yaml:"ffprobe_path" json:"ffprobe_path" env:"FFPROBE_PATH" default:"ffprobe"`
	Preset         string        `yaml:"preset" json:"preset" env:"PRESET" default:"fast"`
	MaxSpeed       float64       `yaml:"max_speed" json:"max_speed" env:"MAX_SPEED" default:"4"`
	StreamInterval time.Duration `yaml:"stream_interval" json:"stream_interval" env:"STREAM_INTERVAL" default:"1s"`

	// Workers is MaxWorkers resolved against the host; zero MaxWorkers
	// means automatic sizing.
	Workers int `yaml:"-" json:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT" default:"text"`
}

// HistoryConfig holds the job history archive configuration
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"HISTORY_ENABLED" default:"false"`
	Type    string `yaml:"type" json:"type" env:"HISTORY_TYPE" default:"sqlite"`
	DSN     string `yaml:"dsn" json:"dsn" env:"HISTORY_DSN"`
	Limit   int    `yaml:"limit" json:"limit" env:"HISTORY_LIMIT" default:"50"`
}

// NotifyConfig holds the AMQP event publisher configuration
type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled" env:"NOTIFY_ENABLED" default:"false"`
	Host       string `yaml:"host" json:"host" env:"AMQP_HOST" default:"localhost"`
	Port       string `yaml:"port" json:"port" env:"AMQP_PORT" default:"5672"`
	User       string `yaml:"user" json:"user" env:"AMQP_USER" default:"guest"`
	Password   string `yaml:"password" json:"-" env:"AMQP_PASSWORD" default:"guest"`
	Exchange   string `yaml:"exchange" json:"exchange" env:"AMQP_EXCHANGE" default:"videoclipper"`
	RoutingKey string `yaml:"routing_key" json:"routing_key" env:"AMQP_ROUTING_KEY" default:"video.job"`
	Retries    int    `yaml:"retries" json:"retries" env:"AMQP_RETRIES" default:"5"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"METRICS_ENABLED" default:"true"`
}

// ConfigManager manages application configuration with hot reloading
type ConfigManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	watchers   []ConfigWatcher
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = NewConfigManager()
	})
	return globalConfigManager
}

// NewConfigManager creates a manager holding the default configuration
func NewConfigManager() *ConfigManager {
	return &ConfigManager{config: DefaultConfig()}
}

// DefaultConfig returns the configuration described by the default tags
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := applyDefaults(reflect.ValueOf(cfg).Elem()); err != nil {
		// Default tags are constants; a failure here is a programming error.
		panic(fmt.Sprintf("invalid default tag: %v", err))
	}
	return cfg
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig := cm.config.clone()
	cm.configPath = configPath

	// Start with default configuration
	newConfig := DefaultConfig()

	// Load from file if it exists
	if configPath != "" && fileExists(configPath) {
		if err := cm.loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
		logger.Info("configuration loaded from file", "path", configPath)
	}

	// Override with environment variables
	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)

	cm.config = newConfig

	// Notify watchers of config change
	for _, watcher := range cm.watchers {
		go watcher(oldConfig, newConfig.clone())
	}

	return nil
}

// GetConfig returns a copy of the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.clone()
}

// Path returns the file the configuration was last loaded from
func (cm *ConfigManager) Path() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

func (c *Config) clone() *Config {
	out := *c
	out.Storage.AllowedExtensions = append([]string(nil), c.Storage.AllowedExtensions...)
	return &out
}

func (cm *ConfigManager) loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// applyDefaults sets every field carrying a default tag.
func applyDefaults(v reflect.Value) error {
	return walkFields(v, func(field reflect.Value, sf reflect.StructField) error {
		def := sf.Tag.Get("default")
		if def == "" {
			return nil
		}
		return setFieldValue(field, def)
	})
}

// loadStructFromEnv overrides fields from EnvPrefix + the env tag. Unset
// variables leave the field alone.
func loadStructFromEnv(v reflect.Value) error {
	return walkFields(v, func(field reflect.Value, sf reflect.StructField) error {
		envTag := sf.Tag.Get("env")
		if envTag == "" {
			return nil
		}
		envValue, ok := os.LookupEnv(EnvPrefix + envTag)
		if !ok || envValue == "" {
			return nil
		}
		return setFieldValue(field, envValue)
	})
}

func walkFields(v reflect.Value, fn func(reflect.Value, reflect.StructField) error) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		// Handle nested structs recursively
		if field.Kind() == reflect.Struct {
			if err := walkFields(field, fn); err != nil {
				return err
			}
			continue
		}

		if err := fn(field, fieldType); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		var values []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload size: %d", config.Storage.MaxUploadBytes)
	}

	if len(config.Storage.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}

	if config.Jobs.MaxWorkers < 0 {
		return fmt.Errorf("invalid worker count: %d", config.Jobs.MaxWorkers)
	}

	if config.Jobs.MaxSpeed < 1 {
		return fmt.Errorf("invalid max speed: %v", config.Jobs.MaxSpeed)
	}

	if config.Jobs.StreamInterval <= 0 {
		return fmt.Errorf("invalid stream interval: %s", config.Jobs.StreamInterval)
	}

	switch strings.ToLower(config.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", config.Logging.Format)
	}

	if config.History.Type != "sqlite" && config.History.Type != "postgres" {
		return fmt.Errorf("unsupported history database type: %s", config.History.Type)
	}

	// upper bound matches history.MaxRecentLimit
	if config.History.Limit < 1 || config.History.Limit > 500 {
		return fmt.Errorf("invalid history limit: %d", config.History.Limit)
	}

	if config.History.Enabled && config.History.Type == "postgres" && config.History.DSN == "" {
		return fmt.Errorf("postgres history requires a dsn")
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Storage.UploadDir == "" {
		config.Storage.UploadDir = filepath.Join(config.Storage.DataDir, "uploads")
	}

	if config.Storage.OutputDir == "" {
		config.Storage.OutputDir = filepath.Join(config.Storage.DataDir, "outputs")
	}

	if config.History.DSN == "" && config.History.Type == "sqlite" {
		config.History.DSN = filepath.Join(config.Storage.DataDir, "history.db")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	config.Jobs.Workers = system.RecommendedWorkers(ctx, config.Jobs.MaxWorkers)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}

// AddWatcher adds a global configuration watcher
func AddWatcher(watcher ConfigWatcher) {
	GetConfigManager().AddWatcher(watcher)
}
