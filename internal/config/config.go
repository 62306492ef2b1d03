package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config represents the entire application configuration
type Config struct {
	Env         string             `json:"env"`
	Port        int                `json:"port"`
	AppName     string             `json:"app_name"`
	MongoDB     MongoDBConfig      `json:"mongodb"`
	RabbitMQ    RabbitMQConfig     `json:"rabbitmq"`
	Redis       RedisConfig        `json:"redis"`
	S3          S3Config           `json:"s3"`
	Speech      SpeechConfig       `json:"speech"`
	Translators []TranslatorConfig `json:"translators"`
	Pipeline    PipelineConfig     `json:"pipeline"`
	Logging     LoggingConfig      `json:"logging"`
	CORS        CORSConfig         `json:"cors"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

// RabbitMQConfig contains the durable queue connection details
type RabbitMQConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	VHost         string `json:"vhost"`
	ExchangeName  string `json:"exchange_name"`
	PrefetchCount int    `json:"prefetch_count"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// S3Config contains the artifact bucket credentials
type S3Config struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
}

// SpeechConfig points at the speech-to-text backend
type SpeechConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	TimeoutSec int    `json:"timeout_sec"`
}

// TranslatorConfig describes one translation backend. A price of zero
// marks a free/local engine.
type TranslatorConfig struct {
	Name                 string  `json:"name"`
	BaseURL              string  `json:"base_url"`
	APIKey               string  `json:"api_key"`
	PricePerMillionChars float64 `json:"price_per_million_chars"`
	TimeoutSec           int     `json:"timeout_sec"`
	Default              bool    `json:"default"`
}

// PipelineConfig holds the batch pipeline tunables. Everything the
// scan and translation components pace themselves with is explicit
// here so tests can run with small backlogs and short pauses.
type PipelineConfig struct {
	GroupSize       int    `json:"group_size"`
	GroupPauseSec   int    `json:"group_pause_sec"`
	ChunkSize       int    `json:"chunk_size"`
	ReportDelayMin  int    `json:"report_delay_min"`
	CallTimeoutSec  int    `json:"call_timeout_sec"`
	LockTTLMin      int    `json:"lock_ttl_min"`
	ScanCron        string `json:"scan_cron"`
	SubtitleCron    string `json:"subtitle_cron"`
	DefaultLanguage string `json:"default_language"`
}

// GroupPause returns the pause between submission groups.
func (p PipelineConfig) GroupPause() time.Duration {
	return time.Duration(p.GroupPauseSec) * time.Second
}

// ReportDelay returns how long after a scan the completion report runs.
func (p PipelineConfig) ReportDelay() time.Duration {
	return time.Duration(p.ReportDelayMin) * time.Minute
}

// CallTimeout bounds a single external backend call.
func (p PipelineConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSec) * time.Second
}

// LockTTL bounds how long a translation guard lock can be held.
func (p PipelineConfig) LockTTL() time.Duration {
	return time.Duration(p.LockTTLMin) * time.Minute
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"`
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.GroupSize <= 0 {
		c.Pipeline.GroupSize = 50
	}
	if c.Pipeline.GroupPauseSec <= 0 {
		c.Pipeline.GroupPauseSec = 30
	}
	if c.Pipeline.ChunkSize <= 0 {
		c.Pipeline.ChunkSize = 30
	}
	if c.Pipeline.ReportDelayMin <= 0 {
		c.Pipeline.ReportDelayMin = 360
	}
	if c.Pipeline.CallTimeoutSec <= 0 {
		c.Pipeline.CallTimeoutSec = 1800
	}
	if c.Pipeline.LockTTLMin <= 0 {
		c.Pipeline.LockTTLMin = 30
	}
	if c.Pipeline.ScanCron == "" {
		c.Pipeline.ScanCron = "0 3 * * *"
	}
	if c.Pipeline.SubtitleCron == "" {
		c.Pipeline.SubtitleCron = "30 3 * * *"
	}
	if c.Pipeline.DefaultLanguage == "" {
		c.Pipeline.DefaultLanguage = "en"
	}
	if c.RabbitMQ.ExchangeName == "" {
		c.RabbitMQ.ExchangeName = "pipeline"
	}
}

// DefaultTranslator returns the configured default backend name, or
// the first configured backend when none is marked default.
func (c *Config) DefaultTranslator() string {
	for _, t := range c.Translators {
		if t.Default {
			return t.Name
		}
	}
	if len(c.Translators) > 0 {
		return c.Translators[0].Name
	}
	return ""
}
