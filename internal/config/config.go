package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tables sources.
const (
	TablesSourceXML      = "xml"
	TablesSourcePostgres = "postgres"
)

// Classifier modes.
const (
	ClassifierAuto    = "auto"
	ClassifierKeyword = "keyword"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DataDir           string `mapstructure:"PCS_DATA_DIR"`
	IndexXML          string `mapstructure:"PCS_INDEX_XML"`
	TablesXML         string `mapstructure:"PCS_TABLES_XML"`
	DeviceKeyJSON     string `mapstructure:"PCS_DEVICE_KEY_JSON"`
	DeviceAggJSON     string `mapstructure:"PCS_DEVICE_AGG_JSON"`
	BodyPartKeyJSON   string `mapstructure:"PCS_BODY_PART_KEY_JSON"`
	BodySystemsJSON   string `mapstructure:"PCS_BODY_SYSTEMS_JSON"`
	DebridementJSON   string `mapstructure:"PCS_DEBRIDEMENT_JSON"`
	AneurysmJSON      string `mapstructure:"PCS_ANEURYSM_JSON"`
	TablesSource      string `mapstructure:"PCS_TABLES_SOURCE"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32  `mapstructure:"DB_MIN_CONNS"`
	GeminiAPIKey      string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel       string `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL     string `mapstructure:"GEMINI_BASE_URL"`
	ClassifierMode    string `mapstructure:"CLASSIFIER_MODE"`
	DefaultCandidates int    `mapstructure:"DEFAULT_CANDIDATE_LIMIT"`
	MaxCandidates     int    `mapstructure:"MAX_CANDIDATE_LIMIT"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
}

// Default reference file names inside PCS_DATA_DIR.
var defaultFiles = map[string]string{
	"PCS_INDEX_XML":          "icd10pcs_index_2025.xml",
	"PCS_TABLES_XML":         "icd10pcs_tables_2025.xml",
	"PCS_DEVICE_KEY_JSON":    "device_key.json",
	"PCS_DEVICE_AGG_JSON":    "device_aggregation.json",
	"PCS_BODY_PART_KEY_JSON": "body_part_key.json",
	"PCS_BODY_SYSTEMS_JSON":  "medical_surgical_body_systems_2025.json",
	"PCS_DEBRIDEMENT_JSON":   "debridement_coding_json.json",
	"PCS_ANEURYSM_JSON":      "aneurysm_repair_json.json",
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"PCS_DATA_DIR", "PCS_INDEX_XML", "PCS_TABLES_XML", "PCS_DEVICE_KEY_JSON",
	"PCS_DEVICE_AGG_JSON", "PCS_BODY_PART_KEY_JSON", "PCS_BODY_SYSTEMS_JSON",
	"PCS_DEBRIDEMENT_JSON", "PCS_ANEURYSM_JSON", "PCS_TABLES_SOURCE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"GEMINI_MODEL", "GEMINI_BASE_URL", "CLASSIFIER_MODE",
	"DEFAULT_CANDIDATE_LIMIT", "MAX_CANDIDATE_LIMIT",
	"REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "CORS_ORIGINS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PCS_DATA_DIR", "./data")
	v.SetDefault("PCS_TABLES_SOURCE", TablesSourceXML)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("CLASSIFIER_MODE", ClassifierAuto)
	v.SetDefault("DEFAULT_CANDIDATE_LIMIT", 25)
	v.SetDefault("MAX_CANDIDATE_LIMIT", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	for key, name := range defaultFiles {
		v.SetDefault(key, name)
	}

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		v.BindEnv(key)
	}
	v.BindEnv("GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.resolvePaths()
	return cfg, nil
}

// resolvePaths makes relative reference file paths relative to the data dir.
func (c *Config) resolvePaths() {
	for _, p := range c.referencePaths() {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.DataDir, *p)
		}
	}
}

func (c *Config) referencePaths() []*string {
	return []*string{
		&c.IndexXML, &c.TablesXML, &c.DeviceKeyJSON, &c.DeviceAggJSON,
		&c.BodyPartKeyJSON, &c.BodySystemsJSON, &c.DebridementJSON, &c.AneurysmJSON,
	}
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesPostgres reports whether axis tables are read from PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.TablesSource == TablesSourcePostgres
}

// RemoteClassifier reports whether the Gemini scorer should be tried.
func (c *Config) RemoteClassifier() bool {
	return c.ClassifierMode == ClassifierAuto && c.GeminiAPIKey != ""
}

// Validate checks that the configuration is usable by the server.
func (c *Config) Validate() error {
	switch c.TablesSource {
	case TablesSourceXML:
	case TablesSourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when PCS_TABLES_SOURCE is %q", TablesSourcePostgres)
		}
	default:
		return fmt.Errorf("PCS_TABLES_SOURCE must be %q or %q, got %q", TablesSourceXML, TablesSourcePostgres, c.TablesSource)
	}
	if c.ClassifierMode != ClassifierAuto && c.ClassifierMode != ClassifierKeyword {
		return fmt.Errorf("CLASSIFIER_MODE must be %q or %q, got %q", ClassifierAuto, ClassifierKeyword, c.ClassifierMode)
	}
	if c.IndexXML == "" || c.TablesXML == "" {
		return fmt.Errorf("PCS_INDEX_XML and PCS_TABLES_XML are required")
	}
	if c.DefaultCandidates <= 0 || c.MaxCandidates < c.DefaultCandidates {
		return fmt.Errorf("candidate limits must satisfy 0 < DEFAULT_CANDIDATE_LIMIT (%d) <= MAX_CANDIDATE_LIMIT (%d)",
			c.DefaultCandidates, c.MaxCandidates)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// RequireDatabase returns an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}
