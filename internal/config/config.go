package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendJSON   = "json"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataBackend  string
	DataFile     string
	SQLiteDBPath string

	// Auth
	AuthUsername           string
	AuthPassword           string
	SessionSecret          string
	SessionSecretGenerated bool
	SessionTTL             time.Duration

	// UI
	CurrencySymbol string

	// Rate limiting
	RateLimitPerSecond float64
	RateLimitBurst     int

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Logging
	LogLevel  string
	LogFormat string

	// ConfigFile is the YAML file the values were layered on, if any.
	ConfigFile string

	loadErrors []string
}

// fileConfig is the optional YAML layer. Environment variables win over it.
type fileConfig struct {
	Port           string `yaml:"port"`
	DataBackend    string `yaml:"dataBackend"`
	DataFile       string `yaml:"dataFile"`
	SQLiteDBPath   string `yaml:"sqliteDbPath"`
	CurrencySymbol string `yaml:"currencySymbol"`
	Auth           struct {
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		Secret     string `yaml:"sessionSecret"`
		SessionTTL string `yaml:"sessionTtl"`
	} `yaml:"auth"`
	RateLimit struct {
		PerSecond float64 `yaml:"perSecond"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rateLimit"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
		Queue    string `yaml:"queue"`
	} `yaml:"amqp"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultDataFile is expense.json under the XDG data directory.
func DefaultDataFile() string {
	return filepath.Join(xdg.DataHome, "household", "expense.json")
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:               "8081",
		DataBackend:        BackendJSON,
		DataFile:           DefaultDataFile(),
		SQLiteDBPath:       "./data/household.db",
		AuthUsername:       "demo",
		AuthPassword:       "demo123",
		SessionTTL:         12 * time.Hour,
		CurrencySymbol:     "Rs",
		RateLimitPerSecond: 5,
		RateLimitBurst:     10,
		AMQPExchange:       "household",
		AMQPQueue:          "ledger_events",
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// HOUSEHOLD_CONFIG, then environment variables. Problems reading the file
// are reported by Validate.
func Load() *Config {
	cfg := Defaults()

	if path := os.Getenv("HOUSEHOLD_CONFIG"); path != "" {
		cfg.ConfigFile = path
		if err := cfg.applyFile(path); err != nil {
			cfg.loadErrors = append(cfg.loadErrors, err.Error())
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataBackend = strings.ToLower(getEnv("DATA_BACKEND", cfg.DataBackend))
	cfg.DataFile = getEnv("DATA_FILE", cfg.DataFile)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)

	cfg.AuthUsername = getEnv("AUTH_USERNAME", cfg.AuthUsername)
	cfg.AuthPassword = getEnv("AUTH_PASSWORD", cfg.AuthPassword)
	cfg.SessionSecret = getEnv("SESSION_SECRET", cfg.SessionSecret)
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", cfg.SessionTTL)

	cfg.CurrencySymbol = getEnv("CURRENCY_SYMBOL", cfg.CurrencySymbol)

	cfg.RateLimitPerSecond = getEnvFloat("RATE_LIMIT_PER_SECOND", cfg.RateLimitPerSecond)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = randomSecret()
		cfg.SessionSecretGenerated = true
	}

	return cfg
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file '%s': %v", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config file '%s': %v", path, err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.DataBackend, fc.DataBackend)
	setString(&c.DataFile, fc.DataFile)
	setString(&c.SQLiteDBPath, fc.SQLiteDBPath)
	setString(&c.CurrencySymbol, fc.CurrencySymbol)
	setString(&c.AuthUsername, fc.Auth.Username)
	setString(&c.AuthPassword, fc.Auth.Password)
	setString(&c.SessionSecret, fc.Auth.Secret)
	if fc.Auth.SessionTTL != "" {
		d, err := time.ParseDuration(fc.Auth.SessionTTL)
		if err != nil {
			return fmt.Errorf("invalid auth.sessionTtl '%s' in %s", fc.Auth.SessionTTL, path)
		}
		c.SessionTTL = d
	}
	if fc.RateLimit.PerSecond != 0 {
		c.RateLimitPerSecond = fc.RateLimit.PerSecond
	}
	if fc.RateLimit.Burst != 0 {
		c.RateLimitBurst = fc.RateLimit.Burst
	}
	setString(&c.AMQPURL, fc.AMQP.URL)
	setString(&c.AMQPExchange, fc.AMQP.Exchange)
	setString(&c.AMQPQueue, fc.AMQP.Queue)
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
	return nil
}

// AMQPEnabled reports whether ledger events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	errors := append([]string(nil), c.loadErrors...)

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{BackendJSON, BackendMemory, BackendSQLite}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendJSON:
		if c.DataFile == "" {
			errors = append(errors, "data file path cannot be empty when using json backend")
		} else if info, err := os.Stat(c.DataFile); err == nil && info.IsDir() {
			errors = append(errors, fmt.Sprintf("data file '%s' is a directory", c.DataFile))
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	}

	// Validate credentials
	if strings.TrimSpace(c.AuthUsername) == "" {
		errors = append(errors, "auth username cannot be empty")
	}
	if c.AuthPassword == "" {
		errors = append(errors, "auth password cannot be empty")
	} else if len(c.AuthPassword) > 72 {
		errors = append(errors, "auth password must be at most 72 bytes")
	}
	if len(c.SessionSecret) < 16 {
		errors = append(errors, "session secret must be at least 16 characters")
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	} else if c.SessionTTL > 30*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at most 30 days", c.SessionTTL))
	}

	if c.RateLimitPerSecond <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitPerSecond))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return hex.EncodeToString(b)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
