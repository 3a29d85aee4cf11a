package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Uploaded media (profile pictures)
	MediaDir string

	// Distinguished account holding shared categories
	GlobalUsername string

	// Sessions
	SessionDuration time.Duration
	SecureCookies   bool

	// Receipt OCR vendor
	OCREndpoint string
	OCRAPIKey   string
	OCRTimeout  time.Duration

	// AMQP event publishing (optional; disabled when URL is empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Pagination
	DefaultPageSize int
	MaxPageSize     int
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8080"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/billova.db"),
		MediaDir:     getEnv("MEDIA_DIR", "./media"),

		GlobalUsername: getEnv("GLOBAL_USERNAME", "global"),

		SessionDuration: getEnvDuration("SESSION_DURATION", 30*24*time.Hour),
		SecureCookies:   getEnvBool("SECURE_COOKIES", false),

		OCREndpoint: getEnv("OCR_ENDPOINT", ""),
		OCRAPIKey:   getEnv("OCR_API_KEY", ""),
		OCRTimeout:  getEnvDuration("OCR_TIMEOUT", 30*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "billova"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		DefaultPageSize: getEnvInt("DEFAULT_PAGE_SIZE", 10),
		MaxPageSize:     getEnvInt("MAX_PAGE_SIZE", 50),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.GlobalUsername == "" {
		errors = append(errors, "global username cannot be empty")
	}

	if c.SessionDuration < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session duration %v: must be at least 1 minute", c.SessionDuration))
	}

	// OCR is optional; when an endpoint is set it must be usable
	if c.OCREndpoint != "" {
		if parsedURL, err := url.Parse(c.OCREndpoint); err != nil {
			errors = append(errors, fmt.Sprintf("invalid OCR endpoint '%s': %v", c.OCREndpoint, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid OCR endpoint scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
		if c.OCRAPIKey == "" {
			errors = append(errors, "OCR API key cannot be empty when an OCR endpoint is configured")
		}
		if c.OCRTimeout < time.Second {
			errors = append(errors, fmt.Sprintf("invalid OCR timeout %v: must be at least 1 second", c.OCRTimeout))
		}
	}

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

	if c.DefaultPageSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid default page size %d: must be at least 1", c.DefaultPageSize))
	}
	if c.MaxPageSize < c.DefaultPageSize {
		errors = append(errors, fmt.Sprintf("invalid max page size %d: must be at least the default page size %d", c.MaxPageSize, c.DefaultPageSize))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
