// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service needs to reach the registry and to
// be reached back by it.
type Config struct {
	DBPath string

	// Registry endpoints and credentials.
	RegistryBaseURL string
	TokenURL        string
	ClientID        string
	ClientSecret    string
	RedirectURI     string

	// Public base URL of this service, used to build callback and
	// attachment URLs the registry will call.
	PublicBaseURL string

	// Reason sent with delete requests.
	DeleteReason string

	RequestTimeout time.Duration
	ListenPort     int
	StagedPayments bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:          getEnv("CASEBRIDGE_DB", "casebridge.db"),
		RegistryBaseURL: os.Getenv("CASEBRIDGE_REGISTRY_URL"),
		TokenURL:        os.Getenv("CASEBRIDGE_TOKEN_URL"),
		ClientID:        os.Getenv("CASEBRIDGE_CLIENT_ID"),
		ClientSecret:    os.Getenv("CASEBRIDGE_CLIENT_SECRET"),
		RedirectURI:     os.Getenv("CASEBRIDGE_REDIRECT_URI"),
		PublicBaseURL:   os.Getenv("CASEBRIDGE_PUBLIC_URL"),
		DeleteReason:    getEnv("CASEBRIDGE_DELETE_REASON", "application cancelled"),
		RequestTimeout:  getEnvDuration("CASEBRIDGE_REQUEST_TIMEOUT", 60*time.Second),
		ListenPort:      getEnvInt("CASEBRIDGE_PORT", 8080),
		StagedPayments:  getEnvBool("CASEBRIDGE_STAGED_PAYMENTS", false),
	}

	return cfg, nil
}

// Validate fails fast on missing credentials so a run aborts before any
// network call is attempted.
func (c *Config) Validate() error {
	var missing []string
	if c.RegistryBaseURL == "" {
		missing = append(missing, "CASEBRIDGE_REGISTRY_URL")
	}
	if c.TokenURL == "" {
		missing = append(missing, "CASEBRIDGE_TOKEN_URL")
	}
	if c.ClientID == "" {
		missing = append(missing, "CASEBRIDGE_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CASEBRIDGE_CLIENT_SECRET")
	}
	if c.PublicBaseURL == "" {
		missing = append(missing, "CASEBRIDGE_PUBLIC_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %v", missing)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
