package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Phase names in dependency order. Later phases reference earlier ones by
// legacy id, so the order is load-bearing.
var AllPhases = []string{"countries", "cities", "users", "venues", "bookings", "reviews", "favorites"}

type Config struct {
	// Legacy (V1) source database
	V1Host     string
	V1Port     int
	V1User     string
	V1Password string
	V1Name     string
	V1Driver   string // mysql or sqlite3 (sqlite3 for fixtures and dry runs)

	// V2 target database
	V2Driver   string // mysql or sqlite
	V2Host     string
	V2Port     int
	V2User     string
	V2Password string
	V2Name     string
	V2DSN      string // overrides the assembled DSN when set

	// Legacy asset host (images stay on the V1 server)
	AssetBaseURL    string
	AssetTimeoutSec int

	// Run shape
	Phases           []string
	Workers          int
	GroupingStrategy string
	ConnectRetries   int
	ConnectBackoffMs int

	// Single-user repair run: re-migrate one legacy owner's venues only
	RepairLegacyUserID int64

	// Reference data override (embedded defaults used when empty)
	RefDataFile string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Monitoring
	MetricsPort int

	// Console
	Progress bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		V1Host:     getEnv("V1_DB_HOST", "localhost"),
		V1Port:     getEnvInt("V1_DB_PORT", 3306),
		V1User:     getEnv("V1_DB_USER", "root"),
		V1Password: getEnv("V1_DB_PASSWORD", ""),
		V1Name:     getEnv("V1_DB_NAME", "zoea"),
		V1Driver:   getEnv("V1_DB_DRIVER", "mysql"),

		V2Driver:   getEnv("V2_DB_DRIVER", "mysql"),
		V2Host:     getEnv("V2_DB_HOST", "localhost"),
		V2Port:     getEnvInt("V2_DB_PORT", 3306),
		V2User:     getEnv("V2_DB_USER", "zoea"),
		V2Password: getEnv("V2_DB_PASSWORD", ""),
		V2Name:     getEnv("V2_DB_NAME", "zoea_v2"),
		V2DSN:      getEnv("V2_DB_DSN", ""),

		AssetBaseURL:    getEnv("V1_ASSET_BASE_URL", "https://zoea.africa/"),
		AssetTimeoutSec: getEnvInt("ASSET_TIMEOUT_SEC", 5),

		Phases:           parsePhases(getEnv("MIGRATE_PHASES", "")),
		Workers:          getEnvInt("MIGRATE_WORKERS", 4),
		GroupingStrategy: getEnv("GROUPING_STRATEGY", "one_per_venue"),
		ConnectRetries:   getEnvInt("CONNECT_RETRIES", 5),
		ConnectBackoffMs: getEnvInt("CONNECT_BACKOFF_MS", 2000),

		RepairLegacyUserID: getEnvInt64("REPAIR_LEGACY_USER_ID", 0),

		RefDataFile: getEnv("REFDATA_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogFile:   getEnv("LOG_FILE", ""),

		MetricsPort: getEnvInt("METRICS_PORT", 0),

		Progress: getEnvBool("PROGRESS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.V1Driver != "mysql" && c.V1Driver != "sqlite3" {
		return fmt.Errorf("V1_DB_DRIVER must be mysql or sqlite3, got %q", c.V1Driver)
	}
	if c.V2Driver != "mysql" && c.V2Driver != "sqlite" {
		return fmt.Errorf("V2_DB_DRIVER must be mysql or sqlite, got %q", c.V2Driver)
	}
	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("MIGRATE_WORKERS must be between 1 and 32")
	}
	switch c.GroupingStrategy {
	case "one_per_venue", "group_by_category", "single_per_user":
	default:
		return fmt.Errorf("GROUPING_STRATEGY must be one_per_venue, group_by_category or single_per_user, got %q", c.GroupingStrategy)
	}
	for _, p := range c.Phases {
		if !isKnownPhase(p) {
			return fmt.Errorf("unknown phase %q in MIGRATE_PHASES", p)
		}
	}
	if c.AssetTimeoutSec < 1 {
		return fmt.Errorf("ASSET_TIMEOUT_SEC must be at least 1")
	}
	return nil
}

// V1DSN builds the database/sql DSN for the legacy store.
func (c *Config) V1DSN() string {
	if c.V1Driver == "sqlite3" {
		return c.V1Name
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.V1User, c.V1Password, c.V1Host, c.V1Port, c.V1Name)
}

// TargetDSN builds the GORM DSN for the V2 store.
func (c *Config) TargetDSN() string {
	if c.V2DSN != "" {
		return c.V2DSN
	}
	if c.V2Driver == "sqlite" {
		return c.V2Name
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		c.V2User, c.V2Password, c.V2Host, c.V2Port, c.V2Name)
}

// EffectivePhases returns the phase list to run, in dependency order.
// An empty MIGRATE_PHASES means a full run.
func (c *Config) EffectivePhases() []string {
	if len(c.Phases) == 0 {
		return AllPhases
	}
	ordered := make([]string, 0, len(c.Phases))
	for _, p := range AllPhases {
		for _, want := range c.Phases {
			if p == want {
				ordered = append(ordered, p)
				break
			}
		}
	}
	return ordered
}

func isKnownPhase(name string) bool {
	for _, p := range AllPhases {
		if p == name {
			return true
		}
	}
	return false
}

func parsePhases(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	phases := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.ToLower(part))
		if part != "" {
			phases = append(phases, part)
		}
	}
	return phases
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
