package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Auth     AuthConfig
	SSE      SSEConfig
	Log      LogConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Driver string // "sqlite3" or "mysql"
	DSN    string // file path for sqlite3, driver DSN for mysql (must carry parseTime=true)
}

// HTTPConfig contains REST and event-stream server settings.
type HTTPConfig struct {
	Address     string
	CORSOrigins []string
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // empty disables the ops listener
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// SSEConfig tunes the notification hub.
type SSEConfig struct {
	Interval    time.Duration // periodic update period
	RecentLimit int           // orders per snapshot
}

type LogConfig struct {
	Service string
}

var defaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:3001", "http://localhost:5173"}

func load(defaultSecret string) (*Config, error) {
	ttl, err := getEnvDuration("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	interval, err := getEnvDuration("SSE_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	recent, err := getEnvInt("SSE_RECENT_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	driver := getEnv("DB_DRIVER", "sqlite3")
	dsn := getEnv("DB_DSN", "")
	switch driver {
	case "sqlite3":
		if dsn == "" {
			dsn = "vahtook.db"
		}
	case "mysql":
		if dsn == "" {
			if dsn, err = MySQLDSN(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER %q: want sqlite3 or mysql", driver)
	}
	return &Config{
		Database: DatabaseConfig{Driver: driver, DSN: dsn},
		HTTP: HTTPConfig{
			Address:     getEnv("HTTP_ADDRESS", ":5000"),
			CORSOrigins: getEnvList("CORS_ORIGINS", defaultCORSOrigins),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret(defaultSecret),
			TokenTTL:  ttl,
		},
		SSE: SSEConfig{
			Interval:    interval,
			RecentLimit: recent,
		},
		Log: LogConfig{
			Service: getEnv("LOG_SERVICE", "vahtook-api"),
		},
	}, nil
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}
	// Validate critical settings
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

// MySQLDSN assembles a go-sql-driver DSN from MYSQL_USER, MYSQL_PASSWORD, MYSQL_HOST,
// MYSQL_PORT, MYSQL_DATABASE and MYSQL_PARAMS (a query string). parseTime is always on.
func MySQLDSN() (string, error) {
	c := mysql.NewConfig()
	c.User = getEnv("MYSQL_USER", "root")
	c.Passwd = getEnv("MYSQL_PASSWORD", "")
	c.Net = "tcp"
	c.Addr = getEnv("MYSQL_HOST", "127.0.0.1") + ":" + getEnv("MYSQL_PORT", "3306")
	c.DBName = getEnv("MYSQL_DATABASE", "vahtook")
	c.ParseTime = true
	c.Loc = time.UTC
	if p := getEnv("MYSQL_PARAMS", ""); p != "" {
		c.Params = map[string]string{}
		for _, kv := range strings.Split(p, "&") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return "", fmt.Errorf("invalid MYSQL_PARAMS entry %q", kv)
			}
			c.Params[k] = v
		}
	}
	return c.FormatDSN(), nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// jwtSecret treats an empty JWT_SECRET as unset.
func jwtSecret(defaultSecret string) string {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		return v
	}
	return defaultSecret
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("invalid duration for %s: must be positive", key)
		}
		return d, nil
	}
	return defaultVal, nil
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, defaultVal []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s %s, HTTP: %s, gRPC: %s, SSE: %s/%d, Auth: *** (masked) ***}",
		c.Database.Driver, maskDSN(c.Database.DSN), c.HTTP.Address, c.GRPC.Address, c.SSE.Interval, c.SSE.RecentLimit)
}

// maskDSN hides the password of a MySQL DSN.
func maskDSN(dsn string) string {
	c, err := mysql.ParseDSN(dsn)
	if err != nil || c.Passwd == "" {
		return dsn
	}
	c.Passwd = "***"
	return c.FormatDSN()
}
