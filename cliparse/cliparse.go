package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	DatabaseURL   string
	DatabaseType  string
	JWTSecret     string
	AdminEmail    string
	AdminPassword string
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string
}

type ClientConfig struct {
	APIURL         string
	Profile        string
	TallyInterval  time.Duration
	LeaderInterval time.Duration
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment.
// Variables already set are not overridden; a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ParseFlags validates flags and sets port number
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var envFile, brokers string

	fs := flag.NewFlagSet("fingervote-server", flag.ContinueOnError)

	fs.StringVar(&envFile, "env", ".env", "Path to .env file")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.RedisURL, "redis", "", "Redis URL for tally cache and feed fan-out")
	fs.StringVar(&brokers, "kafka-brokers", "", "Comma-separated Kafka brokers for vote export")
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", "", "Kafka topic for vote export")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "Admin session signing secret (prefer env)")
	fs.StringVar(&cfg.AdminEmail, "admin-email", "", "Bootstrap admin email")
	fs.StringVar(&cfg.AdminPassword, "admin-password", "", "Bootstrap admin password (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := LoadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3318 // default
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}

	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKERS")
	}
	cfg.KafkaBrokers = splitList(brokers)
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = os.Getenv("KAFKA_TOPIC")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "fingervote.votes"
	}

	// Secrets - MUST be provided
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	if cfg.AdminEmail == "" {
		cfg.AdminEmail = os.Getenv("ADMIN_EMAIL")
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return Config{}, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

// ParseClientFlags parses global voter CLI flags and returns the remaining
// arguments (the subcommand and its arguments).
func ParseClientFlags(args []string) (ClientConfig, []string, error) {
	var cfg ClientConfig
	var envFile string

	fs := flag.NewFlagSet("fingervote", flag.ContinueOnError)

	fs.StringVar(&envFile, "env", ".env", "Path to .env file")
	fs.StringVar(&cfg.APIURL, "api", "", "Ledger server base URL")
	fs.StringVar(&cfg.Profile, "profile", "", "Local profile name (one voter identity per profile)")
	fs.DurationVar(&cfg.TallyInterval, "tally-interval", 0, "Tally poll interval")
	fs.DurationVar(&cfg.LeaderInterval, "leader-interval", 0, "Leader and roster poll interval")

	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, nil, err
	}

	if err := LoadEnvFile(envFile); err != nil {
		return ClientConfig{}, nil, err
	}

	if cfg.APIURL == "" {
		cfg.APIURL = os.Getenv("FINGERVOTE_API")
		if cfg.APIURL == "" {
			cfg.APIURL = "http://localhost:3318"
		}
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if cfg.Profile == "" {
		cfg.Profile = os.Getenv("FINGERVOTE_PROFILE")
		if cfg.Profile == "" {
			cfg.Profile = "default"
		}
	}
	if strings.ContainsAny(cfg.Profile, `/\`) {
		return ClientConfig{}, nil, errors.New("profile name must not contain path separators")
	}

	if cfg.TallyInterval == 0 {
		cfg.TallyInterval = 15 * time.Second
	}
	if cfg.LeaderInterval == 0 {
		cfg.LeaderInterval = 30 * time.Second
	}
	if cfg.TallyInterval < 0 || cfg.LeaderInterval < 0 {
		return ClientConfig{}, nil, errors.New("poll intervals must be positive")
	}

	return cfg, fs.Args(), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
