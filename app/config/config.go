package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration, loaded from the environment with an
// optional .env file for development.
type Config struct {
	Environment string
	ListenAddr  string
	LogLevel    string

	Database DatabaseConfig
	Agent    AgentConfig

	DataPath string
	Discovery DiscoveryConfig
}

// DatabaseConfig holds database connection settings. SQLite is the default
// (single-process, single-writer); postgres is available for a shared back
// office deployment.
type DatabaseConfig struct {
	Type     string // "sqlite" or "postgres"
	Path     string // sqlite file path
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

// AgentConfig holds settings for the local fiscalisation agent.
type AgentConfig struct {
	Endpoint       string // loopback HTTP endpoint of the agent
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DiscoveryConfig controls mDNS advertisement of the API on the LAN.
type DiscoveryConfig struct {
	Enabled      bool
	InstanceName string
	Port         int
}

// Load reads configuration from environment variables and .env.
func Load() Config {
	_ = godotenv.Load()

	listen := getenv("LISTEN_ADDR", ":8090")

	return Config{
		Environment: getenv("ENVIRONMENT", "development"),
		ListenAddr:  listen,
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Type:     strings.ToLower(getenv("DB_TYPE", "sqlite")),
			Path:     getenv("DB_PATH", "data/posfiscal.db"),
			Host:     getenv("DB_HOST", "localhost"),
			Port:     getenvInt("DB_PORT", 5432),
			Database: getenv("DB_NAME", "posfiscal"),
			Username: getenv("DB_USER", "postgres"),
			Password: getenv("DB_PASSWORD", "postgres"),
			SSLMode:  getenv("DB_SSLMODE", "disable"),
		},
		Agent: AgentConfig{
			Endpoint:       getenv("AGENT_ENDPOINT", "http://127.0.0.1:8085/api/v1/documents"),
			ConnectTimeout: getenvDuration("AGENT_CONNECT_TIMEOUT", 5*time.Second),
			RequestTimeout: getenvDuration("AGENT_REQUEST_TIMEOUT", 30*time.Second),
		},
		DataPath: getenv("DATA_PATH", "data"),
		Discovery: DiscoveryConfig{
			Enabled:      getenvBool("DISCOVERY_ENABLED", true),
			InstanceName: getenv("DISCOVERY_NAME", "POS Fiscal Server"),
			Port:         listenPort(listen, 8090),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func listenPort(addr string, fallback int) int {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return fallback
	}
	if n, err := strconv.Atoi(addr[idx+1:]); err == nil && n > 0 {
		return n
	}
	return fallback
}
