package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	ServerHost string

	// Relay
	RelaySendBuffer   int
	RelayPingInterval time.Duration
	RelayReadTimeout  time.Duration
	RelayIdleTimeout  time.Duration

	// Scale-out and discovery; empty / false keeps the relay standalone
	RelayRedisAddr string
	RelayMDNS      bool

	// Peer defaults
	RelayURL string
	Session  string

	// Observability
	JaegerEndpoint string
	TracingEnabled bool
}

// Peer is the subset of settings the storysync peer reads.
type Peer struct {
	RelayURL string
	Session  string
}

// LoadPeer reads the peer defaults. Relay settings are not validated.
func LoadPeer() Peer {
	// Load .env file if it exists
	_ = godotenv.Load()

	return Peer{
		RelayURL: getEnv("STORYSYNC_RELAY_URL", "http://localhost:8080"),
		Session:  getEnv("STORYSYNC_SESSION", "default"),
	}
}

func Load() (*Config, error) {
	peer := LoadPeer()

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		RelaySendBuffer:   getEnvInt("RELAY_SEND_BUFFER", 256),
		RelayPingInterval: getEnvSeconds("RELAY_PING_INTERVAL_SECONDS", 54),
		RelayReadTimeout:  getEnvSeconds("RELAY_READ_TIMEOUT_SECONDS", 60),
		RelayIdleTimeout:  getEnvSeconds("RELAY_IDLE_TIMEOUT_SECONDS", 300),

		RelayRedisAddr: getEnv("RELAY_REDIS_ADDR", ""),
		RelayMDNS:      getEnvBool("RELAY_MDNS", false),

		RelayURL: peer.RelayURL,
		Session:  peer.Session,

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	if c.RelaySendBuffer <= 0 {
		return fmt.Errorf("RELAY_SEND_BUFFER must be positive, got %d", c.RelaySendBuffer)
	}
	if c.RelayPingInterval <= 0 || c.RelayReadTimeout <= 0 || c.RelayIdleTimeout <= 0 {
		return fmt.Errorf("relay intervals must be positive")
	}
	// a peer only proves it is alive by answering pings
	if c.RelayPingInterval >= c.RelayReadTimeout {
		return fmt.Errorf("RELAY_PING_INTERVAL_SECONDS (%s) must be below RELAY_READ_TIMEOUT_SECONDS (%s)",
			c.RelayPingInterval, c.RelayReadTimeout)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// Port returns the numeric server port, or 0 if it is not a number.
func (c *Config) Port() int {
	port, err := strconv.Atoi(c.ServerPort)
	if err != nil {
		return 0
	}
	return port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
