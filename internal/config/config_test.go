package config

import (
	"os"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no .env
	for _, key := range []string{
		"SERVER_HOST", "SERVER_PORT", "RELAY_SEND_BUFFER", "RELAY_PING_INTERVAL_SECONDS",
		"RELAY_READ_TIMEOUT_SECONDS", "RELAY_IDLE_TIMEOUT_SECONDS", "STORYSYNC_RELAY_URL",
		"STORYSYNC_SESSION", "JAEGER_ENDPOINT", "TRACING_ENABLED", "RELAY_REDIS_ADDR", "RELAY_MDNS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	assert.Equal(t, nil, err)
	assert.Equal(t, "localhost:8080", cfg.Addr())
	assert.Equal(t, 256, cfg.RelaySendBuffer)
	assert.Equal(t, 54*time.Second, cfg.RelayPingInterval)
	assert.Equal(t, 60*time.Second, cfg.RelayReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.RelayIdleTimeout)
	assert.Equal(t, "http://localhost:8080", cfg.RelayURL)
	assert.Equal(t, "default", cfg.Session)
	assert.Equal(t, true, cfg.TracingEnabled)
	assert.Equal(t, "", cfg.RelayRedisAddr)
	assert.Equal(t, false, cfg.RelayMDNS)
	assert.Equal(t, 8080, cfg.Port())
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_HOST", "0.0.0.0")
	t.Setenv("SERVER_PORT", "5173")
	t.Setenv("RELAY_SEND_BUFFER", " 16 ")
	t.Setenv("RELAY_PING_INTERVAL_SECONDS", "5")
	t.Setenv("RELAY_READ_TIMEOUT_SECONDS", "10")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("STORYSYNC_SESSION", "chapter-1")
	t.Setenv("RELAY_REDIS_ADDR", "redis:6379")
	t.Setenv("RELAY_MDNS", "1")

	cfg, err := Load()
	assert.Equal(t, nil, err)
	assert.Equal(t, "0.0.0.0:5173", cfg.Addr())
	assert.Equal(t, 16, cfg.RelaySendBuffer)
	assert.Equal(t, 5*time.Second, cfg.RelayPingInterval)
	assert.Equal(t, false, cfg.TracingEnabled)
	assert.Equal(t, "chapter-1", cfg.Session)
	assert.Equal(t, "redis:6379", cfg.RelayRedisAddr)
	assert.Equal(t, true, cfg.RelayMDNS)
	assert.Equal(t, 5173, cfg.Port())
}

func TestGarbageFallsBackToDefault(t *testing.T) {
	t.Setenv("X_INT", "twelve")
	t.Setenv("X_BOOL", "maybe")
	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.Equal(t, true, getEnvBool("X_BOOL", true))
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RELAY_PING_INTERVAL_SECONDS", "60")
	t.Setenv("RELAY_READ_TIMEOUT_SECONDS", "60")
	_, err := Load()
	assert.NotEqual(t, nil, err)

	cfg := &Config{RelaySendBuffer: 0, RelayPingInterval: time.Second, RelayReadTimeout: 2 * time.Second, RelayIdleTimeout: time.Second}
	assert.NotEqual(t, nil, cfg.Validate())
}

func TestLoadPeerIgnoresRelaySettings(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RELAY_SEND_BUFFER", "-1")
	t.Setenv("STORYSYNC_RELAY_URL", "https://relay.example.com")
	t.Setenv("STORYSYNC_SESSION", "")

	peer := LoadPeer()
	assert.Equal(t, "https://relay.example.com", peer.RelayURL)
	assert.Equal(t, "default", peer.Session)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}
