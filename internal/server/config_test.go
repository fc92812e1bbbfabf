package server

import (
	"reflect"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Expected default port :8080, got %s", cfg.Port)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("Expected default max message size 4096, got %d", cfg.MaxMessageSize)
	}
	if !reflect.DeepEqual(cfg.Rooms, DefaultRooms) {
		t.Errorf("Expected default rooms %v, got %v", DefaultRooms, cfg.Rooms)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
		t.Errorf("Expected default origins [*], got %v", cfg.AllowedOrigins)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("Unexpected default rate limit %+v", cfg.RateLimit)
	}
	if cfg.Hostname == "" {
		t.Error("Expected a default hostname")
	}
}

// TestNewConfigDefaultsAreIndependent guards against sharing DefaultRooms.
func TestNewConfigDefaultsAreIndependent(t *testing.T) {
	cfg := NewConfig()
	cfg.Rooms[0] = "mutated"

	if DefaultRooms[0] == "mutated" {
		t.Fatal("NewConfig shares the DefaultRooms backing array")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_HOSTNAME", "relay-1")
	t.Setenv("ROOMS", "lobby, ops ,lobby,,")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("SEND_BUFFER_SIZE", "32")
	t.Setenv("RATE_LIMIT_BURST", "9")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := NewConfigFromEnv()

	if cfg.Port != ":9090" {
		t.Errorf("Expected port :9090, got %s", cfg.Port)
	}
	if cfg.Hostname != "relay-1" {
		t.Errorf("Expected hostname relay-1, got %s", cfg.Hostname)
	}
	if !reflect.DeepEqual(cfg.Rooms, []string{"lobby", "ops", "lobby"}) {
		t.Errorf("Unexpected rooms %v", cfg.Rooms)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("Expected max message size 1024, got %d", cfg.MaxMessageSize)
	}
	if cfg.SendBufferSize != 32 {
		t.Errorf("Expected send buffer 32, got %d", cfg.SendBufferSize)
	}
	if cfg.RateLimit.Burst != 9 || cfg.RateLimit.RefillInterval != 3*time.Second {
		t.Errorf("Unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Env != "prod" || cfg.LogLevel != "debug" {
		t.Errorf("Unexpected env/log level %s/%s", cfg.Env, cfg.LogLevel)
	}

	sanitized := sanitizeConfig(*cfg)
	if !reflect.DeepEqual(sanitized.Rooms, []string{"lobby", "ops"}) {
		t.Errorf("Expected sanitized rooms to be deduplicated, got %v", sanitized.Rooms)
	}
}

func TestNewConfigFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-5")
	t.Setenv("SEND_BUFFER_SIZE", "lots")
	t.Setenv("RATE_LIMIT_BURST", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")

	cfg := NewConfigFromEnv()
	defaults := NewConfig()

	if cfg.MaxMessageSize != defaults.MaxMessageSize {
		t.Errorf("Expected default max message size, got %d", cfg.MaxMessageSize)
	}
	if cfg.SendBufferSize != defaults.SendBufferSize {
		t.Errorf("Expected default send buffer, got %d", cfg.SendBufferSize)
	}
	if cfg.RateLimit != defaults.RateLimit {
		t.Errorf("Expected default rate limit, got %+v", cfg.RateLimit)
	}
}

func TestNormalizePort(t *testing.T) {
	tests := map[string]string{
		"8080":           ":8080",
		":9000":          ":9000",
		"127.0.0.1:7000": "127.0.0.1:7000",
	}
	for in, want := range tests {
		if got := normalizePort(in); got != want {
			t.Errorf("normalizePort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeConfigFillsZeroValues(t *testing.T) {
	cfg := sanitizeConfig(Config{})

	if cfg.Port != defaultPort {
		t.Errorf("Expected port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.Hostname == "" {
		t.Error("Expected hostname to be filled")
	}
	if cfg.MaxMessageSize != defaultMaxMessageSize || cfg.SendBufferSize != defaultSendBufferSize {
		t.Errorf("Unexpected limits %d/%d", cfg.MaxMessageSize, cfg.SendBufferSize)
	}
	if cfg.WriteWait != defaultWriteWait || cfg.PongWait != defaultPongWait {
		t.Errorf("Unexpected timeouts %v/%v", cfg.WriteWait, cfg.PongWait)
	}
	if cfg.pingPeriod() >= cfg.PongWait {
		t.Errorf("Ping period %v must be shorter than pong wait %v", cfg.pingPeriod(), cfg.PongWait)
	}
	if len(cfg.Rooms) != 0 {
		t.Errorf("Expected no declared rooms, got %v", cfg.Rooms)
	}
}
