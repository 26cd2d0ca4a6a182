package config

import (
	"os"
	"path/filepath"
	"testing"
)

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9000
cdp:
  host: "127.0.0.1"
  port: 9333
logging:
  level: "debug"
  format: "console"
`
	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.CDP.Port != 9333 {
		t.Errorf("CDP.Port = %d, want %d", cfg.CDP.Port, 9333)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := createTempConfig(t, "server: {}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, defaultPort)
	}
	if cfg.Render.Timeout != defaultRenderTimeout {
		t.Errorf("Render.Timeout = %v, want default %v", cfg.Render.Timeout, defaultRenderTimeout)
	}
	if cfg.Render.SettleWindow != defaultSettleWindow {
		t.Errorf("Render.SettleWindow = %v, want default %v", cfg.Render.SettleWindow, defaultSettleWindow)
	}
	if cfg.Pool.MaxIterations != defaultMaxIterations {
		t.Errorf("Pool.MaxIterations = %d, want default %d", cfg.Pool.MaxIterations, defaultMaxIterations)
	}
	if cfg.Cache.Backend != defaultCacheBackend {
		t.Errorf("Cache.Backend = %q, want default %q", cfg.Cache.Backend, defaultCacheBackend)
	}
	if cfg.Breaker.FailMax != defaultBreakerFailMax {
		t.Errorf("Breaker.FailMax = %d, want default %d", cfg.Breaker.FailMax, defaultBreakerFailMax)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := createTempConfig(t, "server:\n  port: 8080\n")

	os.Setenv("GATEWAY_PORT", "9999")
	os.Setenv("GATEWAY_CDP_HOST", "10.0.0.5")
	os.Setenv("GATEWAY_ALLOWED_DOMAINS", "a.com, b.com")
	defer func() {
		os.Unsetenv("GATEWAY_PORT")
		os.Unsetenv("GATEWAY_CDP_HOST")
		os.Unsetenv("GATEWAY_ALLOWED_DOMAINS")
	}()

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want %d (from env)", cfg.Server.Port, 9999)
	}
	if cfg.CDP.Host != "10.0.0.5" {
		t.Errorf("CDP.Host = %q, want %q (from env)", cfg.CDP.Host, "10.0.0.5")
	}
	if len(cfg.Policy.AllowedDomains) != 2 || cfg.Policy.AllowedDomains[0] != "a.com" {
		t.Errorf("Policy.AllowedDomains = %v, want [a.com b.com]", cfg.Policy.AllowedDomains)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	path := createTempConfig(t, "server:\n  port: 70000\n")

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for out-of-range port, got nil")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := createTempConfig(t, "server:\n  port: [broken\n")

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidateCacheBackendRequiresConfig(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 8080},
		Pool:    PoolConfig{Concurrency: 4},
		CDP:     CDPConfig{Port: 9222},
		Cache:   CacheConfig{Backend: "disk"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for disk backend with no root, got nil")
	}

	cfg.Cache.Root = "/tmp/cache"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error = %v", err)
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 8080},
		Pool:    PoolConfig{Concurrency: 4},
		CDP:     CDPConfig{Port: 9222},
		Cache:   CacheConfig{Backend: "none"},
		Logging: LoggingConfig{Level: "loud", Format: "json"},
	}

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for invalid log level, got nil")
	}
}

func TestCDPDebugURL(t *testing.T) {
	cfg := &Config{CDP: CDPConfig{Host: "127.0.0.1", Port: 9222}}
	if got, want := cfg.CDPDebugURL(), "http://127.0.0.1:9222"; got != want {
		t.Errorf("CDPDebugURL() = %q, want %q", got, want)
	}
}

func TestLoadPoolConcurrencyFromYAML(t *testing.T) {
	path := createTempConfig(t, "pool:\n  concurrency: 8\n  max_iterations: 50\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pool.Concurrency != 8 {
		t.Errorf("Pool.Concurrency = %d, want 8", cfg.Pool.Concurrency)
	}
	if cfg.Pool.MaxIterations != 50 {
		t.Errorf("Pool.MaxIterations = %d, want 50", cfg.Pool.MaxIterations)
	}
}

func TestBreakerResetTimeoutDefault(t *testing.T) {
	path := createTempConfig(t, "breaker:\n  enabled: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Breaker.ResetTimeout != defaultBreakerResetWindow {
		t.Errorf("Breaker.ResetTimeout = %v, want default %v", cfg.Breaker.ResetTimeout, defaultBreakerResetWindow)
	}
	if !cfg.Breaker.Enabled {
		t.Error("Breaker.Enabled = false, want true")
	}
}
