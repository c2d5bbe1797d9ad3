package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"foxylend/observability/logging"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
environment: DEV
tls:
  allow_insecure: true
auth:
  hmac_secret: " dev-secret "
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected dev environment")
	}
	if cfg.Auth.HMACSecret != "dev-secret" {
		t.Fatalf("expected trimmed secret, got %q", cfg.Auth.HMACSecret)
	}
	if cfg.Outbox.Driver != DriverSQLite || cfg.Outbox.DSN == "" {
		t.Fatalf("expected in-memory sqlite outbox, got %+v", cfg.Outbox)
	}
	if cfg.Outbox.PollInterval != defaultPollInterval || cfg.Outbox.BatchSize != defaultBatchSize || cfg.Outbox.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("outbox defaults not applied: %+v", cfg.Outbox)
	}
}

func TestLoadConfigParsesDurationsAndOutbox(t *testing.T) {
	path := writeConfig(t, `
environment: prod
data_dir: /var/lib/lendingd
tls:
  cert: server.crt
  key: server.key
auth:
  hmac_secret: "0123456789abcdef0123456789abcdef"
  clock_skew: 30s
outbox:
  driver: postgres
  dsn: postgres://lend@db/lend
  poll_interval: 500ms
rate_limit:
  requests_per_minute: 120
  burst: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.ClockSkew != 30*time.Second {
		t.Fatalf("unexpected clock skew: %v", cfg.Auth.ClockSkew)
	}
	if cfg.Outbox.PollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.Outbox.PollInterval)
	}
	sanitized := cfg.Sanitized()
	if sanitized.Auth.HMACSecret != logging.RedactedValue || sanitized.Outbox.DSN != logging.RedactedValue {
		t.Fatalf("secrets leaked: %+v", sanitized)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv(envHMACSecret, "from-env")
	t.Setenv(envListen, "127.0.0.1:9000")
	t.Setenv(envOTLPHeaders, "x-api-key=abc, tenant = lend")
	path := writeConfig(t, `
environment: dev
tls:
  allow_insecure: true
auth:
  hmac_secret: from-file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.HMACSecret != "from-env" || cfg.ListenAddress != "127.0.0.1:9000" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Telemetry.Headers["tenant"] != "lend" || cfg.Telemetry.Headers["x-api-key"] != "abc" {
		t.Fatalf("unexpected headers: %v", cfg.Telemetry.Headers)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing secret": `
environment: dev
tls:
  allow_insecure: true
`,
		"short secret outside dev": `
environment: prod
data_dir: /data
tls:
  allow_insecure: true
auth:
  hmac_secret: short
`,
		"memory store outside dev": `
environment: prod
tls:
  allow_insecure: true
auth:
  hmac_secret: "0123456789abcdef0123456789abcdef"
`,
		"tls half configured": `
environment: dev
tls:
  cert: server.crt
auth:
  hmac_secret: s
`,
		"unknown driver": `
environment: dev
tls:
  allow_insecure: true
auth:
  hmac_secret: s
outbox:
  driver: mongo
`,
		"postgres without dsn": `
environment: dev
tls:
  allow_insecure: true
auth:
  hmac_secret: s
outbox:
  driver: postgres
`,
		"unknown field": `
environment: dev
listen_addr: ":1"
tls:
  allow_insecure: true
auth:
  hmac_secret: s
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
