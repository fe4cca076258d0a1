package goICloud

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goICloud/jwt"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if got := cfg.Lint().AsError(LintWarn); got != nil {
		t.Fatalf("default config must not lint at warn: %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "setup root missing",
			mutate:  func(c *Config) { c.Endpoints.SetupRoot = "" },
			wantErr: "Endpoints SetupRoot must be set",
		},
		{
			name:    "setup root relative",
			mutate:  func(c *Config) { c.Endpoints.SetupRoot = "/setup/ws/1" },
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "origin bad scheme",
			mutate:  func(c *Config) { c.Endpoints.Origin = "ftp://www.icloud.com" },
			wantErr: "Endpoints Origin must be an absolute",
		},
		{
			name:    "record endpoint without slash",
			mutate:  func(c *Config) { c.Endpoints.RecordEndpoint = "database/1" },
			wantErr: "RecordEndpoint must start with /",
		},
		{
			name:    "empty user agent",
			mutate:  func(c *Config) { c.Client.UserAgent = "" },
			wantErr: "UserAgent must be set",
		},
		{
			name:    "record versions",
			mutate:  func(c *Config) { c.Client.RecordJSVersion = "" },
			wantErr: "record versions",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Transport.Timeout = -time.Second },
			wantErr: "Timeout must be >= 0",
		},
		{
			name: "throttle without attempts",
			mutate: func(c *Config) {
				c.Throttle.Enabled = true
				c.Throttle.MaxLoginAttempts = 0
			},
			wantErr: "MaxLoginAttempts",
		},
		{
			name:    "audit without buffer",
			mutate:  func(c *Config) { c.Audit = AuditConfig{Enabled: true} },
			wantErr: "Audit BufferSize",
		},
		{
			name:    "histograms without metrics",
			mutate:  func(c *Config) { c.Metrics = MetricsConfig{EnableLatencyHistograms: true} },
			wantErr: "requires Metrics Enabled",
		},
		{
			name: "handoff without key",
			mutate: func(c *Config) {
				c.Handoff.Enabled = true
				c.Handoff.SigningMethod = jwt.MethodEd25519
			},
			wantErr: "requires PublicKey",
		},
		{
			name: "handoff unknown method",
			mutate: func(c *Config) {
				c.Handoff.Enabled = true
				c.Handoff.SigningMethod = "rs256"
			},
			wantErr: "must be ed25519 or hs256",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoints.SetupRoot = ""
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected build to fail")
	}

	b := New()
	if _, err := b.Build(); err != nil {
		t.Fatalf("default build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestConfigLint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoints.SetupRoot = "http://setup.example.test/setup/ws/1"
	cfg.Client.UserAgent = "custom"
	cfg.Client.ExtendedLogin = false
	cfg.Transport.Timeout = 0
	cfg.Throttle.Enabled = false
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 4, DropIfFull: false}
	cfg.Handoff = HandoffConfig{
		Enabled:       true,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Leeway:        time.Minute,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("linted config must still validate: %v", err)
	}

	res := cfg.Lint()
	want := []string{
		"setup_root_plaintext",
		"user_agent_changed",
		"short_sessions",
		"transport_no_timeout",
		"throttle_disabled",
		"audit_blocking",
		"audit_buffer_small",
		"handoff_symmetric",
		"handoff_leeway_large",
		"handoff_no_audience",
	}
	if got := res.Codes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected codes:\n got %v\nwant %v", got, want)
	}

	high := res.BySeverity(LintHigh)
	if len(high) != 1 || high[0].Code != "setup_root_plaintext" {
		t.Fatalf("unexpected high warnings: %+v", high)
	}
	if len(res.BySeverity(LintWarn)) != 5 {
		t.Fatalf("expected 5 warnings at warn or above, got %+v", res.BySeverity(LintWarn))
	}
	err := res.AsError(LintHigh)
	if err == nil || !strings.Contains(err.Error(), "setup_root_plaintext [HIGH]") {
		t.Fatalf("unexpected lint error: %v", err)
	}
}

func TestConfigLintPermissiveThrottle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Throttle.MaxLoginAttempts = 50
	if got := cfg.Lint().Codes(); !reflect.DeepEqual(got, []string{"throttle_permissive"}) {
		t.Fatalf("unexpected codes: %v", got)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "handoff.key")
	if err := os.WriteFile(keyPath, []byte("0123456789abcdef0123456789abcdef"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	cfgPath := filepath.Join(dir, "icloud.yaml")
	doc := `
client:
  extended_login: false
transport:
  timeout: 45s
throttle:
  max_login_attempts: 3
  login_cooldown: 1h
audit:
  enabled: true
  buffer_size: 64
handoff:
  enabled: true
  signing_method: hs256
  private_key_file: ` + keyPath + `
  audience: workers
  leeway: 5s
`
	if err := os.WriteFile(cfgPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Transport.Timeout != 45*time.Second || cfg.Throttle.LoginCooldown != time.Hour || cfg.Throttle.MaxLoginAttempts != 3 {
		t.Fatalf("durations not applied: %+v %+v", cfg.Transport, cfg.Throttle)
	}
	if cfg.Client.ExtendedLogin {
		t.Fatal("expected extended login disabled")
	}
	if cfg.Client.UserAgent != DefaultConfig().Client.UserAgent || cfg.Endpoints.SetupRoot != DefaultConfig().Endpoints.SetupRoot {
		t.Fatal("unset keys must keep their defaults")
	}
	if string(cfg.Handoff.PrivateKey) != "0123456789abcdef0123456789abcdef" || cfg.Handoff.Leeway != 5*time.Second {
		t.Fatalf("unexpected handoff config: %+v", cfg.Handoff)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("transport:\n  timeout: soon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatal("expected parse error for invalid duration")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("endpoints:\n  setup_root: not-a-url\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(invalid); err == nil || !strings.Contains(err.Error(), "SetupRoot") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
