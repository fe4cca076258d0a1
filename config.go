package goICloud

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goICloud/jwt"
)

// Config groups every tunable of a Client. Start from DefaultConfig and
// override fields; a zero Config is not valid.
type Config struct {
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Client    ClientConfig    `yaml:"client"`
	Transport TransportConfig `yaml:"transport"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Handoff   HandoffConfig   `yaml:"handoff"`
}

/*
====================================
ENDPOINTS
====================================
*/

// EndpointsConfig locates the setup service and the record database.
type EndpointsConfig struct {
	SetupRoot string `yaml:"setup_root"`
	Origin    string `yaml:"origin"`
	// RecordService names the service map entry whose url is the record database root.
	RecordService  string `yaml:"record_service"`
	RecordEndpoint string `yaml:"record_endpoint"`
}

// ClientConfig holds the identity the client presents to the service.
type ClientConfig struct {
	UserAgent             string `yaml:"user_agent"`
	BuildNumber           string `yaml:"build_number"`
	RecordBuildVersion    string `yaml:"record_build_version"`
	RecordJSVersion       string `yaml:"record_js_version"`
	RecordMasteringNumber string `yaml:"record_mastering_number"`
	ExtendedLogin         bool   `yaml:"extended_login"`
}

// TransportConfig bounds each round trip.
type TransportConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// SessionsConfig configures the Redis session store.
type SessionsConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
}

// ThrottleConfig configures the local login throttle. It only takes effect
// when the client has a Redis connection.
type ThrottleConfig struct {
	Enabled          bool          `yaml:"enabled"`
	RedisPrefix      string        `yaml:"redis_prefix"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LoginCooldown    time.Duration `yaml:"login_cooldown"`
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// HandoffConfig configures signed session handoff tokens. Keys are read from
// the *File paths by LoadConfig.
type HandoffConfig struct {
	Enabled        bool              `yaml:"enabled"`
	SigningMethod  jwt.SigningMethod `yaml:"signing_method"`
	PrivateKeyFile string            `yaml:"private_key_file"`
	PublicKeyFile  string            `yaml:"public_key_file"`
	PrivateKey     []byte            `yaml:"-"`
	PublicKey      []byte            `yaml:"-"`
	Issuer         string            `yaml:"issuer"`
	Audience       string            `yaml:"audience"`
	Leeway         time.Duration     `yaml:"leeway"`
	KeyID          string            `yaml:"key_id"`
}

const (
	defaultSetupRoot      = "https://setup.icloud.com/setup/ws/1"
	defaultOrigin         = "https://www.icloud.com"
	defaultRecordService  = "ckdatabasews"
	defaultRecordEndpoint = "/database/1/com.apple.photos.cloud/production/private/records"
	defaultUserAgent      = "Opera/9.52 (X11; Linux i686; U; en)"
)

func defaultConfig() Config {
	return Config{
		Endpoints: EndpointsConfig{
			SetupRoot:      defaultSetupRoot,
			Origin:         defaultOrigin,
			RecordService:  defaultRecordService,
			RecordEndpoint: defaultRecordEndpoint,
		},
		Client: ClientConfig{
			UserAgent:             defaultUserAgent,
			BuildNumber:           "14E45",
			RecordBuildVersion:    "17AProjectDev84",
			RecordJSVersion:       "2.0.34",
			RecordMasteringNumber: "17AHotfix3",
			ExtendedLogin:         true,
		},
		Transport: TransportConfig{
			Timeout:      30 * time.Second,
			MaxBodyBytes: 16 << 20,
		},
		Sessions: SessionsConfig{
			RedisPrefix: "icloud:session",
		},
		Throttle: ThrottleConfig{
			Enabled:          true,
			RedisPrefix:      "icloud",
			MaxLoginAttempts: 5,
			LoginCooldown:    15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Handoff: HandoffConfig{
			Enabled:       false,
			SigningMethod: jwt.MethodEd25519,
			Issuer:        "goicloud",
		},
	}
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Handoff.PrivateKey = cloneBytes(cfg.Handoff.PrivateKey)
	out.Handoff.PublicKey = cloneBytes(cfg.Handoff.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first setting that would make the client unusable.
func (c *Config) Validate() error {
	if err := validateRoot("Endpoints SetupRoot", c.Endpoints.SetupRoot); err != nil {
		return err
	}
	if err := validateRoot("Endpoints Origin", c.Endpoints.Origin); err != nil {
		return err
	}
	if c.Endpoints.RecordService == "" {
		return errors.New("Endpoints RecordService must be set")
	}
	if !strings.HasPrefix(c.Endpoints.RecordEndpoint, "/") {
		return errors.New("Endpoints RecordEndpoint must start with /")
	}

	if c.Client.UserAgent == "" {
		return errors.New("Client UserAgent must be set")
	}
	if c.Client.BuildNumber == "" {
		return errors.New("Client BuildNumber must be set")
	}
	if c.Client.RecordBuildVersion == "" || c.Client.RecordJSVersion == "" || c.Client.RecordMasteringNumber == "" {
		return errors.New("Client record versions must be set")
	}

	if c.Transport.Timeout < 0 {
		return errors.New("Transport Timeout must be >= 0")
	}
	if c.Transport.MaxBodyBytes < 0 {
		return errors.New("Transport MaxBodyBytes must be >= 0")
	}

	if c.Sessions.RedisPrefix == "" {
		return errors.New("Sessions RedisPrefix must be set")
	}

	if c.Throttle.Enabled {
		if c.Throttle.MaxLoginAttempts <= 0 {
			return errors.New("Throttle MaxLoginAttempts must be > 0 when enabled")
		}
		if c.Throttle.LoginCooldown <= 0 {
			return errors.New("Throttle LoginCooldown must be > 0 when enabled")
		}
		if c.Throttle.RedisPrefix == "" {
			return errors.New("Throttle RedisPrefix must be set when enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	if c.Handoff.Enabled {
		switch c.Handoff.SigningMethod {
		case jwt.MethodEd25519:
			if len(c.Handoff.PublicKey) == 0 {
				return errors.New("Handoff ed25519 requires PublicKey")
			}
		case jwt.MethodHS256:
			if len(c.Handoff.PrivateKey) == 0 {
				return errors.New("Handoff hs256 requires PrivateKey")
			}
		default:
			return errors.New("Handoff SigningMethod must be ed25519 or hs256")
		}
		if c.Handoff.Leeway < 0 {
			return errors.New("Handoff Leeway must be >= 0")
		}
	}

	return nil
}

func validateRoot(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s must be set", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", name)
	}
	return nil
}

/*
====================================
LINT
====================================
*/

// LintSeverity ranks a lint warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is a legal but risky setting.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of warnings for a Config.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) []LintWarning {
	var out []LintWarning
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins every warning at or above min into one error, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	var errs []error
	for _, w := range r.BySeverity(min) {
		errs = append(errs, fmt.Errorf("%s [%s]: %s", w.Code, w.Severity, w.Message))
	}
	return errors.Join(errs...)
}

// Lint reports settings that Validate accepts but that are likely mistakes.
func (c *Config) Lint() LintResult {
	var r LintResult
	add := func(code string, sev LintSeverity, msg string) {
		r = append(r, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if u, err := url.Parse(c.Endpoints.SetupRoot); err == nil && u.Scheme == "http" {
		add("setup_root_plaintext", LintHigh, "credentials would be sent without TLS")
	}
	if c.Client.UserAgent != defaultUserAgent {
		add("user_agent_changed", LintInfo, "the service may reject unrecognised user agents")
	}
	if !c.Client.ExtendedLogin {
		add("short_sessions", LintInfo, "sessions expire after a few minutes without extended login")
	}
	if c.Transport.Timeout == 0 {
		add("transport_no_timeout", LintWarn, "round trips can block until the caller's context is cancelled")
	}
	if !c.Throttle.Enabled {
		add("throttle_disabled", LintWarn, "repeated bad passwords reach the service and may lock the account")
	} else if c.Throttle.MaxLoginAttempts > 10 {
		add("throttle_permissive", LintInfo, "more than 10 attempts allowed per cooldown")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintWarn, "a slow audit sink blocks client calls")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 16 {
		add("audit_buffer_small", LintInfo, "audit buffer below 16 events drops under bursts")
	}
	if c.Handoff.Enabled {
		if c.Handoff.SigningMethod == jwt.MethodHS256 {
			add("handoff_symmetric", LintInfo, "every verifier can also mint handoff tokens")
		}
		if c.Handoff.Leeway > 30*time.Second {
			add("handoff_leeway_large", LintWarn, "leeway above 30s extends expired sessions")
		}
		if c.Handoff.Audience == "" {
			add("handoff_no_audience", LintInfo, "tokens are accepted by any verifier sharing the key")
		}
	}
	return r
}
