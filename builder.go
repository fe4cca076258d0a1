package goICloud

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/goICloud/internal/rate"
	"github.com/MrEthical07/goICloud/internal/transport"
	"github.com/MrEthical07/goICloud/jwt"
	"github.com/MrEthical07/goICloud/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Builder assembles a Client. A Builder can be built once.
type Builder struct {
	config         Config
	httpClient     *http.Client
	logger         *slog.Logger
	redis          redis.UniversalClient
	auditSink      AuditSink
	tracerProvider trace.TracerProvider

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithHTTPClient sets the client used for every round trip. Its Jar is
// ignored; each call uses the cookies of the session it is made for.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRedis enables the session store and, when configured, the login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := b.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Transport.Timeout}
	}

	c := &Client{
		cfg: cfg,
		transport: transport.New(hc, transport.Config{
			Origin:       cfg.Endpoints.Origin,
			UserAgent:    cfg.Client.UserAgent,
			MaxBodyBytes: cfg.Transport.MaxBodyBytes,
		}, logger, b.tracerProvider),
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		now:     time.Now,
	}

	if cfg.Handoff.Enabled {
		mgr, err := jwt.NewManager(jwt.Config{
			SigningMethod: cfg.Handoff.SigningMethod,
			PrivateKey:    cfg.Handoff.PrivateKey,
			PublicKey:     cfg.Handoff.PublicKey,
			Issuer:        cfg.Handoff.Issuer,
			Audience:      cfg.Handoff.Audience,
			Leeway:        cfg.Handoff.Leeway,
			KeyID:         cfg.Handoff.KeyID,
		})
		if err != nil {
			return nil, err
		}
		c.handoff = mgr
	}

	if b.redis != nil {
		c.sessions = session.NewStore(b.redis, cfg.Sessions.RedisPrefix)
		if cfg.Throttle.Enabled {
			c.limiter = rate.New(b.redis, rate.Config{
				Prefix:           cfg.Throttle.RedisPrefix,
				MaxLoginAttempts: cfg.Throttle.MaxLoginAttempts,
				LoginCooldown:    cfg.Throttle.LoginCooldown,
			})
		}
	}

	c.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	for _, w := range cfg.Lint().BySeverity(LintWarn) {
		logger.Warn("icloud client config", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}

	b.built = true
	return c, nil
}
