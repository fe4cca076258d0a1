package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/goICloud/internal/transport"

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 16 << 20

// ErrBodyTooLarge is returned when a response exceeds the configured cap.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Config holds the fixed request identity.
type Config struct {
	Origin       string
	Referer      string
	UserAgent    string
	MaxBodyBytes int64
}

// Request describes one round trip.
type Request struct {
	Op     string
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte
	Jar    http.CookieJar
}

// Response is a fully read response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
}

// Client performs requests with a shared *http.Client.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New returns a Client. A nil hc uses http.DefaultClient; a nil logger uses
// slog.Default(); a nil tp uses the global tracer provider.
func New(hc *http.Client, cfg Config, logger *slog.Logger, tp trace.TracerProvider) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Referer == "" && cfg.Origin != "" {
		cfg.Referer = strings.TrimRight(cfg.Origin, "/") + "/"
	}
	return &Client{
		http:   hc,
		cfg:    cfg,
		logger: logger,
		tracer: tp.Tracer(tracerName),
		now:    time.Now,
	}
}

// Do sends req and reads the whole response body. Non-2xx statuses are not
// errors here; callers classify them from the body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(req.Query) > 0 {
		q := target.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	ctx, span := c.tracer.Start(ctx, req.Op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("server.address", target.Host),
			attribute.String("url.path", target.Path),
		),
	)
	defer span.End()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.applyHeaders(httpReq, req)

	hc := *c.http
	hc.Jar = req.Jar

	start := c.now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.DebugContext(ctx, "icloud round trip failed", "op", req.Op, "method", method, "host", target.Host, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, c.cfg.MaxBodyBytes)
	elapsed := c.now().Sub(start)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	c.logger.DebugContext(ctx, "icloud round trip",
		"op", req.Op,
		"method", method,
		"host", target.Host,
		"status", resp.StatusCode,
		"duration", elapsed,
		"bytes", len(data),
	)

	return &Response{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     data,
		Duration: elapsed,
	}, nil
}

func (c *Client) applyHeaders(httpReq *http.Request, req Request) {
	if c.cfg.Origin != "" {
		httpReq.Header.Set("Origin", c.cfg.Origin)
	}
	if c.cfg.Referer != "" {
		httpReq.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	}
	httpReq.Header.Set("Accept", "application/json, text/javascript, */*")
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}
