// Package collivery provides integration with the MDS Collivery courier API.
//
// A Client is a single-caller session: it is not safe for concurrent use, but
// any number of clients may share one cache.Cache.
package collivery

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/tournevent/collivery/pkg/cache"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName = "github.com/tournevent/collivery/pkg/collivery"

	// Sandbox credentials, used whenever the configured username is not an email address.
	SandboxEmail    = "demo@collivery.co.za"
	SandboxPassword = "demo"

	sessionTTL   = 50 * time.Minute
	referenceTTL = 24 * time.Hour
	typesTTL     = 7 * 24 * time.Hour
	addressTTL   = 24 * time.Hour
	statusTTL    = time.Hour
	documentTTL  = 12 * time.Hour
)

// Transport names accepted by Config.Transport.
const (
	TransportREST = "rest"
	TransportSOAP = "soap"
	TransportMock = "mock"
)

// Config holds Collivery configuration.
type Config struct {
	Username  string
	Password  string
	Transport string
	BaseURL   string
	SOAPURL   string
	Timeout   time.Duration
	App       AppInfo
}

// Recorder receives client metrics.
type Recorder interface {
	RecordRequest(operation, status string, duration float64)
	RecordError(kind string)
	RecordCacheLookup(operation string, hit bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordRequest(string, string, float64) {}
func (noopRecorder) RecordError(string)                    {}
func (noopRecorder) RecordCacheLookup(string, bool)        {}

// Option configures a Client.
type Option func(*Client)

// WithRecorder sends metrics to r.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithClock overrides the time source used for request timing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is the Collivery API client.
type Client struct {
	config    Config
	apiClient APIClient
	initErr   error
	cache     *cache.Cache
	logger    *otelzap.Logger
	tracer    trace.Tracer
	recorder  Recorder
	now       func() time.Time

	session   *Session
	authError bool
	ledger    Ledger
}

// New creates a Collivery client using the transport named in cfg.
func New(cfg Config, c *cache.Cache, logger *otelzap.Logger, tracer trace.Tracer, opts ...Option) *Client {
	var (
		apiClient APIClient
		initErr   error
	)

	switch cfg.Transport {
	case TransportMock:
		apiClient = NewMockAPIClient()
	case TransportSOAP:
		soap, err := NewSOAPAPIClient(SOAPAPIClientConfig{
			URL:     cfg.SOAPURL,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
		if err != nil {
			initErr = err
		} else {
			apiClient = soap
		}
	default:
		apiClient = NewRESTAPIClient(RESTAPIClientConfig{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			App:     cfg.App,
			Logger:  logger,
		})
	}

	client := NewWithAPIClient(cfg, apiClient, c, logger, tracer, opts...)
	client.initErr = initErr
	return client
}

// NewWithAPIClient creates a Collivery client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, c *cache.Cache, logger *otelzap.Logger, tracer trace.Tracer, opts ...Option) *Client {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	client := &Client{
		config:    cfg,
		apiClient: apiClient,
		cache:     c,
		logger:    logger,
		tracer:    tracer,
		recorder:  noopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// IsSandbox reports whether the client falls back to the demo account.
func (c *Client) IsSandbox() bool {
	return IsSandboxUsername(c.config.Username)
}

// IsSandboxUsername reports whether username would fall back to the demo account.
func IsSandboxUsername(username string) bool {
	_, err := mail.ParseAddress(strings.TrimSpace(username))
	return err != nil
}

// IsAuthError reports whether the most recent authentication attempt failed.
func (c *Client) IsAuthError() bool {
	return c.authError
}

// Errors returns a copy of the ledger of the most recent operation.
func (c *Client) Errors() *Ledger {
	return c.ledger.clone()
}

// Session returns the current session, or nil when unauthenticated.
func (c *Client) Session() *Session {
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *Client) credentials() (string, string) {
	addr, err := mail.ParseAddress(strings.TrimSpace(c.config.Username))
	if err != nil {
		return SandboxEmail, SandboxPassword
	}
	return strings.ToLower(addr.Address), c.config.Password
}

func (c *Client) token() string {
	if c.session == nil {
		return ""
	}
	return c.session.Token
}

// Authenticate establishes a session, reusing a cached one for the same account.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := do(ctx, c, "Authenticate", func(context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	return err
}

// errRejected marks failures already written to the ledger.
var errRejected = errors.New("rejected")

// do wraps every public operation: it clears the ledger, makes sure the client is
// authenticated, runs fn, and converts a non-empty ledger into the returned error.
func do[T any](ctx context.Context, c *Client, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	c.ledger.reset()

	ctx, span := c.tracer.Start(ctx, "collivery."+operation)
	defer span.End()

	start := c.now()
	status := "success"
	defer func() {
		c.recorder.RecordRequest(operation, status, c.now().Sub(start).Seconds())
	}()

	if err := c.ensureSession(ctx); err != nil {
		status = "auth_error"
		return zero, c.fail(ctx, span, operation)
	}

	v, err := fn(ctx)
	if err != nil {
		c.absorb(ctx, err)
	}
	if !c.ledger.Empty() {
		status = "error"
		return zero, c.fail(ctx, span, operation)
	}
	return v, nil
}

func (c *Client) fail(ctx context.Context, span trace.Span, operation string) error {
	ledger := c.ledger.clone()
	for _, e := range ledger.Entries() {
		c.recorder.RecordError(string(e.Kind))
		c.logger.Ctx(ctx).Warn("Collivery operation failed",
			zap.String("operation", operation),
			zap.String("key", e.Key),
			zap.String("kind", string(e.Kind)),
			zap.String("message", e.Message),
		)
	}
	span.SetStatus(codes.Error, ledger.Error())
	span.SetAttributes(attribute.Int("collivery.errors", ledger.Len()))
	return ledger
}

// absorb records err in the ledger.
func (c *Client) absorb(ctx context.Context, err error) {
	if errors.Is(err, errRejected) {
		return
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		key := apiErr.Code
		if key == "" {
			key = string(apiErr.Kind)
		}
		c.ledger.Add(apiErr.Kind, key, apiErr.Message)
		if apiErr.IsAuth() {
			c.dropSession(ctx)
		}
		return
	}
	c.ledger.Add(KindResultUnexpected, string(KindResultUnexpected), err.Error())
}

func authKey(email string) string {
	return "auth." + email
}

// ensureSession moves the client to Authenticated, first from memory, then from
// the shared cache, then by logging in.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.initErr != nil {
		c.authError = true
		c.absorb(ctx, c.initErr)
		return errRejected
	}

	email, password := c.credentials()
	key := authKey(email)

	if c.session != nil && c.session.Email == email && c.cache.Has(ctx, key) {
		return nil
	}
	c.session = nil

	var stored Session
	if c.cache.Has(ctx, key) && c.cache.Get(ctx, key, &stored) && stored.Email == email && stored.Token != "" {
		c.session = &stored
		c.authError = false
		return nil
	}

	session, err := c.apiClient.Authenticate(ctx, &AuthRequest{
		Email:    email,
		Password: password,
		App:      c.config.App,
	})
	if err != nil {
		c.authError = true
		c.absorb(ctx, err)
		c.logger.Ctx(ctx).Warn("Collivery authentication failed", zap.String("email", email), zap.Error(err))
		return errRejected
	}

	session.Email = email
	c.session = session
	c.authError = false
	if err := c.cache.Put(ctx, key, session, sessionTTL); err != nil {
		c.logger.Ctx(ctx).Warn("Failed to cache Collivery session", zap.Error(err))
	}

	c.logger.Ctx(ctx).Info("Authenticated with Collivery",
		zap.String("email", email),
		zap.Int("client_id", session.ClientID),
		zap.Bool("sandbox", c.IsSandbox()),
	)
	return nil
}

func (c *Client) dropSession(ctx context.Context) {
	email, _ := c.credentials()
	c.session = nil
	c.authError = true
	if err := c.cache.Forget(ctx, authKey(email)); err != nil {
		c.logger.Ctx(ctx).Warn("Failed to forget Collivery session", zap.Error(err))
	}
}

// cached serves key from the cache, or fetches and stores it for ttl.
func cached[T any](ctx context.Context, c *Client, operation, key string, ttl time.Duration, fetch func(ctx context.Context, token string) (T, error)) (T, error) {
	var v T
	if c.cache.Has(ctx, key) && c.cache.Get(ctx, key, &v) {
		c.recorder.RecordCacheLookup(operation, true)
		return v, nil
	}
	c.recorder.RecordCacheLookup(operation, false)

	v, err := fetch(ctx, c.token())
	if err != nil {
		return v, err
	}
	if err := c.cache.Put(ctx, key, v, ttl); err != nil {
		c.logger.Ctx(ctx).Warn("Failed to cache Collivery response", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

func (c *Client) forget(ctx context.Context, key string) {
	if err := c.cache.Forget(ctx, key); err != nil {
		c.logger.Ctx(ctx).Warn("Failed to invalidate Collivery cache", zap.String("key", key), zap.Error(err))
	}
}
