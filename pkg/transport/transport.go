// Package transport performs single HTTP(S) exchanges with a carrier endpoint and
// reports transport-level and HTTP-level failures separately.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// HeaderRequestID is attached to every outgoing request.
const HeaderRequestID = "X-Request-Id"

// Config holds transport configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Headers are sent with every request; per-request headers override them.
	Headers map[string]string
	// DecodeJSON populates Result.JSON when the response body is valid JSON.
	DecodeJSON bool
	// HTTPClient replaces the underlying *http.Client when set.
	HTTPClient *http.Client
	Logger     *otelzap.Logger
}

// Client sends requests. It never retries.
type Client struct {
	rc         *resty.Client
	decodeJSON bool
	logger     *otelzap.Logger
}

// New creates a new transport client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeaders(cfg.Headers)

	logger := cfg.Logger
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}

	return &Client{
		rc:         rc,
		decodeJSON: cfg.DecodeJSON,
		logger:     logger,
	}
}

// Request performs one exchange.
//
// A map payload becomes query parameters for GET and DELETE, a JSON body when the
// effective Content-Type is JSON, and a form body otherwise. A []byte or string
// payload is sent verbatim.
func (c *Client) Request(ctx context.Context, method, endpoint string, payload any, headers map[string]string) *Result {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	r := c.rc.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, uuid.NewString()).
		SetHeaders(headers)

	if err := c.attachPayload(r, method, payload); err != nil {
		return &Result{Err: err}
	}

	start := time.Now()
	resp, err := r.Execute(method, endpoint)

	res := &Result{Err: err}
	if resp != nil && resp.RawResponse != nil {
		res.StatusCode = resp.StatusCode()
		res.Body = resp.Body()
		res.Header = resp.Header()
	}
	if err == nil && c.decodeJSON {
		res.JSON = decodeAny(res.Body)
	}

	c.logger.Ctx(ctx).Debug("carrier request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("transport_error", res.TransportError()),
	)

	return res
}

func (c *Client) attachPayload(r *resty.Request, method string, payload any) error {
	switch p := payload.(type) {
	case nil:
		return nil
	case []byte:
		r.SetBody(p)
		return nil
	case string:
		r.SetBody([]byte(p))
		return nil
	case map[string]string:
		return c.attachValues(r, method, p, payload)
	case map[string]any:
		values := make(map[string]string, len(p))
		for k, v := range p {
			values[k] = stringify(v)
		}
		return c.attachValues(r, method, values, payload)
	default:
		if method == http.MethodGet || method == http.MethodDelete {
			return fmt.Errorf("unsupported %s payload type %T", method, payload)
		}
		r.SetBody(payload)
		return nil
	}
}

func (c *Client) attachValues(r *resty.Request, method string, values map[string]string, raw any) error {
	if method == http.MethodGet || method == http.MethodDelete {
		r.SetQueryParams(values)
		return nil
	}
	if c.isJSON(r) {
		r.SetBody(raw)
		return nil
	}
	r.SetFormData(values)
	return nil
}

func (c *Client) isJSON(r *resty.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		ct = c.rc.Header.Get("Content-Type")
	}
	return ct == "" || strings.Contains(strings.ToLower(ct), "json")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
