package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/plugin/ochttp"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
)

// Authorizer decorates an outgoing request with credentials.
type Authorizer func(ctx context.Context, req *http.Request) error

// Exchange is one request/response pair with a processor.
type Exchange struct {
	Provider     Provider
	Method       string
	URL          string
	StatusCode   int
	RequestBody  []byte
	ResponseBody []byte
	Duration     time.Duration
	Error        string
	At           time.Time
}

// Auditor receives every exchange. Implementations must not block.
type Auditor interface {
	Audit(ex *Exchange)
}

type ClientOption func(c *Client)

// DefaultTimeout bounds one processor request.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient is a traced http.Client with the given request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: &ochttp.Transport{},
		Timeout:   timeout,
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithAuth(a Authorizer) ClientOption {
	return func(c *Client) { c.auth = a }
}

func WithAuditor(a Auditor) ClientOption {
	return func(c *Client) { c.auditor = a }
}

func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

func WithContentType(ct string) ClientOption {
	return func(c *Client) { c.contentType = ct }
}

// Client is a JSON client for processor APIs. Non 2xx responses are mapped to
// merchant.ErrProviderUnavailable (auth, throttling, 5xx) or
// merchant.ErrProviderRejected (other 4xx).
type Client struct {
	name        Provider
	baseURL     string
	contentType string
	httpClient  *http.Client
	auth        Authorizer
	auditor     Auditor
	metrics     *Metrics
	l           *zap.Logger
}

func NewClient(name Provider, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		name:        name,
		baseURL:     baseURL,
		contentType: "application/json",
		httpClient:  NewHTTPClient(DefaultTimeout),
		l:           zap.L().Named(string(name) + "_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GETAndUnmarshalJson(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) POSTAndUnmarshalJson(ctx context.Context, path string, in, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) DELETE(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends in as JSON (when not nil) and decodes a 2xx body into out (when not nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	var reqBody []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "Failed marshal")
		}
		reqBody = b
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return errors.Wrap(err, "Failed new request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", c.contentType)
	}
	if c.auth != nil {
		if err := c.auth(ctx, req); err != nil {
			return err
		}
	}

	ex := &Exchange{
		Provider:    c.name,
		Method:      method,
		URL:         req.URL.String(),
		RequestBody: reqBody,
		At:          time.Now(),
	}
	defer c.finish(ex)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		ex.Error = err.Error()
		c.l.Warn("do request", zap.String("url", ex.URL), zap.Error(err))
		return errors.Wrap(merchant.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()
	ex.StatusCode = resp.StatusCode
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		ex.Error = err.Error()
		return errors.Wrap(merchant.ErrProviderUnavailable, "Failed read all body: "+err.Error())
	}
	ex.ResponseBody = b

	if err := classifyStatus(resp.StatusCode, b); err != nil {
		ex.Error = err.Error()
		c.l.Warn("bad response status",
			zap.String("url", ex.URL),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(b, 512)),
		)
		return err
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		ex.Error = err.Error()
		c.l.Warn("bad unmarshal response", zap.ByteString("body", truncate(b, 512)), zap.Error(err))
		return errors.Wrap(merchant.ErrProviderUnavailable, "Failed unmarshal: "+err.Error())
	}
	return nil
}

func (c *Client) finish(ex *Exchange) {
	ex.Duration = time.Since(ex.At)
	if c.metrics != nil {
		c.metrics.observe(ex)
	}
	if c.auditor != nil {
		c.auditor.Audit(ex)
	}
}

func classifyStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return errors.Wrap(merchant.ErrProviderUnavailable, "status "+strconv.Itoa(code))
	default:
		return errors.Wrap(merchant.ErrProviderRejected, "status "+strconv.Itoa(code)+": "+string(truncate(body, 256)))
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
