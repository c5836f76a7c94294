package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/reqsync/internal/model"
)

const statusSuccess = "success"

// Client talks to one API deployment. It is safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the API at endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("remote endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote endpoint %q", endpoint)
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope is the API's reply object. Only the fields an operation needs are
// populated by the server.
type envelope struct {
	Status       string          `json:"status"`
	Message      string          `json:"message,omitempty"`
	DriveError   string          `json:"driveError,omitempty"`
	EmailError   string          `json:"emailError,omitempty"`
	DataURL      string          `json:"dataUrl,omitempty"`
	FinalNumber  string          `json:"finalNumber,omitempty"`
	User         *model.User     `json:"user,omitempty"`
	Users        []model.User    `json:"users,omitempty"`
	Requisitions json.RawMessage `json:"requisitions,omitempty"`
}

func (c *Client) get(ctx context.Context, op string, params url.Values) ([]byte, error) {
	q := url.Values{"action": {op}}
	for k, v := range params {
		q[k] = v
	}
	endpoint := c.endpoint
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + q.Encode()
	} else {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	return c.do(req, op)
}

func (c *Client) post(ctx context.Context, op string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	// text/plain keeps the request "simple" for the script host.
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")
	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Debug("remote call",
		"op", op,
		"method", req.Method,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:       KindNetwork,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(truncate(string(body), 200)),
		}
	}
	return body, nil
}

// decodeEnvelope parses body as an envelope and requires a success status.
func decodeEnvelope(op string, body []byte, fallback string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	if env.Status != statusSuccess {
		msg := env.Message
		if msg == "" {
			msg = fallback
		}
		return env, &Error{Kind: KindRejected, Op: op, Message: msg}
	}
	return env, nil
}

// decodeList accepts either a bare array or an envelope and returns the raw
// list. pick selects the list from a successful envelope.
func decodeList(op string, body []byte, pick func(envelope) ([]byte, error)) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return []byte("[]"), nil
	case trimmed[0] == '[':
		return trimmed, nil
	case trimmed[0] == '{':
		env, err := decodeEnvelope(op, trimmed, op+" failed")
		if err != nil {
			return nil, err
		}
		return pick(env)
	default:
		return nil, &Error{Kind: KindMalformed, Op: op, Message: "response is neither a list nor an envelope"}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
