package moveclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chessplay/pkg/chessdto"
)

const defaultMovePath = "/api/bot-move"

var ErrNoMove = errors.New("decision service returned no move")

// ServiceError is a non-2xx answer from the decision service.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("decision service error: status=%d message=%s", e.Status, e.Message)
}

// Client requests opponent moves. Each call is a single attempt.
type Client struct {
	baseURL string
	path    string
	http    *fasthttp.Client
	logger  *zap.Logger

	defaultTimeout time.Duration
}

type Option func(*Client)

// WithTimeout bounds every request even when the context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func WithPath(path string) Option {
	return func(c *Client) { c.path = "/" + strings.TrimLeft(path, "/") }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    defaultMovePath,
		http:    &fasthttp.Client{MaxConnsPerHost: 16},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestMove sends the position and strength and returns the proposed move.
func (c *Client) RequestMove(ctx context.Context, fen string, strength int) (string, error) {
	elo := strength
	started := time.Now()
	status, body, err := c.doJSON(ctx, fasthttp.MethodPost, c.path, chessdto.BotMoveRequest{FEN: fen, Elo: &elo})
	if err != nil {
		c.logger.Debug("bot move request failed", zap.Int("elo", elo), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", err
	}

	var resp chessdto.BotMoveResponse
	decodeErr := json.Unmarshal(body, &resp)
	if status < 200 || status >= 300 {
		msg := strings.TrimSpace(resp.Error)
		if decodeErr != nil || msg == "" {
			msg = truncate(string(body), 512)
		}
		return "", &ServiceError{Status: status, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	move := strings.TrimSpace(resp.Move)
	if move == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrNoMove, resp.Error)
		}
		return "", ErrNoMove
	}
	c.logger.Debug("bot move received", zap.String("move", move), zap.Int("elo", elo), zap.Duration("elapsed", time.Since(started)))
	return move, nil
}

// Hello calls the service greeting endpoint; used for connectivity checks.
func (c *Client) Hello(ctx context.Context) (string, error) {
	status, body, err := c.doJSON(ctx, fasthttp.MethodGet, "/api/hello", nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &ServiceError{Status: status, Message: truncate(string(body), 512)}
	}
	var resp chessdto.HelloResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return resp.Message, nil
}

type result struct {
	status int
	body   []byte
	err    error
}

// doJSON performs one exchange. The transport runs on its own goroutine so a
// cancelled context returns immediately; the goroutine releases the buffers.
func (c *Client) doJSON(ctx context.Context, method, path string, in any) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()
		var err error
		if deadline, ok := c.computeDeadline(ctx); ok {
			err = c.http.DoDeadline(req, resp, deadline)
		} else {
			err = c.http.Do(req, resp)
		}
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{status: resp.StatusCode(), body: append([]byte(nil), resp.Body()...)}
	}()

	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, fasthttp.ErrTimeout) {
				return 0, nil, fmt.Errorf("request failed: %w", context.DeadlineExceeded)
			}
			return 0, nil, fmt.Errorf("request failed: %w", r.err)
		}
		return r.status, r.body, nil
	}
}

func (c *Client) computeDeadline(ctx context.Context) (time.Time, bool) {
	dl, hasCtx := ctx.Deadline()
	if c.defaultTimeout <= 0 {
		return dl, hasCtx
	}
	clientDL := time.Now().Add(c.defaultTimeout)
	if hasCtx && dl.Before(clientDL) {
		return dl, true
	}
	return clientDL, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
