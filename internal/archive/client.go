package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.chess.com"
	userAgent      = "chessplay/1.0"
	defaultTimeout = 15 * time.Second
)

// UpstreamError is a non-2xx answer from the archive host.
type UpstreamError struct {
	URL    string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%d error for url: %s (body=%s)", e.Status, e.URL, e.Body)
}

// Client reads public game archives over HTTP.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
	logger  *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPDial(dial fasthttp.DialFunc) ClientOption {
	return func(c *Client) { c.http.Dial = dial }
}

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			Name:            userAgent,
			MaxConnsPerHost: 4,
		},
		timeout: defaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type archivesPayload struct {
	Archives []string `json:"archives"`
}

// Archives lists the monthly archive URLs for a player, oldest first.
func (c *Client) Archives(ctx context.Context, username string) ([]string, error) {
	u := c.baseURL + "/pub/player/" + url.PathEscape(strings.ToLower(username)) + "/games/archives"
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var p archivesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode archives: %w", err)
	}
	return p.Archives, nil
}

// MonthlyPGN downloads every game of one monthly archive as PGN text.
func (c *Client) MonthlyPGN(ctx context.Context, archiveURL string) (string, error) {
	body, err := c.get(ctx, strings.TrimRight(archiveURL, "/")+"/pgn")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(rawURL)
	req.Header.Set("Accept", "application/json, application/x-chess-pgn")

	started := time.Now()
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("get %s: %w", rawURL, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	status := resp.StatusCode()
	c.logger.Debug("archive fetch",
		zap.String("url", rawURL),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(started)))
	if status < 200 || status >= 300 {
		return nil, &UpstreamError{URL: rawURL, Status: status, Body: truncate(string(resp.Body()), 256)}
	}
	return append([]byte(nil), resp.Body()...), nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
