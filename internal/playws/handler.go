// Package playws serves interactive games over WebSocket. Each connection
// owns one session controller; the client sends commands and receives the
// full board state after every change.
package playws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chessplay/internal/adapter/chesspresenter"
	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/rules"
	"github.com/park285/chessplay/internal/session"
	"github.com/park285/chessplay/pkg/chessdto"
)

const (
	Path = "/ws/play"

	defaultPingInterval = 30 * time.Second
	writeTimeout        = 5 * time.Second
	outboundBuffer      = 32
	readLimitBytes      = 1 << 16
)

var errUnknownCommand = errors.New("unknown command")

type Config struct {
	Requester      session.Requester
	Rules          session.RulesEngine
	Formatter      *chesspresenter.Formatter
	Settings       session.Settings
	RequestTimeout time.Duration
	// AllowedOrigins are host patterns accepted besides the request host.
	AllowedOrigins []string
	PingInterval   time.Duration
	Logger         *zap.Logger
}

type Handler struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	closed bool
	wg     sync.WaitGroup
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Requester == nil {
		return nil, fmt.Errorf("playws: requester is required")
	}
	if cfg.Rules == nil {
		cfg.Rules = rules.Standard{}
	}
	if cfg.Formatter == nil {
		cfg.Formatter = chesspresenter.NewFormatter(nil)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, logger: logger, conns: make(map[string]*websocket.Conn)}, nil
}

// Mux serves the play socket and a health probe.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.cfg.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimitBytes)

	id := uuid.NewString()
	if !h.register(id, conn) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer func() {
		h.unregister(id)
		h.wg.Done()
	}()

	h.serve(r.Context(), id, conn)
}

func (h *Handler) register(id string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[id] = conn
	h.wg.Add(1)
	return true
}

func (h *Handler) unregister(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Active reports the number of open play connections.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close refuses new connections, closes open ones and waits for their
// controllers to stop.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.wg.Wait()
}

type connection struct {
	id     string
	conn   *websocket.Conn
	ctrl   *session.Controller
	format *chesspresenter.Formatter
	out    chan chessdto.Frame
	logger *zap.Logger
}

func (h *Handler) serve(parent context.Context, id string, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logger := h.logger.With(zap.String("conn", id))
	c := &connection{
		id:     id,
		conn:   conn,
		format: h.cfg.Formatter,
		out:    make(chan chessdto.Frame, outboundBuffer),
		logger: logger,
	}
	presenter := chesspresenter.NewPresenter(h.cfg.Formatter, func(state chessdto.SessionState) error {
		return c.send(ctx, chessdto.Frame{Type: chessdto.FrameState, State: &state})
	}, logger)

	ctrl, err := session.New(session.Config{
		Rules:          h.cfg.Rules,
		Requester:      h.cfg.Requester,
		Settings:       h.cfg.Settings,
		RequestTimeout: h.cfg.RequestTimeout,
		Logger:         logger,
		OnUpdate:       presenter.OnUpdate,
	})
	if err != nil {
		logger.Error("create session controller", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	c.ctrl = ctrl
	logger.Info("play connection opened")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(ctx, h.cfg.PingInterval)
	}()

	_ = presenter.Snapshot(ctrl.Snapshot())
	err = c.readLoop(ctx)

	// Cancel first so an update blocked on a dead writer unblocks before
	// the controller waits for its request goroutines.
	cancel()
	ctrl.Close()
	wg.Wait()

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		logger.Info("play connection closed")
	} else {
		logger.Info("play connection dropped", zap.Error(err))
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (c *connection) readLoop(ctx context.Context) error {
	for {
		var cmd chessdto.Command
		if err := wsjson.Read(ctx, c.conn, &cmd); err != nil {
			return err
		}
		if err := c.dispatch(cmd); err != nil {
			c.logger.Debug("command rejected", zap.String("type", cmd.Type), zap.Error(err))
			frame := chessdto.Frame{
				Type:    chessdto.FrameRejected,
				Command: cmd.Type,
				Error:   c.format.Rejected(err, moveText(cmd)),
			}
			if err := c.send(ctx, frame); err != nil {
				return err
			}
		}
	}
}

func (c *connection) dispatch(cmd chessdto.Command) error {
	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case chessdto.CommandStart:
		return c.ctrl.Start()
	case chessdto.CommandRestart:
		return c.ctrl.Restart()
	case chessdto.CommandRetry:
		return c.ctrl.RetryOpponentMove()
	case chessdto.CommandMove:
		mv, err := parseMove(cmd)
		if err != nil {
			return err
		}
		return c.ctrl.SubmitHumanMove(mv.From, mv.To, mv.Promotion)
	case chessdto.CommandSide:
		side, err := rules.ParseSide(cmd.Side)
		if err != nil {
			return err
		}
		return c.ctrl.ChangeSide(side)
	case chessdto.CommandDifficulty:
		d, err := chess.ParseDifficulty(cmd.Difficulty)
		if err != nil {
			return err
		}
		return c.ctrl.ChangeDifficulty(d)
	case chessdto.CommandStrength:
		return c.ctrl.ChangeStrength(cmd.Strength)
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, cmd.Type)
	}
}

// parseMove accepts either from/to squares or a UCI string in From.
func parseMove(cmd chessdto.Command) (rules.Move, error) {
	if strings.TrimSpace(cmd.To) == "" {
		return rules.ParseMove(cmd.From)
	}
	promo, err := rules.ParsePiece(cmd.Promotion)
	if err != nil {
		return rules.Move{}, err
	}
	return rules.Move{
		From:      strings.ToLower(strings.TrimSpace(cmd.From)),
		To:        strings.ToLower(strings.TrimSpace(cmd.To)),
		Promotion: promo,
	}, nil
}

func moveText(cmd chessdto.Command) string {
	return strings.TrimSpace(cmd.From) + strings.TrimSpace(cmd.To) + strings.TrimSpace(cmd.Promotion)
}

func (c *connection) send(ctx context.Context, f chessdto.Frame) error {
	select {
	case c.out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, f)
			cancel()
			if err != nil {
				c.logger.Debug("write frame failed", zap.String("type", f.Type), zap.Error(err))
				_ = c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (c *connection) pingLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("ping failed", zap.Error(err))
					_ = c.conn.Close(websocket.StatusGoingAway, "ping timeout")
				}
				return
			}
		}
	}
}
