// Package session runs a single game between a local player and a remote
// decision service.
//
// The controller is a four-state machine (not started, awaiting the human,
// awaiting the opponent, terminated). At most one opponent request is in
// flight. Every request is tagged with the episode that issued it, and a
// restart bumps the episode, so a late answer to a superseded game is dropped
// instead of being applied to the new one.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/rules"
)

type Config struct {
	Rules     RulesEngine
	Requester Requester
	Settings  Settings
	// RequestTimeout bounds each opponent request; zero waits indefinitely.
	RequestTimeout time.Duration
	Logger         *zap.Logger
	// OnUpdate receives a snapshot after every observable change. It is
	// called without the controller lock held, in revision order, and must
	// not call back into the controller on the same goroutine.
	OnUpdate func(Snapshot)
}

type game struct {
	id      string
	episode uint64
	pos     rules.Position
	moves   []MoveRecord
	outcome rules.Outcome
}

type pendingRequest struct {
	episode uint64
	fen     string
	cancel  context.CancelFunc
}

type Controller struct {
	rules     RulesEngine
	requester Requester
	timeout   time.Duration
	logger    *zap.Logger
	onUpdate  func(Snapshot)

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	state    State
	settings Settings
	current  *game
	episode  uint64
	revision uint64
	pending  *pendingRequest
	lastErr  error
	closed   bool

	notifyMu    sync.Mutex
	lastEmitted uint64

	// afterResolve observes every resolution, applied or not.
	afterResolve func(episode uint64, err error)
}

func New(cfg Config) (*Controller, error) {
	if cfg.Rules == nil {
		return nil, errors.New("session: rules engine is required")
	}
	if cfg.Requester == nil {
		return nil, errors.New("session: requester is required")
	}
	settings := cfg.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	settings, err := settings.normalize()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("session: negative request timeout %s", cfg.RequestTimeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		rules:     cfg.Rules,
		requester: cfg.Requester,
		timeout:   cfg.RequestTimeout,
		logger:    logger,
		onUpdate:  cfg.OnUpdate,
		baseCtx:   ctx,
		stop:      stop,
		state:     NotStarted,
		settings:  settings,
	}, nil
}

// Start begins the first game with the current settings.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != NotStarted {
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.state)
	}
	c.beginLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// Restart discards the current game, including any request in flight, and
// starts a new one with the current settings. Valid from every state.
func (c *Controller) Restart() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancelPendingLocked()
	c.beginLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// RestartWith replaces the settings and restarts.
func (c *Controller) RestartWith(s Settings) error {
	normalized, err := s.normalize()
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.settings = normalized
	c.cancelPendingLocked()
	c.beginLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// SubmitHumanMove applies a board gesture. Outside AwaitingHumanMove it fails
// with ErrInvalidTransition; an illegal move fails with ErrIllegalMove. In
// both cases nothing changes.
func (c *Controller) SubmitHumanMove(from, to string, promotion rules.Piece) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != AwaitingHumanMove {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: human move while %s", ErrInvalidTransition, state)
	}
	mv := rules.Move{From: from, To: to, Promotion: promotion}
	next, applied, err := c.rules.Apply(c.current.pos, mv)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrIllegalMove, mv.UCI(), err)
	}
	c.lastErr = nil
	if c.recordLocked(next, applied, Human) {
		c.issueLocked()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// RetryOpponentMove re-issues the opponent request after a failure or a
// discarded reply.
func (c *Controller) RetryOpponentMove() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != AwaitingOpponentMove || c.pending != nil {
		state, busy := c.state, c.pending != nil
		c.mu.Unlock()
		return fmt.Errorf("%w: retry while %s (in flight: %t)", ErrInvalidTransition, state, busy)
	}
	c.lastErr = nil
	c.issueLocked()
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

func (c *Controller) ChangeSide(side rules.Side) error {
	return c.configure(func(s *Settings) { s.HumanSide = side })
}

func (c *Controller) ChangeDifficulty(d chess.Difficulty) error {
	return c.configure(func(s *Settings) {
		s.Difficulty = d
		s.Strength = 0
	})
}

// ChangeStrength sets a raw rating override, clamped to the supported range.
func (c *Controller) ChangeStrength(rating int) error {
	return c.configure(func(s *Settings) {
		s.Strength = chess.ClampRating(rating)
		s.Difficulty, _ = chess.DifficultyFor(s.Strength)
	})
}

func (c *Controller) configure(mutate func(*Settings)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != NotStarted {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: settings change while %s", ErrInvalidTransition, state)
	}
	next := c.settings
	mutate(&next)
	normalized, err := next.normalize()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.settings = normalized
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close cancels any request in flight and waits for its goroutine to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelPendingLocked()
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}

func (c *Controller) beginLocked() {
	c.episode++
	c.current = &game{
		id:      uuid.NewString(),
		episode: c.episode,
		pos:     c.rules.Start(),
	}
	c.lastErr = nil
	c.revision++

	c.logger.Info("session started",
		zap.String("session", c.current.id),
		zap.Uint64("episode", c.episode),
		zap.String("human", c.settings.HumanSide.String()),
		zap.Int("strength", c.settings.Strength),
	)

	if c.current.pos.Turn() == c.settings.HumanSide {
		c.state = AwaitingHumanMove
		return
	}
	c.state = AwaitingOpponentMove
	c.issueLocked()
}

// recordLocked appends the move and advances the state machine. It returns
// true when the opponent is now to move.
func (c *Controller) recordLocked(next rules.Position, applied rules.Applied, actor Actor) bool {
	g := c.current
	g.pos = next
	g.moves = append(g.moves, MoveRecord{
		Ply:   len(g.moves) + 1,
		Side:  applied.Side,
		Actor: actor,
		SAN:   applied.SAN,
		UCI:   applied.UCI,
		FEN:   next.FEN(),
	})
	c.revision++

	if turn := next.Turn(); turn != applied.Side.Opponent() {
		c.logger.Error("rules engine turn disagrees with move order",
			zap.String("session", g.id),
			zap.String("mover", applied.Side.String()),
			zap.String("turn", turn.String()),
		)
	}

	g.outcome = c.rules.Classify(next)
	if g.outcome.Over() {
		c.state = Terminated
		c.logger.Info("session finished",
			zap.String("session", g.id),
			zap.String("reason", string(g.outcome.Terminal)),
			zap.String("winner", g.outcome.Winner.String()),
			zap.Int("plies", len(g.moves)),
		)
		return false
	}
	if actor == Human {
		c.state = AwaitingOpponentMove
		return true
	}
	c.state = AwaitingHumanMove
	return false
}

func (c *Controller) issueLocked() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(c.baseCtx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(c.baseCtx)
	}
	p := &pendingRequest{
		episode: c.current.episode,
		fen:     c.current.pos.FEN(),
		cancel:  cancel,
	}
	c.pending = p
	strength := c.settings.Strength

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		move, err := c.requester.RequestMove(ctx, p.fen, strength)
		c.resolve(p, move, err)
	}()
}

func (c *Controller) resolve(p *pendingRequest, move string, reqErr error) {
	c.mu.Lock()
	if c.pending != p || c.current == nil || c.current.episode != p.episode || c.state != AwaitingOpponentMove {
		current := c.episode
		c.mu.Unlock()
		c.logger.Debug("discarding stale move resolution",
			zap.Uint64("episode", p.episode),
			zap.Uint64("current_episode", current),
			zap.String("move", move),
			zap.Error(reqErr),
		)
		c.observe(p.episode, ErrStaleResolution)
		return
	}
	c.pending = nil
	g := c.current

	if reqErr != nil {
		c.lastErr = &RequestFailure{Episode: p.episode, Cause: reqErr}
		c.revision++
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Warn("opponent move request failed",
			zap.String("session", g.id),
			zap.Uint64("episode", p.episode),
			zap.Error(reqErr),
		)
		c.emit(snap)
		c.observe(p.episode, snap.Err)
		return
	}

	if g.pos.FEN() != p.fen {
		c.mu.Unlock()
		c.logger.Debug("discarding resolution for a moved position", zap.Uint64("episode", p.episode))
		c.observe(p.episode, ErrStaleResolution)
		return
	}

	mv, err := c.rules.Resolve(g.pos, move)
	var (
		next    rules.Position
		applied rules.Applied
	)
	if err == nil {
		next, applied, err = c.rules.Apply(g.pos, mv)
	}
	if err != nil {
		c.lastErr = &IllegalReplyError{Move: move, Cause: err}
		c.revision++
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Warn("opponent proposed an illegal move",
			zap.String("session", g.id),
			zap.String("move", move),
			zap.String("fen", p.fen),
		)
		c.emit(snap)
		c.observe(p.episode, snap.Err)
		return
	}

	c.lastErr = nil
	c.recordLocked(next, applied, Opponent)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	c.observe(p.episode, nil)
}

func (c *Controller) cancelPendingLocked() {
	if c.pending == nil {
		return
	}
	c.pending.cancel()
	c.pending = nil
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Episode:  c.episode,
		Revision: c.revision,
		State:    c.state,
		Settings: c.settings,
		Pending:  c.pending != nil,
		Err:      c.lastErr,
	}
	g := c.current
	if g == nil {
		return snap
	}
	snap.SessionID = g.id
	snap.Position = g.pos
	snap.FEN = g.pos.FEN()
	snap.Outcome = g.outcome
	snap.Moves = append([]MoveRecord(nil), g.moves...)
	switch c.state {
	case AwaitingHumanMove:
		snap.Turn = c.settings.HumanSide
	case AwaitingOpponentMove:
		snap.Turn = c.settings.HumanSide.Opponent()
	default:
		snap.Turn = g.pos.Turn()
	}
	return snap
}

func (c *Controller) emit(s Snapshot) {
	if c.onUpdate == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if s.Revision <= c.lastEmitted {
		return
	}
	c.lastEmitted = s.Revision
	c.onUpdate(s)
}

func (c *Controller) observe(episode uint64, err error) {
	if c.afterResolve != nil {
		c.afterResolve(episode, err)
	}
}
