package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/chess/openingbook"
	"github.com/park285/chessplay/internal/chess/uci"
)

const (
	// MateScore stands in for a forced mate in White-relative centipawns.
	MateScore = 100000

	defaultMoveTime    = 500 * time.Millisecond
	defaultAnalyzeTime = 100 * time.Millisecond
	defaultHashMB      = 64
)

var ErrNoBestMove = errors.New("engine could not find a move")

type EngineConfig struct {
	BinaryPath  string
	PoolSize    int
	Threads     int
	HashMB      int
	MoveTime    time.Duration
	AnalyzeTime time.Duration
	Book        *openingbook.Book // optional
	Logger      *zap.Logger
}

// Evaluation is a single position assessment. Score is in centipawns from
// White's point of view; HasScore is false when the engine reported none.
type Evaluation struct {
	BestMove string
	Score    int
	HasScore bool
}

type Engine struct {
	pool        *uci.Pool
	opt         uci.Options
	moveTime    time.Duration
	analyzeTime time.Duration
	book        *openingbook.Book
	logger      *zap.Logger
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Capacity:   cfg.PoolSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	hash := cfg.HashMB
	if hash <= 0 {
		hash = defaultHashMB
	}
	e := &Engine{
		pool:        pool,
		opt:         uci.Options{Threads: cfg.Threads, HashMB: hash},
		moveTime:    cfg.MoveTime,
		analyzeTime: cfg.AnalyzeTime,
		book:        cfg.Book,
		logger:      logger,
	}
	if e.moveTime <= 0 {
		e.moveTime = defaultMoveTime
	}
	if e.analyzeTime <= 0 {
		e.analyzeTime = defaultAnalyzeTime
	}
	return e, nil
}

// BestMove plays at the given rating for a fixed think time. A configured
// opening book answers first.
func (e *Engine) BestMove(ctx context.Context, fen string, elo int) (string, error) {
	if mv, ok := e.book.Lookup(fen); ok {
		e.logger.Debug("book move", zap.String("fen", fen), zap.String("move", mv))
		return mv, nil
	}
	resp, err := e.search(ctx, uci.SearchRequest{
		FEN:      fen,
		Limits:   uci.Limits{MoveTimeMillis: int(e.moveTime / time.Millisecond)},
		Strength: StrengthFor(elo),
	})
	if err != nil {
		return "", err
	}
	if resp.BestMove == "" {
		return "", ErrNoBestMove
	}
	return resp.BestMove, nil
}

// Evaluate searches at full strength and reports the best move and score.
func (e *Engine) Evaluate(ctx context.Context, fen string) (Evaluation, error) {
	resp, err := e.search(ctx, uci.SearchRequest{
		FEN:      fen,
		Limits:   uci.Limits{MoveTimeMillis: int(e.analyzeTime / time.Millisecond)},
		Strength: uci.FullStrength(),
	})
	if err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{BestMove: resp.BestMove}
	if len(resp.Lines) > 0 {
		top := resp.Lines[0]
		if ev.BestMove == "" {
			ev.BestMove = top.Move
		}
		if top.HasScore {
			ev.Score = WhiteScore(top.Score, whiteToMove(fen))
			ev.HasScore = true
		}
	}
	return ev, nil
}

func (e *Engine) search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error) {
	session, err := e.pool.Acquire(ctx, e.opt)
	if err != nil {
		return uci.SearchResponse{}, fmt.Errorf("acquire engine: %w", err)
	}
	var releaseErr error
	defer func() { e.pool.Release(session, releaseErr) }()

	started := time.Now()
	resp, err := session.Search(ctx, req)
	if err != nil {
		releaseErr = err
		return uci.SearchResponse{}, err
	}
	e.logger.Debug("engine search",
		zap.String("fen", req.FEN),
		zap.String("bestmove", resp.BestMove),
		zap.Bool("limited", req.Strength.Limited),
		zap.Int("elo", req.Strength.Elo),
		zap.Int("skill", req.Strength.Skill),
		zap.Duration("elapsed", time.Since(started)))
	return resp, nil
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

// StrengthFor maps a rating onto engine options. Ratings below the engine's
// UCI_Elo floor fall back to a proportional Skill Level.
func StrengthFor(elo int) uci.Strength {
	elo = ClampRating(elo)
	if elo >= uci.MinLimitedElo {
		return uci.Strength{Limited: true, Elo: min(elo, uci.MaxLimitedElo), Skill: 20}
	}
	skill := (elo - MinRating) * 10 / (uci.MinLimitedElo - MinRating)
	return uci.Strength{Skill: skill}
}

// WhiteScore converts a side-to-move score to White's point of view.
func WhiteScore(s uci.Score, whiteToMove bool) int {
	v := s.CP
	if s.IsMate {
		v = -MateScore
		if s.Mate > 0 {
			v = MateScore
		}
	}
	if !whiteToMove {
		v = -v
	}
	return v
}

func whiteToMove(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) < 2 || fields[1] != "b"
}
