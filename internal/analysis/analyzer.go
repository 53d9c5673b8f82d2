// Package analysis scores recorded games move by move with an engine and
// summarizes collections of analyses.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/domain"
	"github.com/park285/chessplay/internal/rules"
)

const topBlunderCount = 3

var ErrNoMoves = errors.New("no moves provided for analysis")

// IllegalMoveError reports the first move that cannot be played. Index is
// 1-based.
type IllegalMoveError struct {
	Move  string
	Index int
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("Illegal move %s at position %d", e.Move, e.Index)
}

type Evaluator interface {
	Evaluate(ctx context.Context, fen string) (chess.Evaluation, error)
}

type Analyzer struct {
	eval   Evaluator
	rules  rules.Standard
	repo   Repository
	logger *zap.Logger
}

// NewAnalyzer builds an analyzer; repo may be nil to disable caching.
func NewAnalyzer(eval Evaluator, repo Repository, logger *zap.Logger) (*Analyzer, error) {
	if eval == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		eval:   eval,
		rules:  rules.Standard{Lenient: true},
		repo:   repo,
		logger: logger,
	}, nil
}

// AnalyzeGame evaluates the position before and after every move. The loss
// is the evaluation drop seen by the side that moved.
func (a *Analyzer) AnalyzeGame(ctx context.Context, moves []string) (domain.GameAnalysis, error) {
	if len(moves) == 0 {
		return domain.GameAnalysis{}, ErrNoMoves
	}
	key := Key(moves)
	if cached, ok := a.lookup(ctx, key); ok {
		return cached, nil
	}

	positions, err := a.replay(moves)
	if err != nil {
		return domain.GameAnalysis{}, err
	}

	started := time.Now()
	evals := make([]chess.Evaluation, len(positions))
	for i, pos := range positions {
		ev, err := a.eval.Evaluate(ctx, pos.FEN())
		if err != nil {
			return domain.GameAnalysis{}, fmt.Errorf("evaluate ply %d: %w", i, err)
		}
		evals[i] = ev
	}

	result := domain.GameAnalysis{Moves: make([]domain.MoveAnalysis, 0, len(moves))}
	for i, mv := range moves {
		before, after := evals[i], evals[i+1]
		loss := before.Score - after.Score
		if positions[i].Turn() == rules.Black {
			loss = -loss
		}
		result.Moves = append(result.Moves, domain.MoveAnalysis{
			MoveNumber:    i + 1,
			MoveUCI:       mv,
			BestMoveUCI:   before.BestMove,
			EvalBefore:    before.Score,
			EvalAfter:     after.Score,
			CentipawnLoss: loss,
		})
		result.TotalCentipawnLoss += abs(loss)
	}
	result.TopBlunders = topBlunders(result.Moves, topBlunderCount)

	a.logger.Debug("game analyzed",
		zap.Int("moves", len(moves)),
		zap.Int("total_cp_loss", result.TotalCentipawnLoss),
		zap.Duration("elapsed", time.Since(started)))
	a.store(ctx, key, moves, result)
	return result, nil
}

// replay returns the initial position followed by the position after each
// move.
func (a *Analyzer) replay(moves []string) ([]rules.Position, error) {
	positions := make([]rules.Position, 0, len(moves)+1)
	pos := a.rules.Start()
	positions = append(positions, pos)
	for i, raw := range moves {
		mv, err := rules.ParseMove(raw)
		if err != nil {
			return nil, &IllegalMoveError{Move: raw, Index: i + 1}
		}
		next, _, err := a.rules.Apply(pos, mv)
		if err != nil {
			return nil, &IllegalMoveError{Move: raw, Index: i + 1}
		}
		pos = next
		positions = append(positions, pos)
	}
	return positions, nil
}

func (a *Analyzer) lookup(ctx context.Context, key string) (domain.GameAnalysis, bool) {
	if a.repo == nil {
		return domain.GameAnalysis{}, false
	}
	stored, err := a.repo.GetAnalysis(ctx, key)
	if err != nil {
		a.logger.Warn("analysis cache lookup failed", zap.String("key", key), zap.Error(err))
		return domain.GameAnalysis{}, false
	}
	if stored == nil {
		return domain.GameAnalysis{}, false
	}
	return stored.Result, true
}

func (a *Analyzer) store(ctx context.Context, key string, moves []string, result domain.GameAnalysis) {
	if a.repo == nil {
		return
	}
	err := a.repo.InsertAnalysis(ctx, &domain.StoredAnalysis{
		Key:       key,
		MovesUCI:  append([]string(nil), moves...),
		Result:    result,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, ErrDuplicateAnalysis) {
		a.logger.Warn("analysis cache store failed", zap.String("key", key), zap.Error(err))
	}
}

// Key identifies a move list independent of how it was submitted.
func Key(moves []string) string {
	normalized := make([]string, len(moves))
	for i, mv := range moves {
		normalized[i] = strings.ToLower(strings.TrimSpace(mv))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, " ")))
	return hex.EncodeToString(sum[:])
}

// topBlunders keeps the n moves with the largest absolute loss; ties keep
// game order.
func topBlunders(moves []domain.MoveAnalysis, n int) []domain.MoveAnalysis {
	sorted := append([]domain.MoveAnalysis(nil), moves...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return abs(sorted[i].CentipawnLoss) > abs(sorted[j].CentipawnLoss)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
