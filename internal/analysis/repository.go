package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/park285/chessplay/internal/domain"
)

var ErrDuplicateAnalysis = errors.New("analysis already stored")

// Repository caches finished game analyses by move-list key.
type Repository interface {
	InsertAnalysis(ctx context.Context, a *domain.StoredAnalysis) error
	GetAnalysis(ctx context.Context, key string) (*domain.StoredAnalysis, error)
	GetRecentAnalyses(ctx context.Context, limit int) ([]*domain.StoredAnalysis, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS game_analyses (
		id BIGSERIAL PRIMARY KEY,
		moves_key TEXT NOT NULL UNIQUE,
		moves_uci JSONB NOT NULL,
		result JSONB NOT NULL,
		total_cp_loss INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// EnsureSchema creates the analysis table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create game_analyses: %w", err)
	}
	return nil
}

type moveRow struct {
	MoveNumber    int    `json:"move_number"`
	MoveUCI       string `json:"move_uci"`
	BestMoveUCI   string `json:"best_move_uci,omitempty"`
	EvalBefore    int    `json:"evaluation_before"`
	EvalAfter     int    `json:"evaluation_after"`
	CentipawnLoss int    `json:"centipawn_loss"`
}

type resultRow struct {
	Moves       []moveRow `json:"analysis"`
	Total       int       `json:"total_centipawn_loss"`
	TopBlunders []moveRow `json:"top_blunders"`
}

func toRows(moves []domain.MoveAnalysis) []moveRow {
	out := make([]moveRow, len(moves))
	for i, m := range moves {
		out[i] = moveRow(m)
	}
	return out
}

func fromRows(rows []moveRow) []domain.MoveAnalysis {
	out := make([]domain.MoveAnalysis, len(rows))
	for i, r := range rows {
		out[i] = domain.MoveAnalysis(r)
	}
	return out
}

func (r *repository) InsertAnalysis(ctx context.Context, a *domain.StoredAnalysis) error {
	if a == nil {
		return fmt.Errorf("nil analysis payload")
	}
	movesJSON, err := json.Marshal(a.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	resultJSON, err := json.Marshal(resultRow{
		Moves:       toRows(a.Result.Moves),
		Total:       a.Result.TotalCentipawnLoss,
		TopBlunders: toRows(a.Result.TopBlunders),
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	const query = `
		INSERT INTO game_analyses (moves_key, moves_uci, result, total_cp_loss, created_at)
		VALUES ($1, $2::jsonb, $3::jsonb, $4, $5)
		ON CONFLICT (moves_key) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(ctx, query,
		a.Key,
		movesJSON,
		resultJSON,
		a.Result.TotalCentipawnLoss,
		a.CreatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return ErrDuplicateAnalysis
	}
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	a.ID = id.Int64
	return nil
}

const selectColumns = `id, moves_key, moves_uci, result, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*domain.StoredAnalysis, error) {
	var (
		out        domain.StoredAnalysis
		movesJSON  []byte
		resultJSON []byte
		result     resultRow
	)
	if err := s.Scan(&out.ID, &out.Key, &movesJSON, &resultJSON, &out.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(movesJSON, &out.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	out.Result = domain.GameAnalysis{
		Moves:              fromRows(result.Moves),
		TotalCentipawnLoss: result.Total,
		TopBlunders:        fromRows(result.TopBlunders),
	}
	return &out, nil
}

func (r *repository) GetAnalysis(ctx context.Context, key string) (*domain.StoredAnalysis, error) {
	query := `SELECT ` + selectColumns + ` FROM game_analyses WHERE moves_key = $1`
	out, err := scanAnalysis(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select analysis: %w", err)
	}
	return out, nil
}

func (r *repository) GetRecentAnalyses(ctx context.Context, limit int) ([]*domain.StoredAnalysis, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + selectColumns + ` FROM game_analyses ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select analyses: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.StoredAnalysis, 0, limit)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, nil
}
