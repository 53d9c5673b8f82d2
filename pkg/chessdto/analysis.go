package chessdto

import (
	"encoding/json"
	"fmt"
)

type AnalyzeGameRequest struct {
	Moves []string `json:"moves"`
}

type MoveAnalysis struct {
	MoveNumber       int     `json:"move_number"`
	MoveUCI          string  `json:"move_uci"`
	BestMoveUCI      *string `json:"best_move_uci"`
	EvaluationBefore int     `json:"evaluation_before"`
	EvaluationAfter  int     `json:"evaluation_after"`
	CentipawnLoss    int     `json:"centipawn_loss"`
}

type AnalyzeGameResponse struct {
	Analysis           []MoveAnalysis `json:"analysis"`
	TotalCentipawnLoss int            `json:"total_centipawn_loss"`
	TopBlunders        []MoveAnalysis `json:"top_blunders"`
}

// AggregateRequest holds one move-analysis list per game.
type AggregateRequest struct {
	Analyses [][]MoveAnalysis `json:"analyses"`
}

// BlunderCount encodes as a [move, count] pair.
type BlunderCount struct {
	Move  string
	Count int
}

func (b BlunderCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{b.Move, b.Count})
}

func (b *BlunderCount) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("blunder count: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &b.Move); err != nil {
		return fmt.Errorf("blunder move: %w", err)
	}
	if err := json.Unmarshal(pair[1], &b.Count); err != nil {
		return fmt.Errorf("blunder count: %w", err)
	}
	return nil
}

type AggregateResponse struct {
	AverageCentipawnLoss float64        `json:"average_centipawn_loss"`
	MostCommonBlunders   []BlunderCount `json:"most_common_blunders"`
	TotalGamesAnalyzed   int            `json:"total_games_analyzed"`
	TotalMovesAnalyzed   int            `json:"total_moves_analyzed"`
}

type ArchivedGame struct {
	Headers map[string]string `json:"headers"`
	Moves   []string          `json:"moves"`
	Opening string            `json:"opening,omitempty"`
}

type GamesResponse struct {
	Games []ArchivedGame `json:"games"`
}
