package domain

import "time"

// MoveAnalysis scores one move of a game. Evaluations are White-relative
// centipawns; CentipawnLoss is from the mover's point of view.
type MoveAnalysis struct {
	MoveNumber    int
	MoveUCI       string
	BestMoveUCI   string
	EvalBefore    int
	EvalAfter     int
	CentipawnLoss int
}

type GameAnalysis struct {
	Moves              []MoveAnalysis
	TotalCentipawnLoss int
	TopBlunders        []MoveAnalysis
}

// StoredAnalysis is a cached GameAnalysis keyed by a digest of its moves.
type StoredAnalysis struct {
	ID        int64
	Key       string
	MovesUCI  []string
	Result    GameAnalysis
	CreatedAt time.Time
}

type BlunderCount struct {
	Move  string
	Count int
}

type AnalysisSummary struct {
	AverageCentipawnLoss float64
	MostCommonBlunders   []BlunderCount
	TotalGames           int
	TotalMoves           int
}

// ArchivedGame is one game from a public archive. Moves are UCI from the
// game's initial position.
type ArchivedGame struct {
	Headers map[string]string
	Moves   []string
	Opening string
}
