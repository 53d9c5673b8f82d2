package session

import (
	"context"
	"fmt"

	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/rules"
)

type State int

const (
	NotStarted State = iota
	AwaitingHumanMove
	AwaitingOpponentMove
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case AwaitingHumanMove:
		return "awaiting-human"
	case AwaitingOpponentMove:
		return "awaiting-opponent"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Actor string

const (
	Human    Actor = "human"
	Opponent Actor = "opponent"
)

// MoveRecord is appended once per accepted move and never modified.
type MoveRecord struct {
	Ply   int
	Side  rules.Side
	Actor Actor
	SAN   string
	UCI   string
	FEN   string
}

// Settings are the player's choices applied at the next start.
type Settings struct {
	HumanSide  rules.Side
	Difficulty chess.Difficulty // empty when Strength is a custom override
	Strength   int
}

func DefaultSettings() Settings {
	return Settings{
		HumanSide:  rules.White,
		Difficulty: chess.Medium,
		Strength:   chess.Medium.Rating(),
	}
}

func (s Settings) normalize() (Settings, error) {
	if s.HumanSide != rules.White && s.HumanSide != rules.Black {
		return Settings{}, fmt.Errorf("human side must be white or black, got %s", s.HumanSide)
	}
	if s.Difficulty != "" {
		d, err := chess.ParseDifficulty(string(s.Difficulty))
		if err != nil {
			return Settings{}, err
		}
		s.Difficulty = d
		if s.Strength == 0 {
			s.Strength = d.Rating()
		}
	}
	s.Strength = chess.ClampRating(s.Strength)
	if s.Difficulty != "" && s.Difficulty.Rating() != s.Strength {
		s.Difficulty = ""
	}
	return s, nil
}

// RulesEngine owns legality and terminal detection.
type RulesEngine interface {
	Start() rules.Position
	Resolve(pos rules.Position, notation string) (rules.Move, error)
	Apply(pos rules.Position, mv rules.Move) (rules.Position, rules.Applied, error)
	Classify(pos rules.Position) rules.Outcome
}

// Requester asks the remote decision service for a move.
type Requester interface {
	RequestMove(ctx context.Context, fen string, strength int) (string, error)
}

// Snapshot is a read-only view of the controller handed to UI adapters.
type Snapshot struct {
	SessionID string
	Episode   uint64
	Revision  uint64
	State     State
	Settings  Settings
	Position  rules.Position
	FEN       string
	Turn      rules.Side
	Outcome   rules.Outcome
	Moves     []MoveRecord
	Pending   bool
	Err       error
}

// HumanToMove reports whether the board should accept a gesture.
func (s Snapshot) HumanToMove() bool { return s.State == AwaitingHumanMove }
