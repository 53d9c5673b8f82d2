// Package rules adapts corentings/chess to the immutable position model used by
// the session controller and the decision service.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrMalformedMove = errors.New("malformed move")
	ErrInvalidFEN    = errors.New("invalid FEN")
	ErrGameOver      = errors.New("game is already over")
	ErrNoPosition    = errors.New("empty position")
)

// Position is a snapshot of a game. Values are never mutated after they are
// returned; Apply always works on a clone.
type Position struct {
	game *nchess.Game
}

func (p Position) IsZero() bool { return p.game == nil }

func (p Position) FEN() string {
	if p.game == nil {
		return ""
	}
	return p.game.FEN()
}

func (p Position) Turn() Side {
	if p.game == nil {
		return NoSide
	}
	return sideFromColor(p.game.Position().Turn())
}

// Ply is the number of half-moves played since the position was created.
func (p Position) Ply() int {
	if p.game == nil {
		return 0
	}
	return len(p.game.Moves())
}

// Applied describes an accepted move in both notations.
type Applied struct {
	Side Side
	SAN  string
	UCI  string
}

// Outcome is the terminal classification of a position.
type Outcome struct {
	Terminal Terminal
	Winner   Side
}

func (o Outcome) Over() bool { return o.Terminal != None }

// Standard is the RulesEngine for orthodox chess. Threefold repetition and
// the fifty-move rule are claimed as soon as they apply unless Lenient is set,
// which suits replaying recorded games where nobody claimed.
type Standard struct {
	Lenient bool
}

// Start returns the canonical initial position.
func (Standard) Start() Position {
	return Position{game: nchess.NewGame()}
}

// FromFEN parses a FEN string into a position.
func (s Standard) FromFEN(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return Position{}, ErrInvalidFEN
	}
	if fen == "startpos" {
		return Position{game: nchess.NewGame()}, nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	game := nchess.NewGame(opt)
	s.claim(game)
	return Position{game: game}, nil
}

// FromMoves replays UCI moves from the initial position.
func (s Standard) FromMoves(moves []string) (Position, error) {
	pos := s.Start()
	for i, raw := range moves {
		mv, err := ParseMove(raw)
		if err != nil {
			return Position{}, fmt.Errorf("move %d: %w", i+1, err)
		}
		next, _, err := s.Apply(pos, mv)
		if err != nil {
			return Position{}, fmt.Errorf("move %d %q: %w", i+1, raw, err)
		}
		pos = next
	}
	return pos, nil
}

// Resolve turns a move string into a Move legal in pos. UCI coordinates are
// tried first, then SAN.
func (Standard) Resolve(pos Position, notation string) (Move, error) {
	if pos.game == nil {
		return Move{}, ErrNoPosition
	}
	text := strings.TrimSpace(notation)
	if text == "" {
		return Move{}, ErrMalformedMove
	}
	if mv, err := ParseMove(text); err == nil {
		if _, ok := findLegal(pos.game, mv); ok {
			return mv, nil
		}
		return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	decoded, err := nchess.AlgebraicNotation{}.Decode(pos.game.Position(), text)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %s", ErrMalformedMove, text)
	}
	mv := Move{
		From:      decoded.S1().String(),
		To:        decoded.S2().String(),
		Promotion: pieceFromType(decoded.Promo()),
	}
	if _, ok := findLegal(pos.game, mv); !ok {
		return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	return mv, nil
}

// Apply plays mv on a copy of pos.
func (s Standard) Apply(pos Position, mv Move) (Position, Applied, error) {
	if pos.game == nil {
		return Position{}, Applied{}, ErrNoPosition
	}
	if pos.game.Outcome() != nchess.NoOutcome {
		return Position{}, Applied{}, ErrGameOver
	}
	if err := mv.validate(); err != nil {
		return Position{}, Applied{}, err
	}

	next := pos.game.Clone()
	before := next.Position()
	candidate, ok := findLegal(next, mv)
	if !ok {
		return Position{}, Applied{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}
	applied := Applied{
		Side: sideFromColor(before.Turn()),
		SAN:  nchess.AlgebraicNotation{}.Encode(before, candidate),
		UCI:  strings.ToLower(nchess.UCINotation{}.Encode(before, candidate)),
	}
	if err := next.Move(candidate, nil); err != nil {
		return Position{}, Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	s.claim(next)
	return Position{game: next}, applied, nil
}

// Classify reports whether pos ends the game and how.
func (Standard) Classify(pos Position) Outcome {
	if pos.game == nil {
		return Outcome{}
	}
	switch pos.game.Method() {
	case nchess.Checkmate:
		return Outcome{Terminal: Checkmate, Winner: sideFromColor(pos.game.Position().Turn()).Opponent()}
	case nchess.Stalemate:
		return Outcome{Terminal: Stalemate}
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return Outcome{Terminal: Repetition}
	case nchess.InsufficientMaterial:
		return Outcome{Terminal: InsufficientMaterial}
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return Outcome{Terminal: FiftyMove}
	}
	return Outcome{}
}

// LegalMoves lists every legal move in UCI notation.
func (Standard) LegalMoves(pos Position) []string {
	if pos.game == nil || pos.game.Outcome() != nchess.NoOutcome {
		return nil
	}
	moves := pos.game.ValidMoves()
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, strings.ToLower(nchess.UCINotation{}.Encode(pos.game.Position(), &moves[i])))
	}
	return out
}

func findLegal(game *nchess.Game, mv Move) (*nchess.Move, bool) {
	promo := mv.Promotion
	moves := game.ValidMoves()
	for i := range moves {
		cand := &moves[i]
		if cand.S1().String() != mv.From || cand.S2().String() != mv.To {
			continue
		}
		if cand.Promo() == nchess.NoPieceType {
			return cand, true
		}
		want := promo
		if want == NoPiece {
			want = Queen
		}
		if pieceFromType(cand.Promo()) == want {
			return cand, true
		}
	}
	return nil, false
}

func (s Standard) claim(game *nchess.Game) {
	if !s.Lenient {
		claimDraws(game)
	}
}

// claimDraws ends the game when a repetition or fifty-move draw becomes
// claimable, matching clients that adjudicate these automatically.
func claimDraws(game *nchess.Game) {
	if game.Outcome() != nchess.NoOutcome {
		return
	}
	for _, method := range game.EligibleDraws() {
		switch method {
		case nchess.ThreefoldRepetition, nchess.FiftyMoveRule:
			_ = game.Draw(method)
			return
		}
	}
}
