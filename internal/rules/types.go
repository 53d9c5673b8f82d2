package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

type Side uint8

const (
	NoSide Side = iota
	White
	Black
)

func (s Side) String() string {
	switch s {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return "none"
	}
}

// Name is the capitalised form used in status lines.
func (s Side) Name() string {
	switch s {
	case White:
		return "White"
	case Black:
		return "Black"
	default:
		return ""
	}
}

func (s Side) Opponent() Side {
	switch s {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoSide
	}
}

// ParseSide accepts colour names as well as first/second.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "white", "w", "first":
		return White, nil
	case "black", "b", "second":
		return Black, nil
	}
	return NoSide, fmt.Errorf("unknown side %q", v)
}

func sideFromColor(c nchess.Color) Side {
	switch c {
	case nchess.White:
		return White
	case nchess.Black:
		return Black
	default:
		return NoSide
	}
}

type Terminal string

const (
	None                 Terminal = ""
	Checkmate            Terminal = "checkmate"
	Stalemate            Terminal = "stalemate"
	Repetition           Terminal = "draw-repetition"
	InsufficientMaterial Terminal = "draw-insufficient-material"
	FiftyMove            Terminal = "draw-fifty-move"
)

type Piece byte

const (
	NoPiece Piece = 0
	Queen   Piece = 'q'
	Rook    Piece = 'r'
	Bishop  Piece = 'b'
	Knight  Piece = 'n'
)

func (p Piece) String() string {
	if p == NoPiece {
		return ""
	}
	return string(rune(p))
}

func ParsePiece(v string) (Piece, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return NoPiece, nil
	case "q", "queen":
		return Queen, nil
	case "r", "rook":
		return Rook, nil
	case "b", "bishop":
		return Bishop, nil
	case "n", "knight":
		return Knight, nil
	}
	return NoPiece, fmt.Errorf("%w: promotion %q", ErrMalformedMove, v)
}

func pieceFromType(pt nchess.PieceType) Piece {
	switch pt {
	case nchess.Queen:
		return Queen
	case nchess.Rook:
		return Rook
	case nchess.Bishop:
		return Bishop
	case nchess.Knight:
		return Knight
	default:
		return NoPiece
	}
}

// Move is a from/to gesture with an optional promotion choice.
type Move struct {
	From      string
	To        string
	Promotion Piece
}

func (m Move) UCI() string {
	return m.From + m.To + m.Promotion.String()
}

func (m Move) validate() error {
	if !validSquare(m.From) || !validSquare(m.To) {
		return fmt.Errorf("%w: %q", ErrMalformedMove, m.UCI())
	}
	return nil
}

// ParseMove reads a coordinate move such as e2e4 or e7e8n.
func ParseMove(v string) (Move, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, v)
	}
	mv := Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		p, err := ParsePiece(s[4:])
		if err != nil || p == NoPiece {
			return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, v)
		}
		mv.Promotion = p
	}
	if err := mv.validate(); err != nil {
		return Move{}, err
	}
	return mv, nil
}

func validSquare(sq string) bool {
	return len(sq) == 2 && sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}
