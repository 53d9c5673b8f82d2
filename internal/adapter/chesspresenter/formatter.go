package chesspresenter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/chessplay/internal/msgcat"
	"github.com/park285/chessplay/internal/rules"
	"github.com/park285/chessplay/internal/session"
)

const capturedLimit = 8

var (
	pieceValues = map[rune]int{'p': 1, 'n': 3, 'b': 3, 'r': 5, 'q': 9}
	// full set per side, excluding the king
	startingCounts = map[rune]int{'p': 8, 'n': 2, 'b': 2, 'r': 2, 'q': 1}
	capturedOrder  = []rune{'q', 'r', 'b', 'n', 'p'}
)

// Formatter renders controller state into user-facing text. Every sentence
// comes from the message catalog so deployments can reword them.
type Formatter struct {
	msgs *msgcat.Catalog
}

func NewFormatter(msgs *msgcat.Catalog) *Formatter {
	if msgs == nil {
		msgs = msgcat.Default()
	}
	return &Formatter{msgs: msgs}
}

// Status is the one-line summary shown under the board.
func (f *Formatter) Status(s session.Snapshot) string {
	switch s.State {
	case session.NotStarted:
		return f.text("status.not_started", nil)
	case session.Terminated:
		return f.Outcome(s.Outcome)
	}
	if s.Err != nil {
		if msg := f.errorText(s.Err); msg != "" {
			return msg
		}
	}
	side := map[string]string{"Side": s.Turn.Name()}
	if s.State == session.AwaitingOpponentMove {
		return f.text("status.thinking", side)
	}
	return f.text("status.turn", side)
}

func (f *Formatter) Outcome(o rules.Outcome) string {
	switch o.Terminal {
	case rules.Checkmate:
		return f.text("status.checkmate", map[string]string{"Winner": o.Winner.Name()})
	case rules.Stalemate:
		return f.text("status.stalemate", nil)
	case rules.Repetition:
		return f.text("status.repetition", nil)
	case rules.InsufficientMaterial:
		return f.text("status.insufficient", nil)
	case rules.FiftyMove:
		return f.text("status.fifty_move", nil)
	default:
		return ""
	}
}

// Rejected explains why a command did not change anything. move is the
// player's input, if any.
func (f *Formatter) Rejected(err error, move string) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, session.ErrIllegalMove) || errors.Is(err, rules.ErrMalformedMove) {
		return f.text("status.illegal_move", map[string]string{"Move": move})
	}
	return f.text("status.invalid_action", nil)
}

func (f *Formatter) errorText(err error) string {
	var failure *session.RequestFailure
	if errors.As(err, &failure) {
		if failure.Timeout() {
			return f.text("status.request_timeout", nil)
		}
		reason := "unknown error"
		if failure.Cause != nil {
			reason = failure.Cause.Error()
		}
		return f.text("status.request_failed", map[string]string{"Reason": reason})
	}
	var illegal *session.IllegalReplyError
	if errors.As(err, &illegal) {
		return f.text("status.illegal_reply", map[string]string{"Move": illegal.Move})
	}
	return ""
}

func (f *Formatter) text(key string, data any) string {
	return f.msgs.Text(key, data)
}

// MoveList numbers SAN moves in pairs, one full move per line.
func MoveList(san []string) string {
	if len(san) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i < len(san); i += 2 {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i/2+1, san[i])
		if i+1 < len(san) {
			sb.WriteString(" ")
			sb.WriteString(san[i+1])
		}
	}
	return sb.String()
}

// Board draws the placement field of fen as text with bottom's pieces
// nearest the viewer.
func Board(fen string, bottom rules.Side) string {
	ranks := placementRanks(fen)
	if ranks == nil {
		return ""
	}
	files := "a  b  c  d  e  f  g  h"
	order := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if bottom == rules.Black {
		files = "h  g  f  e  d  c  b  a"
		order = []int{7, 6, 5, 4, 3, 2, 1, 0}
	}

	var sb strings.Builder
	sb.WriteString("  +------------------------+\n")
	for _, r := range order {
		row := ranks[r]
		if bottom == rules.Black {
			row = reversed(row)
		}
		fmt.Fprintf(&sb, "%d |", 8-r)
		for _, sq := range row {
			sb.WriteString(" ")
			sb.WriteRune(sq)
			sb.WriteString(" ")
		}
		sb.WriteString("|\n")
	}
	sb.WriteString("  +------------------------+\n")
	sb.WriteString("    ")
	sb.WriteString(files)
	return sb.String()
}

// Captured lists pieces taken by each side and the material balance.
func Captured(fen string) string {
	ranks := placementRanks(fen)
	if ranks == nil {
		return ""
	}
	present := map[rune]int{}
	for _, row := range ranks {
		for _, sq := range row {
			if sq != '.' {
				present[sq]++
			}
		}
	}

	// White captures black pieces (lowercase) and vice versa.
	byWhite := missingPieces(present, false)
	byBlack := missingPieces(present, true)
	var parts []string
	if s := formatCapturedSequence(firstPieces(byWhite, capturedLimit)); s != "" {
		parts = append(parts, "White "+s)
	}
	if s := formatCapturedSequence(firstPieces(byBlack, capturedLimit)); s != "" {
		parts = append(parts, "Black "+s)
	}
	if len(parts) == 0 {
		return ""
	}
	balance := material(byWhite) - material(byBlack)
	line := strings.Join(parts, " / ")
	switch {
	case balance > 0:
		line += fmt.Sprintf(" (White +%d)", balance)
	case balance < 0:
		line += fmt.Sprintf(" (Black +%d)", -balance)
	}
	return line
}

func placementRanks(fen string) [][]rune {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return nil
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != 8 {
		return nil
	}
	out := make([][]rune, 0, 8)
	for _, row := range rows {
		squares := make([]rune, 0, 8)
		for _, c := range row {
			if c >= '1' && c <= '8' {
				for i := 0; i < int(c-'0'); i++ {
					squares = append(squares, '.')
				}
				continue
			}
			squares = append(squares, c)
		}
		if len(squares) != 8 {
			return nil
		}
		out = append(out, squares)
	}
	return out
}

func missingPieces(present map[rune]int, white bool) []rune {
	var out []rune
	for _, p := range capturedOrder {
		key := p
		if white {
			key = p - 'a' + 'A'
		}
		for n := startingCounts[p] - present[key]; n > 0; n-- {
			out = append(out, p)
		}
	}
	return out
}

func material(pieces []rune) int {
	total := 0
	for _, p := range pieces {
		total += pieceValues[p]
	}
	return total
}

func formatCapturedSequence(order []rune) string {
	if len(order) == 0 {
		return ""
	}
	tokens := make([]string, 0, len(order))
	for _, p := range order {
		tokens = append(tokens, strings.ToUpper(string(p)))
	}
	return strings.Join(tokens, " ")
}

func firstPieces(order []rune, limit int) []rune {
	if len(order) == 0 || limit <= 0 {
		return nil
	}
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

func reversed(row []rune) []rune {
	out := make([]rune, len(row))
	for i := range row {
		out[i] = row[len(row)-1-i]
	}
	return out
}
