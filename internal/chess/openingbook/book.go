package openingbook

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Book is a polyglot opening book consulted before the engine searches.
type Book struct {
	book   *nchess.PolyglotBook
	maxPly int
}

func Open(path string, maxPly int) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()

	book, err := nchess.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	return &Book{book: book, maxPly: maxPly}, nil
}

// Lookup returns the heaviest book move for the position, verified to be
// legal. Positions past maxPly are never looked up.
func (b *Book) Lookup(fen string) (string, bool) {
	if b == nil || b.book == nil {
		return "", false
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return "", false
	}
	game := nchess.NewGame(opt)
	if b.maxPly > 0 && plyOf(game) >= b.maxPly {
		return "", false
	}

	hashStr, err := nchess.NewZobristHasher().HashPosition(game.FEN())
	if err != nil {
		return "", false
	}
	entries := b.book.FindMoves(nchess.ZobristHashToUint64(hashStr))
	if len(entries) == 0 {
		return "", false
	}
	decoded := nchess.DecodeMove(entries[0].Move).ToMove()
	move := decoded.String()
	if err := game.PushNotationMove(move, nchess.UCINotation{}, nil); err != nil {
		return "", false
	}
	return move, true
}

func plyOf(game *nchess.Game) int {
	fields := strings.Fields(game.FEN())
	if len(fields) < 6 {
		return 0
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		return 0
	}
	ply := (full - 1) * 2
	if fields[1] == "b" {
		ply++
	}
	return ply
}
