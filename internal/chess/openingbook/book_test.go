package openingbook

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func gameFrom(t *testing.T, moves ...string) *nchess.Game {
	t.Helper()
	g := nchess.NewGame()
	for _, mv := range moves {
		if err := g.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			t.Fatalf("push %s: %v", mv, err)
		}
	}
	return g
}

func TestClassifyKnownOpening(t *testing.T) {
	g := gameFrom(t, "e2e4", "e7e5", "g1f3", "b8c6", "f1b5")
	o, ok := Classify(g)
	if !ok {
		t.Fatalf("expected an opening for the Ruy Lopez")
	}
	if !strings.HasPrefix(o.Code, "C") || o.Title == "" {
		t.Fatalf("unexpected opening: %+v", o)
	}
}

func TestClassifyEmptyGame(t *testing.T) {
	if _, ok := Classify(nchess.NewGame()); ok {
		t.Fatalf("empty game should not classify")
	}
	if _, ok := Classify(nil); ok {
		t.Fatalf("nil game should not classify")
	}
}

func TestPlyOf(t *testing.T) {
	if got := plyOf(nchess.NewGame()); got != 0 {
		t.Fatalf("start ply = %d", got)
	}
	if got := plyOf(gameFrom(t, "e2e4", "e7e5", "g1f3")); got != 3 {
		t.Fatalf("ply after three moves = %d", got)
	}
}

func TestNilBookLookup(t *testing.T) {
	var b *Book
	if _, ok := b.Lookup("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"); ok {
		t.Fatalf("nil book should not return moves")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" ", 12); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// writeBook stores a single polyglot entry for the start position.
func writeBook(t *testing.T, move uint16) string {
	t.Helper()
	hash, err := nchess.NewZobristHasher().HashPosition(startFEN)
	if err != nil {
		t.Fatalf("hash start position: %v", err)
	}
	entry := make([]byte, 16)
	binary.BigEndian.PutUint64(entry[0:8], nchess.ZobristHashToUint64(hash))
	binary.BigEndian.PutUint16(entry[8:10], move)
	binary.BigEndian.PutUint16(entry[10:12], 1)
	path := filepath.Join(t.TempDir(), "book.bin")
	if err := os.WriteFile(path, entry, 0o644); err != nil {
		t.Fatalf("write book: %v", err)
	}
	return path
}

func TestLookupStartPosition(t *testing.T) {
	// e2e4: from square 12 in bits 6-11, to square 28 in bits 0-5
	b, err := Open(writeBook(t, 12<<6|28), 12)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mv, ok := b.Lookup(startFEN)
	if !ok || mv != "e2e4" {
		t.Fatalf("Lookup = %q, %v; want e2e4", mv, ok)
	}
	if _, ok := b.Lookup("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"); ok {
		t.Fatalf("position outside the book should miss")
	}
}
