package chessbuilder

import (
	"context"
	"testing"

	corechess "github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/config"
)

type recordingEngine struct {
	elo int
}

func (r *recordingEngine) BestMove(_ context.Context, _ string, elo int) (string, error) {
	r.elo = elo
	return "e2e4", nil
}

func (r *recordingEngine) Evaluate(context.Context, string) (corechess.Evaluation, error) {
	return corechess.Evaluation{}, nil
}

func TestEngineRequesterClampsStrength(t *testing.T) {
	eng := &recordingEngine{}
	req := EngineRequester{Engine: eng}
	mv, err := req.RequestMove(context.Background(), "startpos", 99999)
	if err != nil || mv != "e2e4" {
		t.Fatalf("unexpected result %q, %v", mv, err)
	}
	if eng.elo != corechess.MaxRating {
		t.Fatalf("strength not clamped: %d", eng.elo)
	}
}

func TestEngineRequesterWithoutEngine(t *testing.T) {
	if _, err := (EngineRequester{}).RequestMove(context.Background(), "startpos", 1200); err == nil {
		t.Fatalf("expected error without engine")
	}
}

func TestNewRequiresStockfish(t *testing.T) {
	if _, err := New(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := New(context.Background(), &config.ServerConfig{}, nil); err == nil {
		t.Fatalf("expected error without STOCKFISH_PATH")
	}
	_, err := New(context.Background(), &config.ServerConfig{StockfishPath: "/nonexistent/stockfish"}, nil)
	if err == nil {
		t.Fatalf("expected error for missing binary")
	}
}

func TestCloseNilDeps(t *testing.T) {
	var d *Deps
	if err := d.Close(); err != nil {
		t.Fatalf("nil deps close: %v", err)
	}
}
