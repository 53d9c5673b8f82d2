package uci

import (
	"testing"
	"time"
)

func TestParseInfoCentipawns(t *testing.T) {
	idx, line, ok := parseInfo("info depth 12 seldepth 18 multipv 2 score cp -35 nodes 1000 pv e7e5 g1f3 b8c6")
	if !ok {
		t.Fatalf("expected info line to parse")
	}
	if idx != 2 {
		t.Fatalf("multipv = %d, want 2", idx)
	}
	if line.Move != "e7e5" || len(line.Principal) != 3 {
		t.Fatalf("unexpected pv: %+v", line)
	}
	if !line.HasScore || line.Score.IsMate || line.Score.CP != -35 {
		t.Fatalf("unexpected score: %+v", line.Score)
	}
}

func TestParseInfoMate(t *testing.T) {
	_, line, ok := parseInfo("info depth 5 score mate -2 pv g8h8 d1h5")
	if !ok {
		t.Fatalf("expected info line to parse")
	}
	if !line.Score.IsMate || line.Score.Mate != -2 {
		t.Fatalf("unexpected score: %+v", line.Score)
	}
}

func TestParseInfoScoreWithoutPV(t *testing.T) {
	_, line, ok := parseInfo("info depth 0 score mate 0")
	if !ok {
		t.Fatalf("score-only line should parse")
	}
	if line.Move != "" || !line.Score.IsMate || line.Score.Mate != 0 {
		t.Fatalf("unexpected line: %+v", line)
	}
}

func TestParseInfoIgnoresNoise(t *testing.T) {
	for _, in := range []string{
		"info string NNUE evaluation using nn-big.nnue",
		"info depth 3 currmove e2e4 currmovenumber 1",
		"",
	} {
		if _, _, ok := parseInfo(in); ok {
			t.Fatalf("parseInfo(%q) should be ignored", in)
		}
	}
}

func TestParseBestMove(t *testing.T) {
	cases := map[string]string{
		"bestmove e2e4 ponder e7e5": "e2e4",
		"bestmove e7e8q":            "e7e8q",
		"bestmove (none)":           "",
		"bestmove":                  "",
	}
	for in, want := range cases {
		if got := parseBestMove(in); got != want {
			t.Fatalf("parseBestMove(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("", nil); got != "position startpos\n" {
		t.Fatalf("unexpected startpos command: %q", got)
	}
	if got := buildPositionCommand("startpos", []string{"e2e4", "e7e5"}); got != "position startpos moves e2e4 e7e5\n" {
		t.Fatalf("unexpected moves command: %q", got)
	}
	fen := "8/8/8/4k3/8/8/4n3/4K3 w - - 0 1"
	if got := buildPositionCommand(fen, nil); got != "position fen "+fen+"\n" {
		t.Fatalf("unexpected fen command: %q", got)
	}
}

func TestBuildGoTokens(t *testing.T) {
	tokens, err := buildGoTokens(Limits{MoveTimeMillis: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 3 || tokens[1] != "movetime" || tokens[2] != "500" {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error for empty limits")
	}
}

func TestComputeSearchTimeout(t *testing.T) {
	if got := computeSearchTimeout(Limits{MoveTimeMillis: 500}); got != 2500*time.Millisecond {
		t.Fatalf("movetime timeout = %v", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 1}); got != 6*time.Second {
		t.Fatalf("shallow depth timeout = %v", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 200}); got != 20*time.Second {
		t.Fatalf("deep depth timeout = %v", got)
	}
}

func TestValidateOptions(t *testing.T) {
	if err := validateOptions(Options{Threads: 1, HashMB: 16}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateOptions(Options{Threads: 1}); err == nil {
		t.Fatalf("expected error for zero hash")
	}
}
