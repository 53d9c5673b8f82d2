package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoGames = `[Event "Live Chess"]
[Site "Chess.com"]
[White "alice"]
[Black "bob"]
[Result "1-0"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 1-0

[Event "Live Chess"]
[Site "Chess.com"]
[White "bob"]
[Black "alice"]
[Result "0-1"]

1. f3 e5 2. g4 Qh4# 0-1
`

func TestSplitPGN(t *testing.T) {
	chunks := SplitPGN(twoGames)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0], `[Event "Live Chess"]`))
	assert.Contains(t, chunks[0], "Bb5 a6")
	assert.Contains(t, chunks[1], "Qh4#")
}

func TestSplitPGNEmpty(t *testing.T) {
	assert.Empty(t, SplitPGN("\n\n  \n"))
}

func TestParsePGN(t *testing.T) {
	games, skipped := ParsePGN(twoGames)
	require.Zero(t, skipped)
	require.Len(t, games, 2)

	assert.Equal(t, "alice", games[0].Headers["White"])
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6"}, games[0].Moves)
	assert.NotEmpty(t, games[0].Opening)

	assert.Equal(t, "0-1", games[1].Headers["Result"])
	assert.Equal(t, []string{"f2f3", "e7e5", "g2g4", "d8h4"}, games[1].Moves)
}

func TestParsePGNSkipsBrokenGames(t *testing.T) {
	doc := twoGames + `
[Event "Broken"]
[White "x"]
[Black "y"]

1. e4 e4 1-0
`
	games, skipped := ParsePGN(doc)
	assert.Len(t, games, 2)
	assert.Equal(t, 1, skipped)
}

func TestParseHeadersKeepsEveryTag(t *testing.T) {
	chunk := `[Event "Live Chess"]
[Site "Chess.com"]
[TimeControl "600"]
[Termination "bob won by checkmate"]
[Note "said \"gg\""]

1. f3 e5 2. g4 Qh4# 0-1`
	headers := parseHeaders(chunk)
	assert.Equal(t, map[string]string{
		"Event":       "Live Chess",
		"Site":        "Chess.com",
		"TimeControl": "600",
		"Termination": "bob won by checkmate",
		"Note":        `said "gg"`,
	}, headers)
}
