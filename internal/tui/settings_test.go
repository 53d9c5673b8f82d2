package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/config"
	"github.com/park285/chessplay/internal/rules"
	"github.com/park285/chessplay/internal/session"
	"github.com/park285/chessplay/pkg/chessdto"
)

func TestFromStored(t *testing.T) {
	tests := []struct {
		name string
		in   config.PlayerSettings
		want session.Settings
	}{
		{"empty", config.PlayerSettings{}, session.DefaultSettings()},
		{"label", config.PlayerSettings{Side: "black", Difficulty: "expert"},
			session.Settings{HumanSide: rules.Black, Difficulty: chess.Expert, Strength: 2200}},
		{"custom", config.PlayerSettings{Side: "white", Strength: 1450},
			session.Settings{HumanSide: rules.White, Strength: 1450}},
		{"custom matching a label", config.PlayerSettings{Strength: 1700},
			session.Settings{HumanSide: rules.White, Difficulty: chess.Hard, Strength: 1700}},
		{"clamped", config.PlayerSettings{Strength: 9000},
			session.Settings{HumanSide: rules.White, Strength: chess.MaxRating}},
		{"garbage side", config.PlayerSettings{Side: "purple", Difficulty: "easy"},
			session.Settings{HumanSide: rules.White, Difficulty: chess.Easy, Strength: 800}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fromStored(tt.in))
		})
	}
}

func TestToStoredKeepsLabelOrStrength(t *testing.T) {
	assert.Equal(t,
		config.PlayerSettings{Side: "black", Difficulty: "hard"},
		toStored(session.Settings{HumanSide: rules.Black, Difficulty: chess.Hard, Strength: 1700}))
	assert.Equal(t,
		config.PlayerSettings{Side: "white", Strength: 1450},
		toStored(session.Settings{HumanSide: rules.White, Strength: 1450}))

	// a saved custom strength comes back unchanged
	s := session.Settings{HumanSide: rules.Black, Strength: 999}
	assert.Equal(t, s, fromStored(toStored(s)))
}

func TestDifficultyDropdown(t *testing.T) {
	opts := difficultyOptions()
	require.Len(t, opts, len(chess.Difficulties())+1)
	assert.Equal(t, "Easy (800)", opts[0])
	assert.Equal(t, customLabel, opts[len(opts)-1])

	for i, d := range chess.Difficulties() {
		assert.Equal(t, i, difficultyIndex(d))
		got, ok := difficultyAt(i)
		assert.True(t, ok)
		assert.Equal(t, d, got)
	}
	assert.Equal(t, len(opts)-1, difficultyIndex(""))
	_, ok := difficultyAt(len(opts) - 1)
	assert.False(t, ok)
}

func TestSideDropdown(t *testing.T) {
	assert.Equal(t, 0, sideIndex(rules.White))
	assert.Equal(t, 1, sideIndex(rules.Black))
	assert.Equal(t, rules.Black, sideAt(1))
	assert.Equal(t, rules.White, sideAt(0))
}

func TestParseStrength(t *testing.T) {
	n, err := parseStrength(" 1450 ")
	require.NoError(t, err)
	assert.Equal(t, 1450, n)

	n, err = parseStrength("5")
	require.NoError(t, err)
	assert.Equal(t, chess.MinRating, n)

	_, err = parseStrength("")
	assert.Error(t, err)

	assert.True(t, digitsOnly("150", '0'))
	assert.False(t, digitsOnly("15a", 'a'))
	assert.False(t, digitsOnly("12345", '5'))
}

func TestParseMoveInput(t *testing.T) {
	mv, err := parseMoveInput("e2 e4")
	require.NoError(t, err)
	assert.Equal(t, rules.Move{From: "e2", To: "e4"}, mv)

	mv, err = parseMoveInput("E7E8Q")
	require.NoError(t, err)
	assert.Equal(t, rules.Queen, mv.Promotion)

	_, err = parseMoveInput("castle")
	assert.ErrorIs(t, err, rules.ErrMalformedMove)
}

func TestViewOf(t *testing.T) {
	v := viewOf(chessdto.SessionState{
		State:    "not-started",
		Settings: chessdto.Settings{HumanSide: "black"},
		CanSetup: true,
		Status:   "Choose a side",
	})
	assert.Equal(t, "Start", v.startLabel)
	assert.Empty(t, v.captured)
	assert.Empty(t, v.moves)
	lines := strings.Split(v.board, "\n")
	require.NotEmpty(t, lines)
	assert.Contains(t, v.board, "1 | R")

	v = viewOf(chessdto.SessionState{
		State:    "awaiting-human",
		FEN:      "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2",
		Settings: chessdto.Settings{HumanSide: "white"},
		MovesSAN: []string{"e4", "e5"},
		Status:   "It's White's turn.",
	})
	assert.Equal(t, "Restart", v.startLabel)
	assert.Equal(t, "1. e4 e5", v.moves)
	assert.Equal(t, "It's White's turn.", v.status)
}

type noMoves struct{}

func (noMoves) RequestMove(context.Context, string, int) (string, error) { return "", nil }

func TestNewRequiresRequester(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	a, err := New(Options{Requester: noMoves{}, Settings: config.PlayerSettings{Side: "black"}})
	require.NoError(t, err)
	assert.Equal(t, rules.Black, a.staged.HumanSide)
	a.ctrl.Close()
}

func TestSetupChangesBeforeStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	a, err := New(Options{Requester: noMoves{}, SettingsPath: path})
	require.NoError(t, err)
	defer a.ctrl.Close()

	a.selectDifficulty(difficultyIndex(chess.Hard))
	assert.Equal(t, chess.Hard, a.ctrl.Snapshot().Settings.Difficulty)
	assert.Equal(t, "1700", a.strength.GetText())

	a.typeStrength("1450")
	snap := a.ctrl.Snapshot()
	assert.Equal(t, 1450, snap.Settings.Strength)
	assert.Empty(t, snap.Settings.Difficulty)

	a.restart()
	assert.Equal(t, session.AwaitingHumanMove, a.ctrl.Snapshot().State)

	stored, err := config.LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, config.PlayerSettings{Side: "white", Strength: 1450}, stored)
}

// scripted answers opponent requests in order, then fails.
type scripted struct {
	mu    sync.Mutex
	moves []string
}

func (s *scripted) RequestMove(context.Context, string, int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.moves) == 0 {
		return "", errors.New("out of moves")
	}
	mv := s.moves[0]
	s.moves = s.moves[1:]
	return mv, nil
}

func runApp(t *testing.T, a *App) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	a.app.SetScreen(screen)
	screen.SetSize(120, 40)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()
	t.Cleanup(func() {
		a.app.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("app did not stop")
		}
	})
}

// inLoop runs f on the event loop and reports whether it returned in time.
func inLoop(a *App, f func()) bool {
	ran := make(chan struct{})
	go a.app.QueueUpdate(func() {
		f()
		close(ran)
	})
	select {
	case <-ran:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestCallbacksOnRunningApp(t *testing.T) {
	a, err := New(Options{
		Requester: &scripted{moves: []string{"e2e4"}},
		Settings:  config.PlayerSettings{Side: "black"},
	})
	require.NoError(t, err)
	runApp(t, a)

	require.True(t, inLoop(a, func() { a.selectDifficulty(difficultyIndex(chess.Hard)) }), "difficulty change blocked the event loop")
	assert.Equal(t, chess.Hard, a.ctrl.Snapshot().Settings.Difficulty)

	require.True(t, inLoop(a, a.restart), "start blocked the event loop")

	var label, moves string
	require.Eventually(t, func() bool {
		ok := inLoop(a, func() {
			label = a.setup.GetButton(0).GetLabel()
			moves = strings.TrimSpace(a.moves.GetText(true))
		})
		return ok && moves == "1. e4"
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Restart", label)

	require.True(t, inLoop(a, func() { a.submit("e7e5") }), "move blocked the event loop")
	require.Eventually(t, func() bool {
		return len(a.ctrl.Snapshot().Moves) == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRenderSkipsOlderRevisions(t *testing.T) {
	a, err := New(Options{Requester: noMoves{}})
	require.NoError(t, err)
	defer a.ctrl.Close()

	a.render(chessdto.SessionState{Revision: 5, Status: "newer", MovesSAN: []string{"e4"}})
	a.render(chessdto.SessionState{Revision: 4, Status: "older", CanSetup: true})
	assert.Equal(t, "newer", strings.TrimSpace(a.status.GetText(true)))
	assert.False(t, a.canSetup)
}
