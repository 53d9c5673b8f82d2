package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/config"
	"github.com/park285/chessplay/internal/rules"
	"github.com/park285/chessplay/internal/session"
)

const customLabel = "Custom"

var sideOptions = []string{"White (move first)", "Black (move second)"}

// difficultyOptions lists the fixed levels followed by the custom entry.
func difficultyOptions() []string {
	levels := chess.Difficulties()
	out := make([]string, 0, len(levels)+1)
	for _, d := range levels {
		out = append(out, fmt.Sprintf("%s (%d)", strings.ToUpper(string(d[:1]))+string(d[1:]), d.Rating()))
	}
	return append(out, customLabel)
}

func sideIndex(side rules.Side) int {
	if side == rules.Black {
		return 1
	}
	return 0
}

func sideAt(index int) rules.Side {
	if index == 1 {
		return rules.Black
	}
	return rules.White
}

// difficultyIndex returns the dropdown index for d; the custom entry when d
// is empty.
func difficultyIndex(d chess.Difficulty) int {
	levels := chess.Difficulties()
	for i, l := range levels {
		if l == d {
			return i
		}
	}
	return len(levels)
}

func difficultyAt(index int) (chess.Difficulty, bool) {
	levels := chess.Difficulties()
	if index < 0 || index >= len(levels) {
		return "", false
	}
	return levels[index], true
}

// parseStrength accepts a whole number and clamps it into the supported range.
func parseStrength(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("strength must be a number between %d and %d", chess.MinRating, chess.MaxRating)
	}
	return chess.ClampRating(n), nil
}

func digitsOnly(text string, last rune) bool {
	return len(text) <= 4 && last >= '0' && last <= '9'
}

// fromStored converts remembered settings into session settings. Unknown or
// missing values fall back to the defaults.
func fromStored(ps config.PlayerSettings) session.Settings {
	s := session.DefaultSettings()
	if side, err := rules.ParseSide(ps.Side); err == nil && (side == rules.White || side == rules.Black) {
		s.HumanSide = side
	}
	if d, err := chess.ParseDifficulty(ps.Difficulty); err == nil {
		s.Difficulty = d
		s.Strength = d.Rating()
		return s
	}
	if ps.Strength > 0 {
		s.Strength = chess.ClampRating(ps.Strength)
		s.Difficulty, _ = chess.DifficultyFor(s.Strength)
	}
	return s
}

func toStored(s session.Settings) config.PlayerSettings {
	ps := config.PlayerSettings{Side: s.HumanSide.String(), Strength: s.Strength}
	if s.Difficulty != "" {
		ps.Difficulty = string(s.Difficulty)
		ps.Strength = 0
	}
	return ps
}

// parseMoveInput reads "e2e4", "e2 e4" or "e7e8q".
func parseMoveInput(text string) (rules.Move, error) {
	return rules.ParseMove(strings.Join(strings.Fields(text), ""))
}
