package chess

import (
	"errors"
	"fmt"
	"strings"
)

// Difficulty is a player-facing strength label.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
	Expert Difficulty = "expert"
)

const (
	MinRating     = 100
	MaxRating     = 3000
	DefaultRating = 1200
)

var ErrUnknownDifficulty = errors.New("unknown difficulty")

var difficultyRatings = map[Difficulty]int{
	Easy:   800,
	Medium: 1200,
	Hard:   1700,
	Expert: 2200,
}

// Difficulties returns the labels from weakest to strongest.
func Difficulties() []Difficulty {
	return []Difficulty{Easy, Medium, Hard, Expert}
}

// ParseDifficulty validates a label coming from outside the process.
func ParseDifficulty(v string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(v)))
	if _, ok := difficultyRatings[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, v)
	}
	return d, nil
}

// Rating maps a label to its strength rating. Labels must come from
// ParseDifficulty or the constants above; anything else panics.
func (d Difficulty) Rating() int {
	r, ok := difficultyRatings[d]
	if !ok {
		panic(fmt.Sprintf("chess: rating requested for unknown difficulty %q", string(d)))
	}
	return r
}

// DifficultyFor returns the label whose rating equals r, if any.
func DifficultyFor(r int) (Difficulty, bool) {
	for _, d := range Difficulties() {
		if difficultyRatings[d] == r {
			return d, true
		}
	}
	return "", false
}

// ClampRating bounds a user override to the supported range.
func ClampRating(r int) int {
	if r < MinRating {
		return MinRating
	}
	if r > MaxRating {
		return MaxRating
	}
	return r
}
