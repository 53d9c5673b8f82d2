package analysis

import (
	"errors"
	"sort"

	"github.com/park285/chessplay/internal/domain"
)

const (
	// BlunderThreshold is the loss at which a move counts as a blunder.
	BlunderThreshold = 100
	commonBlunders   = 5
)

var ErrNoAnalyses = errors.New("no analysis data provided")

// Aggregate summarizes per-game analyses. The average uses signed losses.
func Aggregate(games [][]domain.MoveAnalysis) (domain.AnalysisSummary, error) {
	if len(games) == 0 {
		return domain.AnalysisSummary{}, ErrNoAnalyses
	}

	var (
		totalMoves int
		totalLoss  int
		counts     = make(map[string]int)
		order      []string
	)
	for _, game := range games {
		for _, mv := range game {
			totalMoves++
			totalLoss += mv.CentipawnLoss
			if mv.CentipawnLoss < BlunderThreshold {
				continue
			}
			if _, seen := counts[mv.MoveUCI]; !seen {
				order = append(order, mv.MoveUCI)
			}
			counts[mv.MoveUCI]++
		}
	}

	summary := domain.AnalysisSummary{
		MostCommonBlunders: mostCommon(order, counts, commonBlunders),
		TotalGames:         len(games),
		TotalMoves:         totalMoves,
	}
	if totalMoves > 0 {
		summary.AverageCentipawnLoss = float64(totalLoss) / float64(totalMoves)
	}
	return summary, nil
}

// mostCommon ranks by count; equal counts keep first-seen order.
func mostCommon(order []string, counts map[string]int, n int) []domain.BlunderCount {
	out := make([]domain.BlunderCount, 0, len(order))
	for _, mv := range order {
		out = append(out, domain.BlunderCount{Move: mv, Count: counts[mv]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
