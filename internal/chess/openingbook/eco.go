package openingbook

import (
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

// Opening names the ECO line a game follows.
type Opening struct {
	Code  string
	Title string
}

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

func eco() *opening.BookECO {
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	return ecoBook
}

// Classify reports the deepest ECO opening matching the game's moves.
func Classify(game *nchess.Game) (Opening, bool) {
	if game == nil || len(game.Moves()) == 0 {
		return Opening{}, false
	}
	o := eco().Find(game.Moves())
	if o == nil {
		return Opening{}, false
	}
	return Opening{Code: o.Code(), Title: o.Title()}, true
}
