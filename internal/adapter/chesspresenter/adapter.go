package chesspresenter

import (
	"errors"

	"github.com/park285/chessplay/internal/domain"
	"github.com/park285/chessplay/internal/rules"
	"github.com/park285/chessplay/internal/session"
	"github.com/park285/chessplay/pkg/chessdto"
)

const (
	ErrorKindRequestFailed  = "request_failed"
	ErrorKindRequestTimeout = "request_timeout"
	ErrorKindIllegalReply   = "illegal_reply"
)

// ToDTOState converts a controller snapshot into the wire state a board UI
// renders. f supplies the status line; nil uses the embedded messages.
func ToDTOState(s session.Snapshot, f *Formatter) chessdto.SessionState {
	if f == nil {
		f = NewFormatter(nil)
	}
	moves := ToDTOMoves(s.Moves)
	san := make([]string, 0, len(moves))
	for _, mv := range moves {
		san = append(san, mv.SAN)
	}
	out := chessdto.SessionState{
		SessionID: s.SessionID,
		Episode:   s.Episode,
		Revision:  s.Revision,
		State:     s.State.String(),
		Settings:  ToDTOSettings(s.Settings),
		FEN:       s.FEN,
		Terminal:  string(s.Outcome.Terminal),
		Moves:     moves,
		MovesSAN:  san,
		Pending:   s.Pending,
		CanMove:   s.HumanToMove(),
		CanRetry:  s.State == session.AwaitingOpponentMove && !s.Pending,
		CanSetup:  s.State == session.NotStarted,
		Status:    f.Status(s),
		ErrorKind: errorKind(s.Err),
	}
	if s.State != session.NotStarted {
		out.Turn = s.Turn.String()
	}
	if s.Outcome.Winner != rules.NoSide {
		out.Winner = s.Outcome.Winner.String()
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}

func ToDTOSettings(s session.Settings) chessdto.Settings {
	return chessdto.Settings{
		HumanSide:  s.HumanSide.String(),
		Difficulty: string(s.Difficulty),
		Strength:   s.Strength,
	}
}

func ToDTOMoves(list []session.MoveRecord) []chessdto.MoveRecord {
	out := make([]chessdto.MoveRecord, 0, len(list))
	for _, mv := range list {
		out = append(out, chessdto.MoveRecord{
			Ply:   mv.Ply,
			Side:  mv.Side.String(),
			Actor: string(mv.Actor),
			SAN:   mv.SAN,
			UCI:   mv.UCI,
			FEN:   mv.FEN,
		})
	}
	return out
}

func errorKind(err error) string {
	if err == nil {
		return ""
	}
	var failure *session.RequestFailure
	if errors.As(err, &failure) {
		if failure.Timeout() {
			return ErrorKindRequestTimeout
		}
		return ErrorKindRequestFailed
	}
	var illegal *session.IllegalReplyError
	if errors.As(err, &illegal) {
		return ErrorKindIllegalReply
	}
	return ""
}

// analysis

func ToDTOMoveAnalysis(m domain.MoveAnalysis) chessdto.MoveAnalysis {
	out := chessdto.MoveAnalysis{
		MoveNumber:       m.MoveNumber,
		MoveUCI:          m.MoveUCI,
		EvaluationBefore: m.EvalBefore,
		EvaluationAfter:  m.EvalAfter,
		CentipawnLoss:    m.CentipawnLoss,
	}
	if m.BestMoveUCI != "" {
		best := m.BestMoveUCI
		out.BestMoveUCI = &best
	}
	return out
}

func toDTOMoveAnalyses(list []domain.MoveAnalysis) []chessdto.MoveAnalysis {
	out := make([]chessdto.MoveAnalysis, 0, len(list))
	for _, m := range list {
		out = append(out, ToDTOMoveAnalysis(m))
	}
	return out
}

func ToDTOGameAnalysis(a domain.GameAnalysis) chessdto.AnalyzeGameResponse {
	return chessdto.AnalyzeGameResponse{
		Analysis:           toDTOMoveAnalyses(a.Moves),
		TotalCentipawnLoss: a.TotalCentipawnLoss,
		TopBlunders:        toDTOMoveAnalyses(a.TopBlunders),
	}
}

// FromDTOAnalyses converts client-supplied per-game analyses back into the
// domain form used by aggregation.
func FromDTOAnalyses(games [][]chessdto.MoveAnalysis) [][]domain.MoveAnalysis {
	out := make([][]domain.MoveAnalysis, 0, len(games))
	for _, game := range games {
		moves := make([]domain.MoveAnalysis, 0, len(game))
		for _, m := range game {
			mv := domain.MoveAnalysis{
				MoveNumber:    m.MoveNumber,
				MoveUCI:       m.MoveUCI,
				EvalBefore:    m.EvaluationBefore,
				EvalAfter:     m.EvaluationAfter,
				CentipawnLoss: m.CentipawnLoss,
			}
			if m.BestMoveUCI != nil {
				mv.BestMoveUCI = *m.BestMoveUCI
			}
			moves = append(moves, mv)
		}
		out = append(out, moves)
	}
	return out
}

func ToDTOSummary(s domain.AnalysisSummary) chessdto.AggregateResponse {
	blunders := make([]chessdto.BlunderCount, 0, len(s.MostCommonBlunders))
	for _, b := range s.MostCommonBlunders {
		blunders = append(blunders, chessdto.BlunderCount{Move: b.Move, Count: b.Count})
	}
	return chessdto.AggregateResponse{
		AverageCentipawnLoss: s.AverageCentipawnLoss,
		MostCommonBlunders:   blunders,
		TotalGamesAnalyzed:   s.TotalGames,
		TotalMovesAnalyzed:   s.TotalMoves,
	}
}

// archive

func ToDTOArchivedGames(list []domain.ArchivedGame) []chessdto.ArchivedGame {
	out := make([]chessdto.ArchivedGame, 0, len(list))
	for _, g := range list {
		headers := make(map[string]string, len(g.Headers))
		for k, v := range g.Headers {
			headers[k] = v
		}
		out = append(out, chessdto.ArchivedGame{
			Headers: headers,
			Moves:   append([]string{}, g.Moves...),
			Opening: g.Opening,
		})
	}
	return out
}
