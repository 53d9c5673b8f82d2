package chesspresenter

import (
	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/session"
	"github.com/park285/chessplay/pkg/chessdto"
)

// Sink receives each rendered state, e.g. a websocket writer or a UI redraw.
type Sink func(state chessdto.SessionState) error

// Presenter turns controller snapshots into wire states without coupling the
// controller to a particular UI.
type Presenter struct {
	format *Formatter
	push   Sink
	logger *zap.Logger
}

func NewPresenter(format *Formatter, push Sink, logger *zap.Logger) *Presenter {
	if format == nil {
		format = NewFormatter(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{format: format, push: push, logger: logger}
}

func (p *Presenter) Formatter() *Formatter { return p.format }

// Snapshot renders s and hands it to the sink.
func (p *Presenter) Snapshot(s session.Snapshot) error {
	if p == nil || p.push == nil {
		return nil
	}
	return p.push(ToDTOState(s, p.format))
}

// OnUpdate has the signature of session.Config.OnUpdate. Sink errors are
// logged since the controller has nobody to report them to.
func (p *Presenter) OnUpdate(s session.Snapshot) {
	if err := p.Snapshot(s); err != nil {
		p.logger.Warn("push state failed",
			zap.String("session", s.SessionID),
			zap.Uint64("revision", s.Revision),
			zap.Error(err))
	}
}
