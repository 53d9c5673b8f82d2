package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/rules"
)

const waitTimeout = 2 * time.Second

type reply struct {
	move string
	err  error
}

type call struct {
	ctx      context.Context
	fen      string
	strength int
	reply    chan reply
}

func (c *call) answer(move string) { c.reply <- reply{move: move} }
func (c *call) fail(err error) { c.reply <- reply{err: err} }
func (c *call) cancelled() bool { return c.ctx.Err() != nil }

// fakeRequester hands every request to the test. Unless honorCtx is set it
// ignores cancellation, like a transport that cannot abort a sent request.
type fakeRequester struct {
	calls    chan *call
	done     chan struct{}
	honorCtx bool
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{calls: make(chan *call, 8), done: make(chan struct{})}
}

func (f *fakeRequester) RequestMove(ctx context.Context, fen string, strength int) (string, error) {
	c := &call{ctx: ctx, fen: fen, strength: strength, reply: make(chan reply, 1)}
	f.calls <- c
	var ctxDone <-chan struct{}
	if f.honorCtx {
		ctxDone = ctx.Done()
	}
	select {
	case r := <-c.reply:
		return r.move, r.err
	case <-ctxDone:
		return "", ctx.Err()
	case <-f.done:
		return "", errors.New("requester closed")
	}
}

type resolution struct {
	episode uint64
	err     error
}

type harness struct {
	c         *Controller
	req       *fakeRequester
	resolved  chan resolution
	mu        sync.Mutex
	snapshots []Snapshot
}

func newHarness(t *testing.T, settings Settings, timeout time.Duration, honorCtx bool) *harness {
	t.Helper()
	h := &harness{req: newFakeRequester(), resolved: make(chan resolution, 8)}
	h.req.honorCtx = honorCtx
	c, err := New(Config{
		Rules:          rules.Standard{},
		Requester:      h.req,
		Settings:       settings,
		RequestTimeout: timeout,
		OnUpdate: func(s Snapshot) {
			h.mu.Lock()
			h.snapshots = append(h.snapshots, s)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	c.afterResolve = func(ep uint64, err error) { h.resolved <- resolution{episode: ep, err: err} }
	h.c = c
	t.Cleanup(c.Close)
	t.Cleanup(func() { close(h.req.done) })
	return h
}

func (h *harness) nextCall(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-h.req.calls:
		return c
	case <-time.After(waitTimeout):
		t.Fatalf("no move request issued")
		return nil
	}
}

func (h *harness) noCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-h.req.calls:
		t.Fatalf("unexpected move request for %s", c.fen)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) awaitResolution(t *testing.T) resolution {
	t.Helper()
	select {
	case r := <-h.resolved:
		return r
	case <-time.After(waitTimeout):
		t.Fatalf("request never resolved")
		return resolution{}
	}
}

func whiteMedium() Settings {
	return Settings{HumanSide: rules.White, Difficulty: chess.Medium}
}

func blackMedium() Settings {
	return Settings{HumanSide: rules.Black, Difficulty: chess.Medium}
}

func TestHumanFirstMoveTriggersSingleRequest(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)

	require.NoError(t, h.c.Start())
	snap := h.c.Snapshot()
	require.Equal(t, AwaitingHumanMove, snap.State)
	require.Empty(t, snap.Moves)
	h.noCall(t)

	require.NoError(t, h.c.SubmitHumanMove("e2", "e4", rules.NoPiece))
	snap = h.c.Snapshot()
	assert.Equal(t, AwaitingOpponentMove, snap.State)
	assert.True(t, snap.Pending)
	require.Len(t, snap.Moves, 1)
	assert.Equal(t, Human, snap.Moves[0].Actor)

	c := h.nextCall(t)
	assert.Equal(t, 1200, c.strength)
	assert.Equal(t, snap.FEN, c.fen)
	h.noCall(t)

	c.answer("e7e5")
	r := h.awaitResolution(t)
	require.NoError(t, r.err)

	snap = h.c.Snapshot()
	assert.Equal(t, AwaitingHumanMove, snap.State)
	assert.False(t, snap.Pending)
	require.Len(t, snap.Moves, 2)
	assert.Equal(t, Opponent, snap.Moves[1].Actor)
	assert.Equal(t, rules.Black, snap.Moves[1].Side)
	assert.Equal(t, "e5", snap.Moves[1].SAN)
	h.noCall(t)
}

func TestHumanSecondRequestsAtStart(t *testing.T) {
	h := newHarness(t, blackMedium(), 0, false)

	require.NoError(t, h.c.Start())
	assert.Equal(t, AwaitingOpponentMove, h.c.Snapshot().State)

	c := h.nextCall(t)
	assert.Equal(t, rules.Standard{}.Start().FEN(), c.fen)
	c.answer("d2d4")
	h.awaitResolution(t)

	snap := h.c.Snapshot()
	assert.Equal(t, AwaitingHumanMove, snap.State)
	assert.Equal(t, rules.Black, snap.Turn)
}

func TestIllegalHumanMoveChangesNothing(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)
	require.NoError(t, h.c.Start())
	before := h.c.Snapshot()

	err := h.c.SubmitHumanMove("e2", "e5", rules.NoPiece)
	require.ErrorIs(t, err, ErrIllegalMove)

	after := h.c.Snapshot()
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, before.FEN, after.FEN)
	assert.Empty(t, after.Moves)
	assert.Equal(t, AwaitingHumanMove, after.State)
	h.noCall(t)
}

func TestHumanMoveOutsideOwnTurnIsInvalidTransition(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)

	err := h.c.SubmitHumanMove("e2", "e4", rules.NoPiece)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, h.c.Start())
	require.NoError(t, h.c.SubmitHumanMove("e2", "e4", rules.NoPiece))
	h.nextCall(t)

	err = h.c.SubmitHumanMove("d2", "d4", rules.NoPiece)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, h.c.Snapshot().Moves, 1)
}

func TestIllegalOpponentReplyIsDiscarded(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)
	require.NoError(t, h.c.Start())
	require.NoError(t, h.c.SubmitHumanMove("e2", "e4", rules.NoPiece))

	h.nextCall(t).answer("e2e4")
	r := h.awaitResolution(t)
	require.ErrorIs(t, r.err, ErrIllegalMove)

	snap := h.c.Snapshot()
	assert.Equal(t, AwaitingOpponentMove, snap.State)
	assert.Len(t, snap.Moves, 1)
	assert.False(t, snap.Pending)
	var illegal *IllegalReplyError
	require.ErrorAs(t, snap.Err, &illegal)
	assert.Equal(t, "e2e4", illegal.Move)
	h.noCall(t)

	require.NoError(t, h.c.RetryOpponentMove())
	h.nextCall(t).answer("c7c5")
	require.NoError(t, h.awaitResolution(t).err)

	snap = h.c.Snapshot()
	assert.Equal(t, AwaitingHumanMove, snap.State)
	assert.Len(t, snap.Moves, 2)
	assert.NoError(t, snap.Err)
}

func TestRequestFailureIsSurfacedWithoutRetry(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)
	require.NoError(t, h.c.Start())
	require.NoError(t, h.c.SubmitHumanMove("g1", "f3", rules.NoPiece))

	c := h.nextCall(t)
	require.ErrorIs(t, h.c.RetryOpponentMove(), ErrInvalidTransition)

	c.fail(errors.New("connection refused"))
	r := h.awaitResolution(t)

	var failure *RequestFailure
	require.ErrorAs(t, r.err, &failure)
	assert.False(t, failure.Timeout())

	snap := h.c.Snapshot()
	assert.Equal(t, AwaitingOpponentMove, snap.State)
	assert.Equal(t, rules.Black, snap.Turn)
	require.ErrorAs(t, snap.Err, &failure)
	h.noCall(t)
}

func TestRequestTimeoutBecomesFailure(t *testing.T) {
	h := newHarness(t, blackMedium(), 20*time.Millisecond, true)
	require.NoError(t, h.c.Start())
	h.nextCall(t)

	r := h.awaitResolution(t)
	var failure *RequestFailure
	require.ErrorAs(t, r.err, &failure)
	assert.True(t, failure.Timeout())
	assert.Equal(t, AwaitingOpponentMove, h.c.Snapshot().State)
}

func TestCheckmatingHumanMoveTerminates(t *testing.T) {
	h := newHarness(t, blackMedium(), 0, false)
	require.NoError(t, h.c.Start())

	h.nextCall(t).answer("f2f3")
	h.awaitResolution(t)
	require.NoError(t, h.c.SubmitHumanMove("e7", "e5", rules.NoPiece))
	h.nextCall(t).answer("g2g4")
	h.awaitResolution(t)

	require.NoError(t, h.c.SubmitHumanMove("d8", "h4", rules.NoPiece))
	snap := h.c.Snapshot()
	assert.Equal(t, Terminated, snap.State)
	assert.Equal(t, rules.Checkmate, snap.Outcome.Terminal)
	assert.Equal(t, rules.Black, snap.Outcome.Winner)
	assert.False(t, snap.Pending)
	h.noCall(t)

	for _, mv := range [][2]string{{"a7", "a6"}, {"a2", "a3"}, {"h4", "e1"}} {
		err := h.c.SubmitHumanMove(mv[0], mv[1], rules.NoPiece)
		require.ErrorIs(t, err, ErrInvalidTransition)
	}
	after := h.c.Snapshot()
	assert.Equal(t, snap.Revision, after.Revision)
	assert.Len(t, after.Moves, 4)
}

func TestRestartDiscardsStaleResolution(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)
	require.NoError(t, h.c.Start())
	require.NoError(t, h.c.SubmitHumanMove("e2", "e4", rules.NoPiece))
	stale := h.nextCall(t)

	require.ErrorIs(t, h.c.ChangeSide(rules.Black), ErrInvalidTransition)

	settings := blackMedium()
	settings.Difficulty = chess.Expert
	require.NoError(t, h.c.RestartWith(settings))
	assert.True(t, stale.cancelled())

	snap := h.c.Snapshot()
	assert.Equal(t, uint64(2), snap.Episode)
	assert.Equal(t, AwaitingOpponentMove, snap.State)
	assert.Empty(t, snap.Moves)
	fresh := h.nextCall(t)
	assert.Equal(t, 2200, fresh.strength)

	stale.answer("e7e5")
	r := h.awaitResolution(t)
	assert.Equal(t, uint64(1), r.episode)
	require.ErrorIs(t, r.err, ErrStaleResolution)

	snap = h.c.Snapshot()
	assert.Empty(t, snap.Moves)
	assert.Equal(t, AwaitingOpponentMove, snap.State)
	assert.True(t, snap.Pending)
	assert.NoError(t, snap.Err)

	fresh.answer("e2e4")
	require.NoError(t, h.awaitResolution(t).err)
	snap = h.c.Snapshot()
	assert.Equal(t, AwaitingHumanMove, snap.State)
	require.Len(t, snap.Moves, 1)
	assert.Equal(t, "e4", snap.Moves[0].SAN)
}

func TestRestartFromEveryStateUsesSelectedSide(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)

	require.NoError(t, h.c.Restart())
	assertFreshGame(t, h.c.Snapshot(), AwaitingHumanMove)

	require.NoError(t, h.c.SubmitHumanMove("f2", "f3", rules.NoPiece))
	h.nextCall(t).answer("e7e5")
	h.awaitResolution(t)
	require.NoError(t, h.c.SubmitHumanMove("g2", "g4", rules.NoPiece))
	h.nextCall(t).answer("d8h4")
	h.awaitResolution(t)
	require.Equal(t, Terminated, h.c.Snapshot().State)

	require.NoError(t, h.c.Restart())
	assertFreshGame(t, h.c.Snapshot(), AwaitingHumanMove)

	require.NoError(t, h.c.RestartWith(blackMedium()))
	assertFreshGame(t, h.c.Snapshot(), AwaitingOpponentMove)
	h.nextCall(t)
}

func assertFreshGame(t *testing.T, snap Snapshot, want State) {
	t.Helper()
	assert.Equal(t, want, snap.State)
	assert.Empty(t, snap.Moves)
	assert.Equal(t, rules.Standard{}.Start().FEN(), snap.FEN)
	assert.False(t, snap.Outcome.Over())
	assert.NoError(t, snap.Err)
}

func TestTurnAgreesWithRulesEngine(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)
	require.NoError(t, h.c.Start())

	human := []string{"e2e4", "g1f3", "f1c4", "e1g1"}
	opponent := []string{"e7e5", "b8c6", "g8f6", "f8c5"}
	for i := range human {
		snap := h.c.Snapshot()
		require.Equal(t, snap.Position.Turn(), snap.Turn)

		mv, err := rules.ParseMove(human[i])
		require.NoError(t, err)
		require.NoError(t, h.c.SubmitHumanMove(mv.From, mv.To, mv.Promotion))

		snap = h.c.Snapshot()
		require.Equal(t, snap.Position.Turn(), snap.Turn)

		h.nextCall(t).answer(opponent[i])
		require.NoError(t, h.awaitResolution(t).err)
	}
	snap := h.c.Snapshot()
	assert.Equal(t, snap.Position.Turn(), snap.Turn)
	assert.Len(t, snap.Moves, 8)
	assert.Equal(t, "O-O", snap.Moves[6].SAN)
}

func TestSettingsOnlyChangeBeforeStart(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)

	require.NoError(t, h.c.ChangeDifficulty(chess.Hard))
	assert.Equal(t, 1700, h.c.Snapshot().Settings.Strength)

	require.NoError(t, h.c.ChangeStrength(5000))
	s := h.c.Snapshot().Settings
	assert.Equal(t, 3000, s.Strength)
	assert.Empty(t, s.Difficulty)

	require.NoError(t, h.c.ChangeStrength(800))
	assert.Equal(t, chess.Easy, h.c.Snapshot().Settings.Difficulty)

	require.NoError(t, h.c.ChangeSide(rules.Black))
	require.Error(t, h.c.ChangeSide(rules.NoSide))

	require.NoError(t, h.c.Start())
	require.ErrorIs(t, h.c.ChangeDifficulty(chess.Easy), ErrInvalidTransition)
	require.ErrorIs(t, h.c.ChangeStrength(1500), ErrInvalidTransition)
	require.ErrorIs(t, h.c.Start(), ErrInvalidTransition)

	c := h.nextCall(t)
	assert.Equal(t, 800, c.strength)
}

func TestUpdatesArriveInRevisionOrder(t *testing.T) {
	h := newHarness(t, whiteMedium(), 0, false)
	require.NoError(t, h.c.Start())
	require.NoError(t, h.c.SubmitHumanMove("d2", "d4", rules.NoPiece))
	h.nextCall(t).answer("d7d5")
	h.awaitResolution(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.snapshots)
	for i := 1; i < len(h.snapshots); i++ {
		assert.Greater(t, h.snapshots[i].Revision, h.snapshots[i-1].Revision)
	}
	assert.Equal(t, AwaitingHumanMove, h.snapshots[len(h.snapshots)-1].State)
}

func TestCloseRejectsFurtherCommands(t *testing.T) {
	h := newHarness(t, blackMedium(), 0, true)
	require.NoError(t, h.c.Start())
	c := h.nextCall(t)

	h.c.Close()
	assert.True(t, c.cancelled())
	assert.ErrorIs(t, h.c.Restart(), ErrClosed)
	assert.ErrorIs(t, h.c.SubmitHumanMove("e7", "e5", rules.NoPiece), ErrClosed)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Requester: newFakeRequester()})
	assert.Error(t, err)
	_, err = New(Config{Rules: rules.Standard{}})
	assert.Error(t, err)
	_, err = New(Config{Rules: rules.Standard{}, Requester: newFakeRequester(), RequestTimeout: -time.Second})
	assert.Error(t, err)

	c, err := New(Config{Rules: rules.Standard{}, Requester: newFakeRequester()})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, DefaultSettings(), c.Snapshot().Settings)
	assert.Equal(t, NotStarted, c.Snapshot().State)
}
