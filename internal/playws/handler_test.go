package playws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chessplay/pkg/chessdto"
)

// scriptedRequester answers every opponent request with the next move.
type scriptedRequester struct {
	mu        sync.Mutex
	moves     []string
	strengths []int
}

func (s *scriptedRequester) RequestMove(_ context.Context, _ string, strength int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strengths = append(s.strengths, strength)
	if len(s.moves) == 0 {
		return "", errors.New("no scripted move")
	}
	mv := s.moves[0]
	s.moves = s.moves[1:]
	return mv, nil
}

func startServer(t *testing.T, cfg Config) (*Handler, string) {
	t.Helper()
	h, err := NewHandler(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(h.Mux())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + Path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmd chessdto.Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, cmd))
}

// readUntil skips frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(chessdto.Frame) bool) chessdto.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var f chessdto.Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if match(f) {
			return f
		}
	}
}

func stateIs(name string) func(chessdto.Frame) bool {
	return func(f chessdto.Frame) bool {
		return f.Type == chessdto.FrameState && f.State != nil && f.State.State == name && !f.State.Pending
	}
}

func rejected(f chessdto.Frame) bool { return f.Type == chessdto.FrameRejected }

func TestPlaySessionOverSocket(t *testing.T) {
	req := &scriptedRequester{moves: []string{"e7e5"}}
	_, url := startServer(t, Config{Requester: req})
	conn := dial(t, url)

	initial := readUntil(t, conn, stateIs("not-started"))
	assert.True(t, initial.State.CanSetup)
	assert.Equal(t, "Choose a side and difficulty, then press Start.", initial.State.Status)

	send(t, conn, chessdto.Command{Type: chessdto.CommandDifficulty, Difficulty: "hard"})
	configured := readUntil(t, conn, stateIs("not-started"))
	assert.Equal(t, "hard", configured.State.Settings.Difficulty)
	assert.Equal(t, 1700, configured.State.Settings.Strength)

	send(t, conn, chessdto.Command{Type: chessdto.CommandStart})
	started := readUntil(t, conn, stateIs("awaiting-human"))
	assert.Equal(t, "white", started.State.Turn)
	assert.NotEmpty(t, started.State.SessionID)

	send(t, conn, chessdto.Command{Type: chessdto.CommandMove, From: "e2", To: "e4"})
	replied := readUntil(t, conn, func(f chessdto.Frame) bool {
		return f.Type == chessdto.FrameState && len(f.State.Moves) == 2
	})
	assert.Equal(t, []string{"e4", "e5"}, replied.State.MovesSAN)
	assert.Equal(t, "awaiting-human", replied.State.State)
	assert.Equal(t, "It's White's turn.", replied.State.Status)

	req.mu.Lock()
	assert.Equal(t, []int{1700}, req.strengths)
	req.mu.Unlock()
}

func TestRejectedCommandsLeaveStateUnchanged(t *testing.T) {
	_, url := startServer(t, Config{Requester: &scriptedRequester{}})
	conn := dial(t, url)
	readUntil(t, conn, stateIs("not-started"))

	send(t, conn, chessdto.Command{Type: chessdto.CommandMove, From: "e2e4"})
	f := readUntil(t, conn, rejected)
	assert.Equal(t, chessdto.CommandMove, f.Command)
	assert.Equal(t, "That is not possible right now.", f.Error)

	send(t, conn, chessdto.Command{Type: chessdto.CommandStart})
	readUntil(t, conn, stateIs("awaiting-human"))

	send(t, conn, chessdto.Command{Type: chessdto.CommandMove, From: "a2a5"})
	f = readUntil(t, conn, rejected)
	assert.Equal(t, "Illegal move: a2a5", f.Error)

	send(t, conn, chessdto.Command{Type: chessdto.CommandSide, Side: "black"})
	f = readUntil(t, conn, rejected)
	assert.Equal(t, chessdto.CommandSide, f.Command)

	send(t, conn, chessdto.Command{Type: "resign"})
	f = readUntil(t, conn, rejected)
	assert.Equal(t, "resign", f.Command)
}

func TestRequestFailureCanBeRetried(t *testing.T) {
	req := &scriptedRequester{}
	_, url := startServer(t, Config{Requester: req})
	conn := dial(t, url)
	readUntil(t, conn, stateIs("not-started"))

	send(t, conn, chessdto.Command{Type: chessdto.CommandSide, Side: "black"})
	readUntil(t, conn, stateIs("not-started"))
	send(t, conn, chessdto.Command{Type: chessdto.CommandStart})

	failed := readUntil(t, conn, func(f chessdto.Frame) bool {
		return f.Type == chessdto.FrameState && f.State.ErrorKind != ""
	})
	assert.Equal(t, "request_failed", failed.State.ErrorKind)
	assert.True(t, failed.State.CanRetry)

	req.mu.Lock()
	req.moves = []string{"d2d4"}
	req.mu.Unlock()
	send(t, conn, chessdto.Command{Type: chessdto.CommandRetry})
	played := readUntil(t, conn, stateIs("awaiting-human"))
	require.Len(t, played.State.Moves, 1)
	assert.Equal(t, "d4", played.State.Moves[0].SAN)
	assert.Equal(t, "opponent", played.State.Moves[0].Actor)
}

func TestForeignOriginIsRefused(t *testing.T) {
	_, url := startServer(t, Config{Requester: &scriptedRequester{}, AllowedOrigins: []string{"chess.example"}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	h, url := startServer(t, Config{Requester: &scriptedRequester{}})
	conn := dial(t, url)
	readUntil(t, conn, stateIs("not-started"))
	assert.Equal(t, 1, h.Active())

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var f chessdto.Frame
		errCh <- wsjson.Read(ctx, conn, &f)
	}()

	h.Close()
	assert.Equal(t, 0, h.Active())

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestNewHandlerRequiresRequester(t *testing.T) {
	_, err := NewHandler(Config{})
	require.Error(t, err)
}
