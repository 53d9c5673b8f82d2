package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond

	// Stockfish refuses UCI_Elo below this value.
	MinLimitedElo = 1320
	MaxLimitedElo = 3190
)

var ErrEngineExited = errors.New("engine process exited")

// Options are fixed for the lifetime of an engine process.
type Options struct {
	Threads int
	HashMB  int
}

// Strength is applied per search and only re-sent when it changes.
type Strength struct {
	Limited bool
	Elo     int
	Skill   int
}

// FullStrength disables every handicap.
func FullStrength() Strength { return Strength{Skill: 20} }

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// Score is reported from the point of view of the side to move.
type Score struct {
	CP     int
	Mate   int
	IsMate bool
}

type Line struct {
	Move      string
	Score     Score
	HasScore  bool
	Principal []string
}

type SearchRequest struct {
	FEN      string
	Moves    []string
	Limits   Limits
	Strength Strength
}

type SearchResponse struct {
	Lines    []Line
	BestMove string
}

type lineResult struct {
	line string
	err  error
}

type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan lineResult
	closed chan struct{}
	logger *zap.Logger

	mu     sync.Mutex
	search sync.Mutex

	strength    Strength
	strengthSet bool
}

func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// The process outlives the acquiring request, so it is not bound to ctx.
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan lineResult, 64),
		closed: make(chan struct{}),
		logger: logger,
	}
	go s.pump(bufio.NewReader(stdoutPipe))

	if err := s.initialize(ctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// pump is the only reader of stdout, so an abandoned read never swallows a
// line that belongs to the next command.
func (s *Session) pump(r *bufio.Reader) {
	defer close(s.lines)
	for {
		line, err := r.ReadString('\n')
		if line != "" && !s.deliver(lineResult{line: strings.TrimSpace(line)}) {
			return
		}
		if err != nil {
			s.deliver(lineResult{err: err})
			return
		}
	}
}

func (s *Session) deliver(r lineResult) bool {
	select {
	case s.lines <- r:
		return true
	case <-s.closed:
		return false
	}
}

func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.applyStrength(req.Strength); err != nil {
		return SearchResponse{}, err
	}

	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	lines := make(map[int]Line)
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			s.logger.Warn("uci read failed",
				zap.String("position", strings.TrimSpace(positionCmd)),
				zap.String("go", goCmd),
				zap.Error(err))
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if idx, l, ok := parseInfo(line); ok {
				if l.Move == "" {
					prev := lines[idx]
					l.Move, l.Principal = prev.Move, prev.Principal
				}
				lines[idx] = l
			}
		case strings.HasPrefix(line, "bestmove"):
			return SearchResponse{Lines: collapseLines(lines), BestMove: parseBestMove(line)}, nil
		}
	}
}

func (s *Session) applyStrength(st Strength) error {
	if s.strengthSet && s.strength == st {
		return nil
	}
	cmds := []string{
		fmt.Sprintf("setoption name UCI_LimitStrength value %t\n", st.Limited),
	}
	if st.Limited {
		cmds = append(cmds, fmt.Sprintf("setoption name UCI_Elo value %d\n", st.Elo))
	}
	cmds = append(cmds, fmt.Sprintf("setoption name Skill Level value %d\n", st.Skill))
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply strength: %w", err)
		}
	}
	s.strength = st
	s.strengthSet = true
	return nil
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(strings.TrimSpace(fen))
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func validateOptions(opt Options) error {
	if opt.Threads < 0 {
		return fmt.Errorf("threads must be >= 0: %d", opt.Threads)
	}
	if opt.HashMB <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", opt.HashMB)
	}
	return nil
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis+2000) * time.Millisecond
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		return min(max(base, 6*time.Second), 20*time.Second)
	}
	return 6 * time.Second
}

func parseBestMove(line string) string {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[1] == "(none)" || parts[1] == "0000" {
		return ""
	}
	return parts[1]
}

// parseInfo extracts the multipv index, score and principal variation from
// an info line. Lines carrying neither a score nor a pv are ignored.
func parseInfo(line string) (int, Line, bool) {
	parts := strings.Fields(line)
	var (
		multipv = 1
		out     Line
		pvIdx   = -1
	)

	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				v, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						out.Score = Score{CP: v}
						out.HasScore = true
					case "mate":
						out.Score = Score{Mate: v, IsMate: true}
						out.HasScore = true
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if pvIdx != -1 && pvIdx < len(parts) {
		out.Principal = append([]string(nil), parts[pvIdx:]...)
		out.Move = out.Principal[0]
	}
	if out.Move == "" && !out.HasScore {
		return 0, Line{}, false
	}
	return multipv, out, true
}

func collapseLines(m map[int]Line) []Line {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Line, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts {
			return err
		}
		s.logger.Debug("uci ready retry after ucinewgame",
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.cmd != nil {
		close(s.closed)
		err := s.cmd.Wait()
		s.cmd = nil
		return err
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d\n", threads),
		fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB),
		"setoption name Move Overhead value 100\n",
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return ErrEngineExited
	}
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-s.lines:
			if !ok {
				return "", ErrEngineExited
			}
			if res.err != nil {
				return "", fmt.Errorf("%w: %v", ErrEngineExited, res.err)
			}
			if res.line == "" {
				continue
			}
			return res.line, nil
		}
	}
}
