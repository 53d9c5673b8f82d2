// Package server exposes the move decision service and the game analysis
// API over fasthttp.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/adapter/chesspresenter"
	"github.com/park285/chessplay/internal/analysis"
	"github.com/park285/chessplay/internal/archive"
	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/domain"
	"github.com/park285/chessplay/internal/msgcat"
	"github.com/park285/chessplay/internal/rules"
	"github.com/park285/chessplay/pkg/chessdto"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxBodyBytes          = 4 << 20
	gamesRoutePrefix      = "/api/games/"
)

// MoveEngine chooses and evaluates moves.
type MoveEngine interface {
	BestMove(ctx context.Context, fen string, elo int) (string, error)
	Evaluate(ctx context.Context, fen string) (chess.Evaluation, error)
}

type GameAnalyzer interface {
	AnalyzeGame(ctx context.Context, moves []string) (domain.GameAnalysis, error)
}

type ArchiveService interface {
	Games(ctx context.Context, username string) ([]domain.ArchivedGame, error)
}

// Config collects the server's collaborators. Engine and Analyzer may be nil,
// in which case the endpoints that need them answer 500.
type Config struct {
	Engine   MoveEngine
	Analyzer GameAnalyzer
	Archive  ArchiveService
	Messages *msgcat.Catalog
	Logger   *zap.Logger
	// RequestTimeout bounds engine and upstream work per request.
	RequestTimeout time.Duration
}

type Server struct {
	engine   MoveEngine
	analyzer GameAnalyzer
	archive  ArchiveService
	msgs     *msgcat.Catalog
	replay   rules.Standard
	timeout  time.Duration
	logger   *zap.Logger
	srv      *fasthttp.Server
}

func New(cfg Config) *Server {
	s := &Server{
		engine:   cfg.Engine,
		analyzer: cfg.Analyzer,
		archive:  cfg.Archive,
		msgs:     cfg.Messages,
		replay:   rules.Standard{Lenient: true},
		timeout:  cfg.RequestTimeout,
		logger:   cfg.Logger,
	}
	if s.msgs == nil {
		s.msgs = msgcat.Default()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.timeout <= 0 {
		s.timeout = defaultRequestTimeout
	}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "chessplay",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       s.timeout + 5*time.Second,
		IdleTimeout:        60 * time.Second,
		MaxRequestBodySize: maxBodyBytes,
	}
	return s
}

// Handler routes requests; exposed for in-memory listeners in tests.
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.logRequests(s.route)
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http listening", zap.String("addr", ln.Addr().String()))
	return s.srv.Serve(ln)
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	case path == "/api/hello":
		s.onlyMethod(ctx, fasthttp.MethodGet, s.handleHello)
	case path == "/api/bot-move":
		s.onlyMethod(ctx, fasthttp.MethodPost, s.handleBotMove)
	case path == "/api/analyze":
		s.onlyMethod(ctx, fasthttp.MethodPost, s.handleAnalyze)
	case path == "/api/analyze_game":
		s.onlyMethod(ctx, fasthttp.MethodPost, s.handleAnalyzeGame)
	case path == "/api/aggregate_analysis":
		s.onlyMethod(ctx, fasthttp.MethodPost, s.handleAggregate)
	case strings.HasPrefix(path, gamesRoutePrefix):
		s.onlyMethod(ctx, fasthttp.MethodGet, s.handleGames)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) onlyMethod(ctx *fasthttp.RequestCtx, method string, h fasthttp.RequestHandler) {
	if string(ctx.Method()) != method {
		ctx.Response.Header.Set("Allow", method)
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	h(ctx)
}

func (s *Server) logRequests(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		started := time.Now()
		next(ctx)
		status := ctx.Response.StatusCode()
		fields := []zap.Field{
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(started)),
		}
		if status >= fasthttp.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	}
}

func (s *Server) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Server) handleHello(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, chessdto.HelloResponse{Message: s.msgs.Text("api.hello", nil)})
}

func (s *Server) handleBotMove(ctx *fasthttp.RequestCtx) {
	if s.engine == nil {
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.engine_not_loaded", nil)
		return
	}
	var req chessdto.BotMoveRequest
	if !s.decode(ctx, &req) {
		return
	}
	fen := strings.TrimSpace(req.FEN)
	if fen == "" {
		s.fail(ctx, fasthttp.StatusBadRequest, "api.fen_required", nil)
		return
	}
	// Claimable draws are not over here; only forced endings are.
	pos, err := s.replay.FromFEN(fen)
	if err != nil {
		s.fail(ctx, fasthttp.StatusBadRequest, "api.invalid_fen", nil)
		return
	}
	if s.replay.Classify(pos).Over() {
		s.fail(ctx, fasthttp.StatusBadRequest, "api.game_over", nil)
		return
	}
	elo := chess.DefaultRating
	if req.Elo != nil {
		elo = chess.ClampRating(*req.Elo)
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	move, err := s.engine.BestMove(rctx, pos.FEN(), elo)
	switch {
	case errors.Is(err, chess.ErrNoBestMove) || (err == nil && move == ""):
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.no_move_found", nil)
	case err != nil:
		s.logger.Error("bot move failed", zap.String("fen", fen), zap.Int("elo", elo), zap.Error(err))
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.bot_move_failed", errData(err))
	default:
		s.logger.Debug("bot move", zap.String("fen", fen), zap.Int("elo", elo), zap.String("move", move))
		writeJSON(ctx, fasthttp.StatusOK, chessdto.BotMoveResponse{Move: move})
	}
}

func (s *Server) handleAnalyze(ctx *fasthttp.RequestCtx) {
	if s.engine == nil {
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.engine_not_loaded", nil)
		return
	}
	var req chessdto.AnalyzeRequest
	if !s.decode(ctx, &req) {
		return
	}

	var pos rules.Position
	switch {
	case strings.TrimSpace(req.FEN) != "":
		p, err := s.replay.FromFEN(req.FEN)
		if err != nil {
			s.fail(ctx, fasthttp.StatusBadRequest, "api.invalid_fen", nil)
			return
		}
		pos = p
	case len(req.Moves) > 0:
		pos = s.replay.Start()
		for _, raw := range req.Moves {
			mv, err := rules.ParseMove(raw)
			if err == nil {
				pos, _, err = s.replay.Apply(pos, mv)
			}
			if err != nil {
				s.fail(ctx, fasthttp.StatusBadRequest, "api.invalid_move_uci", map[string]string{"Move": raw})
				return
			}
		}
	default:
		s.fail(ctx, fasthttp.StatusBadRequest, "api.no_position", nil)
		return
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	ev, err := s.engine.Evaluate(rctx, pos.FEN())
	if err != nil {
		s.logger.Error("analyze failed", zap.String("fen", pos.FEN()), zap.Error(err))
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.analyze_failed", errData(err))
		return
	}
	var resp chessdto.AnalyzeResponse
	if ev.BestMove != "" {
		best := ev.BestMove
		resp.BestMove = &best
	}
	if ev.HasScore {
		score := ev.Score
		resp.Evaluation = &score
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleAnalyzeGame(ctx *fasthttp.RequestCtx) {
	if s.analyzer == nil {
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.engine_not_loaded", nil)
		return
	}
	var req chessdto.AnalyzeGameRequest
	if !s.decode(ctx, &req) {
		return
	}
	if len(req.Moves) == 0 {
		s.fail(ctx, fasthttp.StatusBadRequest, "api.no_moves", nil)
		return
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	result, err := s.analyzer.AnalyzeGame(rctx, req.Moves)
	if err != nil {
		var illegal *analysis.IllegalMoveError
		switch {
		case errors.As(err, &illegal):
			writeError(ctx, fasthttp.StatusBadRequest, illegal.Error())
		case errors.Is(err, analysis.ErrNoMoves):
			s.fail(ctx, fasthttp.StatusBadRequest, "api.no_moves", nil)
		default:
			s.logger.Error("game analysis failed", zap.Int("moves", len(req.Moves)), zap.Error(err))
			s.fail(ctx, fasthttp.StatusInternalServerError, "api.analysis_failed", errData(err))
		}
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, chesspresenter.ToDTOGameAnalysis(result))
}

func (s *Server) handleAggregate(ctx *fasthttp.RequestCtx) {
	var req chessdto.AggregateRequest
	if !s.decode(ctx, &req) {
		return
	}
	summary, err := analysis.Aggregate(chesspresenter.FromDTOAnalyses(req.Analyses))
	if errors.Is(err, analysis.ErrNoAnalyses) {
		s.fail(ctx, fasthttp.StatusBadRequest, "api.no_analyses", nil)
		return
	}
	if err != nil {
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.unexpected", errData(err))
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, chesspresenter.ToDTOSummary(summary))
}

func (s *Server) handleGames(ctx *fasthttp.RequestCtx) {
	username := strings.Trim(strings.TrimPrefix(string(ctx.Path()), gamesRoutePrefix), "/")
	if s.archive == nil {
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.archive_failed", errData(errors.New("archive service not configured")))
		return
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	games, err := s.archive.Games(rctx, username)
	if err != nil {
		if errors.Is(err, archive.ErrInvalidUsername) {
			s.fail(ctx, fasthttp.StatusBadRequest, "api.invalid_username", map[string]string{"Username": username})
			return
		}
		s.logger.Warn("archive fetch failed", zap.String("username", username), zap.Error(err))
		s.fail(ctx, fasthttp.StatusInternalServerError, "api.archive_failed", errData(err))
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, chessdto.GamesResponse{Games: chesspresenter.ToDTOArchivedGames(games)})
}

func (s *Server) decode(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		s.fail(ctx, fasthttp.StatusBadRequest, "api.bad_json", nil)
		return false
	}
	return true
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, status int, key string, data any) {
	writeError(ctx, status, s.msgs.Text(key, data))
}

func errData(err error) map[string]string {
	return map[string]string{"Err": err.Error()}
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, chessdto.ErrorResponse{Error: msg})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode response", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
