package chessdto

// BotMoveRequest asks the decision service for a move in the given position.
type BotMoveRequest struct {
	FEN string `json:"fen"`
	Elo *int   `json:"elo,omitempty"`
}

// BotMoveResponse carries either a move in UCI coordinates or an error.
type BotMoveResponse struct {
	Move  string `json:"move,omitempty"`
	Error string `json:"error,omitempty"`
}

// AnalyzeRequest takes a FEN, or UCI moves replayed from the initial position.
type AnalyzeRequest struct {
	FEN   string   `json:"fen,omitempty"`
	Moves []string `json:"moves,omitempty"`
}

// AnalyzeResponse reports the engine's preferred move and a White-relative
// evaluation in centipawns.
type AnalyzeResponse struct {
	BestMove   *string `json:"best_move"`
	Evaluation *int    `json:"evaluation"`
}

type HelloResponse struct {
	Message string `json:"message"`
}
