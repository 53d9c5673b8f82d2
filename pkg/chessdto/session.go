package chessdto

type MoveRecord struct {
	Ply   int    `json:"ply"`
	Side  string `json:"side"`
	Actor string `json:"actor"`
	SAN   string `json:"san"`
	UCI   string `json:"uci"`
	FEN   string `json:"fen"`
}

type Settings struct {
	HumanSide  string `json:"human_side"`
	Difficulty string `json:"difficulty,omitempty"`
	Strength   int    `json:"strength"`
}

// SessionState is what a board UI needs to render one controller snapshot.
type SessionState struct {
	SessionID string       `json:"session_id,omitempty"`
	Episode   uint64       `json:"episode"`
	Revision  uint64       `json:"revision"`
	State     string       `json:"state"`
	Settings  Settings     `json:"settings"`
	FEN       string       `json:"fen,omitempty"`
	Turn      string       `json:"turn,omitempty"`
	Terminal  string       `json:"terminal,omitempty"`
	Winner    string       `json:"winner,omitempty"`
	Moves     []MoveRecord `json:"moves"`
	MovesSAN  []string     `json:"moves_san"`
	Pending   bool         `json:"pending"`
	CanMove   bool         `json:"can_move"`
	CanRetry  bool         `json:"can_retry"`
	CanSetup  bool         `json:"can_setup"`
	Status    string       `json:"status"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
}
