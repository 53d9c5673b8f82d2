package chessdto

const (
	CommandStart      = "start"
	CommandRestart    = "restart"
	CommandMove       = "move"
	CommandRetry      = "retry"
	CommandSide       = "side"
	CommandDifficulty = "difficulty"
	CommandStrength   = "strength"

	FrameState    = "state"
	FrameRejected = "rejected"
)

// Command is a client → server frame on the play socket.
type Command struct {
	Type       string `json:"type"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Promotion  string `json:"promotion,omitempty"`
	Side       string `json:"side,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Strength   int    `json:"strength,omitempty"`
}

// Frame is a server → client message on the play socket.
type Frame struct {
	Type    string        `json:"type"`
	State   *SessionState `json:"state,omitempty"`
	Command string        `json:"command,omitempty"`
	Error   string        `json:"error,omitempty"`
}
