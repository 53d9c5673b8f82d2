package archive

import (
	"bufio"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chessplay/internal/chess/openingbook"
	"github.com/park285/chessplay/internal/domain"
)

// SplitPGN cuts a multi-game PGN document into one chunk per game. A tag
// line that follows movetext starts a new game.
func SplitPGN(data string) []string {
	var (
		chunks   []string
		current  strings.Builder
		sawMoves bool
	)
	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		sawMoves = false
	}

	sc := bufio.NewScanner(strings.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "["):
			if sawMoves {
				flush()
			}
		case line != "":
			sawMoves = true
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return chunks
}

// ParseGame reads one PGN game into headers, UCI moves and its opening.
func ParseGame(chunk string) (domain.ArchivedGame, error) {
	opt, err := nchess.PGN(strings.NewReader(chunk))
	if err != nil {
		return domain.ArchivedGame{}, fmt.Errorf("parse pgn: %w", err)
	}
	game := nchess.NewGame(opt)
	headers := parseHeaders(chunk)

	moves := game.Moves()
	positions := game.Positions()
	uci := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		uci = append(uci, strings.ToLower(nchess.UCINotation{}.Encode(positions[i], mv)))
	}

	out := domain.ArchivedGame{Headers: headers, Moves: uci}
	if o, ok := openingbook.Classify(game); ok {
		out.Opening = o.Code + " " + o.Title
	}
	return out, nil
}

// parseHeaders reads the [Key "Value"] lines at the top of a game chunk.
func parseHeaders(chunk string) map[string]string {
	headers := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(chunk))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
			break
		}
		body := strings.TrimSpace(line[1 : len(line)-1])
		key, rest, ok := strings.Cut(body, " ")
		if !ok || key == "" {
			continue
		}
		value := strings.TrimSpace(rest)
		if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = value[1 : len(value)-1]
		}
		headers[key] = strings.ReplaceAll(value, `\"`, `"`)
	}
	return headers
}

// ParsePGN parses every game in a document. Games that fail to parse are
// skipped and counted.
func ParsePGN(data string) ([]domain.ArchivedGame, int) {
	var (
		games   []domain.ArchivedGame
		skipped int
	)
	for _, chunk := range SplitPGN(data) {
		g, err := ParseGame(chunk)
		if err != nil {
			skipped++
			continue
		}
		games = append(games, g)
	}
	return games, skipped
}
