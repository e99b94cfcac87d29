// Package engine wraps the chess rules library behind the narrow surface
// the session service needs: turn tracking, move application, and
// game-over detection.
package engine

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

const (
	White = "white"
	Black = "black"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

// ErrInvalidMove is returned for any move the rules library rejects.
const ErrInvalidMove = staticErr("invalid move")

// Game is a single match's rule-engine instance, starting position by default.
type Game struct {
	inner *nchess.Game
}

func New() *Game {
	return &Game{inner: nchess.NewGame()}
}

// Turn reports which color moves next.
func (g *Game) Turn() string {
	if g.inner.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// MoveResult describes an applied move.
type MoveResult struct {
	SAN string
	UCI string
	FEN string
}

// Move validates and applies a from/to(/promotion) move. The position is
// unchanged when an error is returned.
func (g *Game) Move(from, to, promotion string) (*MoveResult, error) {
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	if len(uci) < 4 {
		return nil, ErrInvalidMove
	}
	pos := g.inner.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, ErrInvalidMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := g.inner.Move(mv, nil); err != nil {
		return nil, ErrInvalidMove
	}
	return &MoveResult{SAN: san, UCI: uci, FEN: g.inner.FEN()}, nil
}

// FEN returns the current position.
func (g *Game) FEN() string { return g.inner.FEN() }

// IsGameOver reports whether the game reached a terminal outcome.
func (g *Game) IsGameOver() bool {
	return g.inner.Outcome() != nchess.NoOutcome
}

// IsCheckmate reports whether the terminal outcome was a checkmate.
func (g *Game) IsCheckmate() bool {
	return g.inner.Method() == nchess.Checkmate
}

// Winner returns "white", "black", or "draw" once the game is over, and ""
// while it is still in progress.
func (g *Game) Winner() string {
	switch g.inner.Outcome() {
	case nchess.WhiteWon:
		return White
	case nchess.BlackWon:
		return Black
	case nchess.Draw:
		return "draw"
	default:
		return ""
	}
}
