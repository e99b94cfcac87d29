// Package session orchestrates the move lifecycle of a live match: turn
// validation, rule-engine application, move persistence, and result
// finalization.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/Vaibhav2795/duel-prediction-market/internal/engine"
	"github.com/Vaibhav2795/duel-prediction-market/internal/matchid"
	"github.com/Vaibhav2795/duel-prediction-market/internal/obslog"
	"github.com/Vaibhav2795/duel-prediction-market/internal/room"
	"github.com/Vaibhav2795/duel-prediction-market/internal/store"
	"github.com/Vaibhav2795/duel-prediction-market/pkg/livedto"
	"go.uber.org/zap"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	// ErrGameNotFound means no rule-engine instance is active for the match.
	ErrGameNotFound = staticErr("game not found")
	// ErrNotYourTurn rejects a move by the color not to move.
	ErrNotYourTurn = staticErr("not your turn")
	// ErrInvalidMove rejects a move the rule engine refuses.
	ErrInvalidMove = staticErr("invalid move")
	// ErrMatchNotFound surfaces a room without a persisted match record.
	ErrMatchNotFound = staticErr("match not found")
)

// MatchStore is the slice of persistence the session service consumes.
type MatchStore interface {
	FindMatchByID(ctx context.Context, id string) (*store.Match, error)
	SaveResult(ctx context.Context, id, winner, finalFEN string, finishedAt time.Time) error
	AppendMove(ctx context.Context, mv store.MoveRecord) error
	CountMoves(ctx context.Context, matchID string) (int, error)
}

// Broadcaster pushes an event to every subscriber of a match channel.
type Broadcaster interface {
	Broadcast(matchID, event string, payload any)
}

// Clocks stops a match's countdown clock; stopping an absent clock is a no-op.
type Clocks interface {
	Stop(matchID string)
}

type liveGame struct {
	mu  sync.Mutex
	eng *engine.Game
}

// Service applies moves for live matches and finalizes results. One
// rule-engine instance exists per joined match; a per-game mutex serializes
// validate-and-apply so a concurrent second move sees the flipped turn.
type Service struct {
	registry *room.Registry
	store    MatchStore
	bc       Broadcaster
	clocks   Clocks

	mu       sync.Mutex
	games    map[string]*liveGame
	finished map[string]struct{}
}

func NewService(registry *room.Registry, st MatchStore, bc Broadcaster) *Service {
	return &Service{
		registry: registry,
		store:    st,
		bc:       bc,
		games:    make(map[string]*liveGame),
		finished: make(map[string]struct{}),
	}
}

// SetClocks wires the lifecycle worker's clock controller; done after
// construction because the worker also depends on this service.
func (s *Service) SetClocks(c Clocks) { s.clocks = c }

// InitializeGame creates a fresh rule-engine instance for the match if one
// does not already exist. Idempotent; called on first join.
func (s *Service) InitializeGame(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[matchID]; !ok {
		s.games[matchID] = &liveGame{eng: engine.New()}
	}
}

// RemoveGame discards the match's rule-engine instance; called when the
// last player disconnects.
func (s *Service) RemoveGame(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, matchID)
	delete(s.finished, matchID)
}

func (s *Service) game(matchID string) *liveGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.games[matchID]
}

// MoveOutcome is the result of a successful MakeMove.
type MoveOutcome struct {
	FEN        string
	SAN        string
	IsGameOver bool
	Winner     string
}

// MakeMove validates and applies one move for playerColor. Validation
// failures leave every piece of state untouched; a missing persisted match
// after a successful application is surfaced as ErrMatchNotFound.
func (s *Service) MakeMove(ctx context.Context, matchID string, mv livedto.Move, playerColor string) (*MoveOutcome, error) {
	lg := s.game(matchID)
	if lg == nil {
		return nil, ErrGameNotFound
	}

	lg.mu.Lock()
	if lg.eng.Turn() != playerColor {
		lg.mu.Unlock()
		return nil, ErrNotYourTurn
	}
	res, err := lg.eng.Move(mv.From, mv.To, mv.Promotion)
	if err != nil {
		lg.mu.Unlock()
		return nil, ErrInvalidMove
	}
	turn := lg.eng.Turn()
	isOver := lg.eng.IsGameOver()
	winner := ""
	if isOver {
		winner = lg.eng.Winner()
	}
	lg.mu.Unlock()

	match, err := s.store.FindMatchByID(ctx, matchID)
	if err == nil && match == nil {
		obslog.L().Error("match_consistency_error",
			zap.String("match_id", matchID),
			zap.String("detail", "live room has no persisted match"),
		)
		return nil, ErrMatchNotFound
	}
	if err != nil {
		obslog.L().Error("match_lookup_error", zap.String("match_id", matchID), zap.Error(err))
		return nil, ErrMatchNotFound
	}

	s.appendMove(ctx, matchID, res, playerColor)

	upd := room.Update{GameState: &res.FEN, CurrentTurn: &turn}
	if isOver {
		fin := room.StatusFinished
		upd.Status = &fin
		upd.Winner = &winner
	}
	s.registry.UpdateRoom(matchID, upd)

	obslog.L().Info("move_made",
		zap.String("match_id", matchID),
		zap.String("color", playerColor),
		zap.String("san", res.SAN),
		zap.Bool("game_over", isOver),
	)

	if isOver {
		reason := "checkmate"
		if winner == "draw" {
			reason = "draw"
		}
		s.finish(ctx, matchID, winner, res.FEN, reason)
	}

	return &MoveOutcome{FEN: res.FEN, SAN: res.SAN, IsGameOver: isOver, Winner: winner}, nil
}

func (s *Service) appendMove(ctx context.Context, matchID string, res *engine.MoveResult, playerColor string) {
	count, err := s.store.CountMoves(ctx, matchID)
	if err != nil {
		obslog.L().Error("move_count_error", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	rec := store.MoveRecord{
		MatchID:  matchID,
		Sequence: count + 1,
		SAN:      res.SAN,
		FEN:      res.FEN,
		PlayedBy: playerColor,
		PlayedAt: time.Now(),
	}
	if err := s.store.AppendMove(ctx, rec); err != nil {
		obslog.L().Error("move_persist_error",
			zap.String("match_id", matchID),
			zap.Int("seq", rec.Sequence),
			zap.Error(err),
		)
	}
}

// FinishByTimeout declares winner after the opposing clock reached zero.
func (s *Service) FinishByTimeout(ctx context.Context, matchID, winner string) {
	fen := s.currentFEN(matchID)
	s.finish(ctx, matchID, winner, fen, "timeout")
}

// Resign ends the match in favor of the opponent of playerColor.
func (s *Service) Resign(ctx context.Context, matchID, playerColor string) {
	winner := engine.White
	if playerColor == engine.White {
		winner = engine.Black
	}
	s.finish(ctx, matchID, winner, s.currentFEN(matchID), "resignation")
}

func (s *Service) currentFEN(matchID string) string {
	if lg := s.game(matchID); lg != nil {
		lg.mu.Lock()
		defer lg.mu.Unlock()
		return lg.eng.FEN()
	}
	if r, ok := s.registry.GetRoom(matchID); ok {
		return r.GameState
	}
	return ""
}

// finish finalizes a match exactly once: room marked finished, clock
// stopped, result persisted, match_finished broadcast. The database write
// is best-effort so a storage outage never blocks gameplay; the in-memory
// room still reflects the result.
func (s *Service) finish(ctx context.Context, matchID, winner, finalFEN, reason string) {
	s.mu.Lock()
	if _, done := s.finished[matchID]; done {
		s.mu.Unlock()
		return
	}
	s.finished[matchID] = struct{}{}
	s.mu.Unlock()

	s.registry.FinishRoom(matchID, winner)
	if s.clocks != nil {
		s.clocks.Stop(matchID)
	}
	if err := s.store.SaveResult(ctx, matchID, winner, finalFEN, time.Now()); err != nil {
		obslog.L().Error("result_persist_error",
			zap.String("match_id", matchID),
			zap.String("winner", winner),
			zap.Error(err),
		)
	}
	s.bc.Broadcast(matchID, livedto.EventMatchFinished, livedto.MatchFinished{
		MatchID:  matchID,
		MarketID: matchid.Numeric(matchID),
		Winner:   winner,
		FinalFEN: finalFEN,
		Reason:   reason,
	})
	obslog.L().Info("match_finished",
		zap.String("match_id", matchID),
		zap.String("winner", winner),
		zap.String("reason", reason),
	)
}
