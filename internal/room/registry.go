package room

import (
	"strings"
	"sync"

	"github.com/Vaibhav2795/duel-prediction-market/internal/obslog"
	"go.uber.org/zap"
)

// Mirror receives room snapshots after every mutation so processes outside
// the coordinator can read live state. Implementations must be best-effort
// and non-blocking from the caller's point of view.
type Mirror interface {
	Publish(r Room)
	Remove(matchID string)
}

// Registry owns all live room state. Every mutation goes through a registry
// method so the socket index and the room map never disagree; the mutex
// serializes mutations across gateway, session, and worker goroutines.
type Registry struct {
	mu            sync.RWMutex
	rooms         map[string]*Room
	socketToMatch map[string]string

	mirror Mirror
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:         make(map[string]*Room),
		socketToMatch: make(map[string]string),
	}
}

// SetMirror attaches an optional snapshot mirror.
func (g *Registry) SetMirror(m Mirror) { g.mirror = m }

func equalAddr(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// JoinRoom adds a player to a room, creating the room lazily. A join by an
// address already seated is a reconnect: the seat keeps its color and only
// the socket id is re-pointed. A third distinct address fails with
// ErrRoomFull. Returns a snapshot of the room after the join.
func (g *Registry) JoinRoom(matchID string, stakeAmount float64, playerAddress, connectionID string) (Room, error) {
	g.mu.Lock()
	r, ok := g.rooms[matchID]
	if !ok {
		r = &Room{
			ID:          matchID,
			StakeAmount: stakeAmount,
			GameState:   startFEN,
			Status:      StatusWaiting,
			CurrentTurn: "white",
		}
		g.rooms[matchID] = r
	}

	if seat := r.PlayerByAddress(playerAddress); seat != nil {
		// reconnect: re-point the socket and refresh the index
		delete(g.socketToMatch, seat.SocketID)
		seat.SocketID = connectionID
		g.socketToMatch[connectionID] = matchID
		snap := cloneRoom(r)
		g.mu.Unlock()
		obslog.L().Info("room_rejoin",
			zap.String("match_id", matchID),
			zap.String("address", playerAddress),
			zap.String("socket_id", connectionID),
		)
		g.publish(snap)
		return snap, nil
	}

	if len(r.Players) >= 2 {
		g.mu.Unlock()
		return Room{}, ErrRoomFull
	}

	// a seat freed by a disconnect keeps its color for whoever fills it,
	// so the remaining seat's color decides
	color := "white"
	if len(r.Players) == 1 && r.Players[0].Color == "white" {
		color = "black"
	}
	r.Players = append(r.Players, Player{
		Address:  strings.TrimSpace(playerAddress),
		SocketID: connectionID,
		Color:    color,
	})
	g.socketToMatch[connectionID] = matchID
	if len(r.Players) == 2 {
		r.Status = StatusActive
	}
	snap := cloneRoom(r)
	g.mu.Unlock()

	obslog.L().Info("room_join",
		zap.String("match_id", matchID),
		zap.String("address", playerAddress),
		zap.String("color", color),
		zap.Int("players", len(snap.Players)),
	)
	g.publish(snap)
	return snap, nil
}

// GetRoom returns a snapshot of the room, if present.
func (g *Registry) GetRoom(matchID string) (Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[matchID]
	if !ok {
		return Room{}, false
	}
	return cloneRoom(r), true
}

// UpdateRoom shallow-merges the non-nil fields of u into the room. Returns
// the updated snapshot and whether the room existed.
func (g *Registry) UpdateRoom(matchID string, u Update) (Room, bool) {
	g.mu.Lock()
	r, ok := g.rooms[matchID]
	if !ok {
		g.mu.Unlock()
		return Room{}, false
	}
	if u.GameState != nil {
		r.GameState = *u.GameState
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.CurrentTurn != nil {
		r.CurrentTurn = *u.CurrentTurn
	}
	if u.Winner != nil {
		r.Winner = *u.Winner
	}
	if u.WhiteTimeRemaining != nil {
		v := *u.WhiteTimeRemaining
		r.WhiteTimeRemaining = &v
	}
	if u.BlackTimeRemaining != nil {
		v := *u.BlackTimeRemaining
		r.BlackTimeRemaining = &v
	}
	if u.JoinWindowEndsAt != nil {
		v := *u.JoinWindowEndsAt
		r.JoinWindowEndsAt = &v
	}
	if u.GameStartedAt != nil {
		v := *u.GameStartedAt
		r.GameStartedAt = &v
	}
	snap := cloneRoom(r)
	g.mu.Unlock()
	g.publish(snap)
	return snap, true
}

// RemovePlayerBySocket drops the player owning connectionID, using the
// socket index for O(1) lookup. When the last player leaves the room is
// deleted; otherwise the room falls back to waiting.
func (g *Registry) RemovePlayerBySocket(connectionID string) (string, bool) {
	g.mu.Lock()
	matchID, ok := g.socketToMatch[connectionID]
	if !ok {
		g.mu.Unlock()
		return "", false
	}
	delete(g.socketToMatch, connectionID)

	r, ok := g.rooms[matchID]
	if !ok {
		g.mu.Unlock()
		return matchID, true
	}
	for i := range r.Players {
		if r.Players[i].SocketID == connectionID {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			break
		}
	}
	if len(r.Players) == 0 {
		delete(g.rooms, matchID)
		g.mu.Unlock()
		obslog.L().Info("room_remove", zap.String("match_id", matchID))
		if g.mirror != nil {
			g.mirror.Remove(matchID)
		}
		return matchID, true
	}
	r.Status = StatusWaiting
	snap := cloneRoom(r)
	g.mu.Unlock()
	obslog.L().Info("room_player_left",
		zap.String("match_id", matchID),
		zap.Int("players", len(snap.Players)),
	)
	g.publish(snap)
	return matchID, true
}

// FinishRoom marks the room finished and records the winner. No-op when the
// room is missing or already finished.
func (g *Registry) FinishRoom(matchID, winner string) {
	g.mu.Lock()
	r, ok := g.rooms[matchID]
	if !ok || r.Status == StatusFinished {
		g.mu.Unlock()
		return
	}
	r.Status = StatusFinished
	r.Winner = winner
	snap := cloneRoom(r)
	g.mu.Unlock()
	obslog.L().Info("room_finish",
		zap.String("match_id", matchID),
		zap.String("winner", winner),
	)
	g.publish(snap)
}

// AllRoomIDs lists live room ids for worker iteration.
func (g *Registry) AllRoomIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	return ids
}

// PlayerCount reports the number of seated players, 0 when the room is absent.
func (g *Registry) PlayerCount(matchID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if r, ok := g.rooms[matchID]; ok {
		return len(r.Players)
	}
	return 0
}

func (g *Registry) publish(snap Room) {
	if g.mirror != nil {
		g.mirror.Publish(snap)
	}
}

func cloneRoom(r *Room) Room {
	snap := *r
	snap.Players = append([]Player(nil), r.Players...)
	if r.WhiteTimeRemaining != nil {
		v := *r.WhiteTimeRemaining
		snap.WhiteTimeRemaining = &v
	}
	if r.BlackTimeRemaining != nil {
		v := *r.BlackTimeRemaining
		snap.BlackTimeRemaining = &v
	}
	if r.JoinWindowEndsAt != nil {
		v := *r.JoinWindowEndsAt
		snap.JoinWindowEndsAt = &v
	}
	if r.GameStartedAt != nil {
		v := *r.GameStartedAt
		snap.GameStartedAt = &v
	}
	return snap
}

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
