// Package gateway is the realtime connection layer: it accepts websocket
// connections, routes join/move/spectate/resign events into the room
// registry and session service, and broadcasts authoritative state to every
// subscriber of a match channel.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Vaibhav2795/duel-prediction-market/internal/obslog"
	"github.com/Vaibhav2795/duel-prediction-market/internal/room"
	"github.com/Vaibhav2795/duel-prediction-market/internal/session"
	"github.com/Vaibhav2795/duel-prediction-market/internal/store"
	"github.com/Vaibhav2795/duel-prediction-market/pkg/livedto"
	"go.uber.org/zap"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	// ErrJoinWindowExpired rejects joins after the live-match join deadline.
	ErrJoinWindowExpired = staticErr("join window expired")
	// ErrUnauthorizedPlayer rejects wallets not assigned to the match.
	ErrUnauthorizedPlayer = staticErr("not a player in this match")
	// ErrMatchNotJoinable rejects joins for matches that are not live.
	ErrMatchNotJoinable = staticErr("match is not live")
)

const eventTimeout = 10 * time.Second

// MatchStore is the slice of persistence the gateway consumes.
type MatchStore interface {
	FindMatchByID(ctx context.Context, id string) (*store.Match, error)
	SetGameStarted(ctx context.Context, id string, startedAt time.Time, whiteMs, blackMs int64) error
}

// Session is the move-lifecycle surface the gateway routes into.
type Session interface {
	InitializeGame(matchID string)
	RemoveGame(matchID string)
	MakeMove(ctx context.Context, matchID string, mv livedto.Move, playerColor string) (*session.MoveOutcome, error)
	Resign(ctx context.Context, matchID, playerColor string)
}

// ClockStarter starts (and implicitly replaces) a match's countdown clock.
type ClockStarter interface {
	StartClock(matchID string, whiteMs, blackMs int64)
	Stop(matchID string)
}

// Gateway owns the connected clients and the per-match broadcast channels.
// It is constructed explicitly and injected into its collaborators; there
// is no process-global broadcaster.
type Gateway struct {
	registry *room.Registry
	session  Session
	store    MatchStore
	clocks   ClockStarter

	gameClock time.Duration

	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[string]map[string]*Client
}

func New(registry *room.Registry, st MatchStore, gameClock time.Duration) *Gateway {
	return &Gateway{
		registry:  registry,
		store:     st,
		gameClock: gameClock,
		clients:   make(map[string]*Client),
		channels:  make(map[string]map[string]*Client),
	}
}

// SetSession wires the session service after construction; the session
// service broadcasts through this gateway, so the two reference each other.
func (g *Gateway) SetSession(s Session) { g.session = s }

// SetClocks wires the lifecycle worker's clock controller.
func (g *Gateway) SetClocks(c ClockStarter) { g.clocks = c }

func (g *Gateway) register(c *Client) {
	g.mu.Lock()
	g.clients[c.ID] = c
	g.mu.Unlock()
}

func (g *Gateway) unregister(c *Client) {
	g.mu.Lock()
	if _, ok := g.clients[c.ID]; ok {
		delete(g.clients, c.ID)
		close(c.send)
	}
	for matchID, subs := range g.channels {
		if _, ok := subs[c.ID]; ok {
			delete(subs, c.ID)
			if len(subs) == 0 {
				delete(g.channels, matchID)
			}
		}
	}
	g.mu.Unlock()
}

func (g *Gateway) subscribe(c *Client, matchID string) {
	g.mu.Lock()
	subs, ok := g.channels[matchID]
	if !ok {
		subs = make(map[string]*Client)
		g.channels[matchID] = subs
	}
	subs[c.ID] = c
	g.mu.Unlock()
}

// Broadcast sends an event to every subscriber of the match channel. Slow
// clients have the frame dropped rather than blocking the caller.
func (g *Gateway) Broadcast(matchID, event string, payload any) {
	raw, err := json.Marshal(livedto.Envelope{Event: event, Payload: payload})
	if err != nil {
		obslog.L().Error("broadcast_marshal_error", zap.String("event", event), zap.Error(err))
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.channels[matchID] {
		select {
		case c.send <- raw:
		default:
			obslog.L().Warn("broadcast_drop",
				zap.String("match_id", matchID),
				zap.String("socket_id", c.ID),
				zap.String("event", event),
			)
		}
	}
}

func (g *Gateway) sendTo(c *Client, event string, payload any) {
	raw, err := json.Marshal(livedto.Envelope{Event: event, Payload: payload})
	if err != nil {
		obslog.L().Error("send_marshal_error", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case c.send <- raw:
	default:
		obslog.L().Warn("send_drop", zap.String("socket_id", c.ID), zap.String("event", event))
	}
}

func (g *Gateway) sendError(c *Client, event, message string) {
	g.sendTo(c, event, livedto.ErrorPayload{Message: message})
}

func roomView(r room.Room) livedto.RoomView {
	players := make([]livedto.PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, livedto.PlayerView{Address: p.Address, Color: p.Color})
	}
	return livedto.RoomView{
		MatchID:            r.ID,
		StakeAmount:        r.StakeAmount,
		Players:            players,
		GameState:          r.GameState,
		Status:             string(r.Status),
		CurrentTurn:        r.CurrentTurn,
		Winner:             r.Winner,
		WhiteTimeRemaining: r.WhiteTimeRemaining,
		BlackTimeRemaining: r.BlackTimeRemaining,
	}
}
