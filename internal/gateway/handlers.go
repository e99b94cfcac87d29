package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Vaibhav2795/duel-prediction-market/internal/obslog"
	"github.com/Vaibhav2795/duel-prediction-market/internal/room"
	"github.com/Vaibhav2795/duel-prediction-market/internal/store"
	"github.com/Vaibhav2795/duel-prediction-market/pkg/livedto"
	"go.uber.org/zap"
)

type inbound struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (g *Gateway) handleMessage(c *Client, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		obslog.L().Warn("inbound_parse_error", zap.String("socket_id", c.ID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch msg.Event {
	case livedto.EventJoinMatch:
		var req livedto.JoinMatchRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			g.sendError(c, livedto.EventJoinError, "malformed join_match payload")
			return
		}
		g.handleJoinMatch(ctx, c, req)
	case livedto.EventMakeMove:
		var req livedto.MakeMoveRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			g.sendError(c, livedto.EventMoveError, "malformed make_move payload")
			return
		}
		g.handleMakeMove(ctx, c, req)
	case livedto.EventJoinSpectator:
		var req livedto.JoinSpectatorRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			g.sendError(c, livedto.EventJoinError, "malformed join_spectator payload")
			return
		}
		g.handleJoinSpectator(c, req)
	case livedto.EventResign:
		var req livedto.ResignRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			g.sendError(c, livedto.EventMoveError, "malformed resign payload")
			return
		}
		g.handleResign(ctx, c, req)
	default:
		obslog.L().Warn("inbound_unknown_event",
			zap.String("socket_id", c.ID),
			zap.String("event", msg.Event),
		)
	}
}

// handleJoinMatch validates the persisted match, seats the wallet in the
// live room, subscribes the connection, and starts the game clock once both
// players are present. Any validation failure is reported to the requester
// only, with no side effects.
func (g *Gateway) handleJoinMatch(ctx context.Context, c *Client, req livedto.JoinMatchRequest) {
	match, err := g.store.FindMatchByID(ctx, req.MatchID)
	if err != nil {
		obslog.L().Error("join_lookup_error", zap.String("match_id", req.MatchID), zap.Error(err))
		g.sendError(c, livedto.EventJoinError, "match lookup failed")
		return
	}
	if match == nil {
		g.sendError(c, livedto.EventJoinError, "match not found")
		return
	}
	if match.Player1Address == "" || match.Player2Address == "" {
		g.sendError(c, livedto.EventJoinError, "match players not configured")
		return
	}
	if match.Status != store.StatusLive {
		g.sendError(c, livedto.EventJoinError, ErrMatchNotJoinable.Error())
		return
	}
	if match.JoinWindowEndsAt != nil && time.Now().After(*match.JoinWindowEndsAt) && match.GameStartedAt == nil {
		g.sendError(c, livedto.EventJoinError, ErrJoinWindowExpired.Error())
		return
	}
	if !strings.EqualFold(req.PlayerAddress, match.Player1Address) &&
		!strings.EqualFold(req.PlayerAddress, match.Player2Address) {
		g.sendError(c, livedto.EventJoinError, ErrUnauthorizedPlayer.Error())
		return
	}

	snap, err := g.registry.JoinRoom(req.MatchID, match.StakeAmount, req.PlayerAddress, c.ID)
	if err != nil {
		g.sendError(c, livedto.EventJoinError, err.Error())
		return
	}
	g.subscribe(c, req.MatchID)
	g.session.InitializeGame(req.MatchID)

	if len(snap.Players) == 2 && match.GameStartedAt == nil {
		snap = g.startGameClock(ctx, req.MatchID)
	}

	g.sendTo(c, livedto.EventMatchJoined, roomView(snap))
	g.Broadcast(req.MatchID, livedto.EventMatchUpdated, roomView(snap))
}

// startGameClock stamps the game start and full time budgets, then starts
// the per-match clock. Returns the freshest room snapshot.
func (g *Gateway) startGameClock(ctx context.Context, matchID string) room.Room {
	now := time.Now()
	budget := g.gameClock.Milliseconds()
	if err := g.store.SetGameStarted(ctx, matchID, now, budget, budget); err != nil {
		obslog.L().Error("game_start_persist_error", zap.String("match_id", matchID), zap.Error(err))
	}
	startedAt := now.UnixMilli()
	snap, _ := g.registry.UpdateRoom(matchID, room.Update{GameStartedAt: &startedAt})
	if g.clocks != nil {
		g.clocks.StartClock(matchID, budget, budget)
	}
	if fresh, ok := g.registry.GetRoom(matchID); ok {
		return fresh
	}
	return snap
}

func (g *Gateway) handleMakeMove(ctx context.Context, c *Client, req livedto.MakeMoveRequest) {
	snap, ok := g.registry.GetRoom(req.MatchID)
	if !ok {
		g.sendError(c, livedto.EventMoveError, "room not found")
		return
	}
	seat := snap.PlayerByAddress(req.PlayerAddress)
	if seat == nil {
		g.sendError(c, livedto.EventMoveError, ErrUnauthorizedPlayer.Error())
		return
	}

	out, err := g.session.MakeMove(ctx, req.MatchID, req.Move, seat.Color)
	if err != nil {
		g.sendError(c, livedto.EventMoveError, err.Error())
		return
	}

	updated, _ := g.registry.GetRoom(req.MatchID)
	g.Broadcast(req.MatchID, livedto.EventMoveMade, livedto.MoveMade{
		Move:       req.Move,
		GameState:  out.FEN,
		Room:       roomView(updated),
		IsGameOver: out.IsGameOver,
		Winner:     out.Winner,
	})
}

func (g *Gateway) handleJoinSpectator(c *Client, req livedto.JoinSpectatorRequest) {
	snap, ok := g.registry.GetRoom(req.MatchID)
	if !ok {
		g.sendError(c, livedto.EventJoinError, "match is not live")
		return
	}
	g.subscribe(c, req.MatchID)
	players := make([]livedto.PlayerView, 0, len(snap.Players))
	for _, p := range snap.Players {
		players = append(players, livedto.PlayerView{Address: p.Address, Color: p.Color})
	}
	g.sendTo(c, livedto.EventSpectatorJoined, livedto.SpectatorJoined{
		MatchID:     req.MatchID,
		GameState:   snap.GameState,
		Status:      string(snap.Status),
		CurrentTurn: snap.CurrentTurn,
		Players:     players,
	})
}

func (g *Gateway) handleResign(ctx context.Context, c *Client, req livedto.ResignRequest) {
	snap, ok := g.registry.GetRoom(req.MatchID)
	if !ok {
		g.sendError(c, livedto.EventMoveError, "room not found")
		return
	}
	seat := snap.PlayerByAddress(req.PlayerAddress)
	if seat == nil {
		g.sendError(c, livedto.EventMoveError, ErrUnauthorizedPlayer.Error())
		return
	}
	g.session.Resign(ctx, req.MatchID, seat.Color)
}

// handleDisconnect removes the connection's player via the registry's O(1)
// socket index. When the room is gone the rule-engine instance and clock
// are discarded; remaining channel members learn via player_left.
func (g *Gateway) handleDisconnect(c *Client) {
	matchID, owned := g.registry.RemovePlayerBySocket(c.ID)
	g.unregister(c)
	if !owned {
		return
	}
	if _, stillLive := g.registry.GetRoom(matchID); !stillLive {
		g.session.RemoveGame(matchID)
		if g.clocks != nil {
			g.clocks.Stop(matchID)
		}
	}
	g.Broadcast(matchID, livedto.EventPlayerLeft, nil)
	obslog.L().Info("socket_disconnect",
		zap.String("socket_id", c.ID),
		zap.String("match_id", matchID),
	)
}
