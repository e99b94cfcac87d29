package livedto

// PlayerView is the public slice of a room player.
type PlayerView struct {
	Address string `json:"address"`
	Color   string `json:"color"`
}

// RoomView is the room snapshot broadcast on join/update events.
type RoomView struct {
	MatchID            string       `json:"matchId"`
	StakeAmount        float64      `json:"stakeAmount"`
	Players            []PlayerView `json:"players"`
	GameState          string       `json:"gameState"`
	Status             string       `json:"status"`
	CurrentTurn        string       `json:"currentTurn"`
	Winner             string       `json:"winner,omitempty"`
	WhiteTimeRemaining *int64       `json:"whiteTimeRemaining,omitempty"`
	BlackTimeRemaining *int64       `json:"blackTimeRemaining,omitempty"`
}

// JoinMatchRequest is the inbound join_match payload.
type JoinMatchRequest struct {
	MatchID       string `json:"matchId"`
	PlayerAddress string `json:"playerAddress"`
}

// Move is a square-to-square move request.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// MakeMoveRequest is the inbound make_move payload.
type MakeMoveRequest struct {
	MatchID       string `json:"matchId"`
	Move          Move   `json:"move"`
	PlayerAddress string `json:"playerAddress"`
}

// JoinSpectatorRequest is the inbound join_spectator payload.
type JoinSpectatorRequest struct {
	MatchID string `json:"matchId"`
}

// ResignRequest is the inbound resign payload.
type ResignRequest struct {
	MatchID       string `json:"matchId"`
	PlayerAddress string `json:"playerAddress"`
}

// MoveMade is broadcast to the match channel after a successful move.
type MoveMade struct {
	Move       Move     `json:"move"`
	GameState  string   `json:"gameState"`
	Room       RoomView `json:"room"`
	IsGameOver bool     `json:"isGameOver"`
	Winner     string   `json:"winner,omitempty"`
}

// TimerUpdate carries the per-color countdown state in milliseconds.
type TimerUpdate struct {
	WhiteTimeRemaining int64 `json:"whiteTimeRemaining"`
	BlackTimeRemaining int64 `json:"blackTimeRemaining"`
}

// MatchFinished announces a terminal result to the match channel. MarketID
// is the numeric handle settlement consumers use to address the match.
type MatchFinished struct {
	MatchID  string `json:"matchId"`
	MarketID uint64 `json:"marketId"`
	Winner   string `json:"winner"`
	FinalFEN string `json:"finalFen"`
	Reason   string `json:"reason"`
}

// SpectatorJoined is the snapshot sent to a newly subscribed spectator.
type SpectatorJoined struct {
	MatchID     string       `json:"matchId"`
	GameState   string       `json:"gameState"`
	Status      string       `json:"status"`
	CurrentTurn string       `json:"currentTurn"`
	Players     []PlayerView `json:"players"`
}

// ErrorPayload is the requester-only join_error/move_error body.
type ErrorPayload struct {
	Message string `json:"message"`
}
