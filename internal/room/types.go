package room

// Status represents a live room's lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Player is one seat in a live room. Address is identity; SocketID is the
// current connection and changes on reconnect. Color never changes once
// assigned.
type Player struct {
	Address  string `json:"address"`
	SocketID string `json:"socketId"`
	Color    string `json:"color"`
}

// Room is the authoritative in-memory state of one live match.
type Room struct {
	ID          string   `json:"id"`
	StakeAmount float64  `json:"stakeAmount"`
	Players     []Player `json:"players"`
	GameState   string   `json:"gameState"`
	Status      Status   `json:"status"`
	CurrentTurn string   `json:"currentTurn"`
	Winner      string   `json:"winner,omitempty"`

	WhiteTimeRemaining *int64 `json:"whiteTimeRemaining,omitempty"`
	BlackTimeRemaining *int64 `json:"blackTimeRemaining,omitempty"`

	JoinWindowEndsAt *int64 `json:"joinWindowEndsAt,omitempty"`
	GameStartedAt    *int64 `json:"gameStartedAt,omitempty"`
}

// PlayerByAddress returns the seat for a wallet address, case-insensitive.
func (r *Room) PlayerByAddress(address string) *Player {
	for i := range r.Players {
		if equalAddr(r.Players[i].Address, address) {
			return &r.Players[i]
		}
	}
	return nil
}

// Update is a partial room mutation applied by UpdateRoom. Nil fields are
// left untouched.
type Update struct {
	GameState          *string
	Status             *Status
	CurrentTurn        *string
	Winner             *string
	WhiteTimeRemaining *int64
	BlackTimeRemaining *int64
	JoinWindowEndsAt   *int64
	GameStartedAt      *int64
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	// ErrRoomFull is returned when a third distinct wallet tries to join.
	ErrRoomFull = staticErr("match already full")
)
