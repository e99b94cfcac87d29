package livedto

// Event names on the realtime surface. Inbound events are sent by clients,
// outbound events are emitted by the gateway; the channel is the match id.
const (
	EventJoinMatch     = "join_match"
	EventMakeMove      = "make_move"
	EventJoinSpectator = "join_spectator"
	EventResign        = "resign"

	EventMatchJoined     = "match_joined"
	EventMatchUpdated    = "match_updated"
	EventMoveMade        = "move_made"
	EventTimerUpdate     = "timer_update"
	EventMatchFinished   = "match_finished"
	EventSpectatorJoined = "spectator_joined"
	EventPlayerLeft      = "player_left"
	EventJoinError       = "join_error"
	EventMoveError       = "move_error"
)

// Envelope is the wire frame for every realtime message, both directions.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}
