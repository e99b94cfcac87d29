package store

import "time"

// MatchStatus is the persisted match lifecycle state.
type MatchStatus string

const (
	StatusScheduled MatchStatus = "SCHEDULED"
	StatusLive      MatchStatus = "LIVE"
	StatusFinished  MatchStatus = "FINISHED"
	StatusCancelled MatchStatus = "CANCELLED"
)

// Match is the persisted match record. The coordinator reads and updates
// it but does not own its schema; the CRUD API creates these rows.
type Match struct {
	ID             string
	Player1Address string
	Player1Name    string
	Player2Address string
	Player2Name    string
	ScheduledAt    time.Time
	StakeAmount    float64
	Status         MatchStatus

	Winner     string
	FinalFEN   string
	FinishedAt *time.Time

	JoinWindowEndsAt *time.Time
	GameStartedAt    *time.Time

	WhiteTimeRemaining *int64
	BlackTimeRemaining *int64
}

// MoveRecord is one applied move, append-only.
type MoveRecord struct {
	MatchID  string
	Sequence int
	SAN      string
	FEN      string
	PlayedBy string
	PlayedAt time.Time
}
