package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Vaibhav2795/duel-prediction-market/internal/matchid"
	"github.com/Vaibhav2795/duel-prediction-market/internal/room"
	"github.com/Vaibhav2795/duel-prediction-market/internal/store"
	"github.com/Vaibhav2795/duel-prediction-market/pkg/livedto"
)

type savedResult struct {
	winner   string
	finalFEN string
}

type fakeStore struct {
	mu      sync.Mutex
	matches map[string]*store.Match
	moves   []store.MoveRecord
	results map[string]savedResult
}

func newFakeStore(ids ...string) *fakeStore {
	fs := &fakeStore{matches: make(map[string]*store.Match), results: make(map[string]savedResult)}
	for _, id := range ids {
		fs.matches[id] = &store.Match{ID: id, Status: store.StatusLive}
	}
	return fs
}

func (f *fakeStore) FindMatchByID(_ context.Context, id string) (*store.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches[id], nil
}

func (f *fakeStore) SaveResult(_ context.Context, id, winner, finalFEN string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = savedResult{winner: winner, finalFEN: finalFEN}
	return nil
}

func (f *fakeStore) AppendMove(_ context.Context, mv store.MoveRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, mv)
	return nil
}

func (f *fakeStore) CountMoves(_ context.Context, matchID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, mv := range f.moves {
		if mv.MatchID == matchID {
			n++
		}
	}
	return n, nil
}

type bcEvent struct {
	matchID string
	event   string
	payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []bcEvent
}

func (f *fakeBroadcaster) Broadcast(matchID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, bcEvent{matchID: matchID, event: event, payload: payload})
}

func (f *fakeBroadcaster) byEvent(event string) []bcEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bcEvent
	for _, e := range f.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeClocks struct {
	mu      sync.Mutex
	stopped []string
}

func (f *fakeClocks) Stop(matchID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, matchID)
}

func newTestService(t *testing.T, matchIDs ...string) (*Service, *room.Registry, *fakeStore, *fakeBroadcaster, *fakeClocks) {
	t.Helper()
	registry := room.NewRegistry()
	fs := newFakeStore(matchIDs...)
	bc := &fakeBroadcaster{}
	clocks := &fakeClocks{}
	svc := NewService(registry, fs, bc)
	svc.SetClocks(clocks)
	return svc, registry, fs, bc, clocks
}

func seatPlayers(t *testing.T, registry *room.Registry, matchID string) {
	t.Helper()
	if _, err := registry.JoinRoom(matchID, 0, "0xWHITE", "s1"); err != nil {
		t.Fatalf("JoinRoom white: %v", err)
	}
	if _, err := registry.JoinRoom(matchID, 0, "0xBLACK", "s2"); err != nil {
		t.Fatalf("JoinRoom black: %v", err)
	}
}

func TestMakeMoveGameNotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService(t, "m1")
	_, err := svc.MakeMove(context.Background(), "m1", livedto.Move{From: "e2", To: "e4"}, "white")
	if err != ErrGameNotFound {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestTurnEnforcement(t *testing.T) {
	svc, registry, fs, _, _ := newTestService(t, "m1")
	seatPlayers(t, registry, "m1")
	svc.InitializeGame("m1")
	ctx := context.Background()

	out, err := svc.MakeMove(ctx, "m1", livedto.Move{From: "e2", To: "e4"}, "white")
	if err != nil {
		t.Fatalf("e2e4: %v", err)
	}
	if out.IsGameOver {
		t.Fatalf("game should not be over")
	}

	// white tries to move again
	if _, err := svc.MakeMove(ctx, "m1", livedto.Move{From: "d7", To: "d5"}, "white"); err != ErrNotYourTurn {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	r, _ := registry.GetRoom("m1")
	if r.GameState != out.FEN {
		t.Fatalf("state mutated by rejected move")
	}

	// black plays the same move legally
	out2, err := svc.MakeMove(ctx, "m1", livedto.Move{From: "d7", To: "d5"}, "black")
	if err != nil {
		t.Fatalf("d7d5: %v", err)
	}
	r, _ = registry.GetRoom("m1")
	if r.CurrentTurn != "white" || r.GameState != out2.FEN {
		t.Fatalf("room not updated after black's move: %+v", r)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.moves) != 2 || fs.moves[0].Sequence != 1 || fs.moves[1].Sequence != 2 {
		t.Fatalf("unexpected move log: %+v", fs.moves)
	}
	if fs.moves[1].PlayedBy != "black" {
		t.Fatalf("playedBy not recorded: %+v", fs.moves[1])
	}
}

func TestInvalidMoveRejectedWithoutSideEffects(t *testing.T) {
	svc, registry, fs, _, _ := newTestService(t, "m1")
	seatPlayers(t, registry, "m1")
	svc.InitializeGame("m1")

	before, _ := registry.GetRoom("m1")
	if _, err := svc.MakeMove(context.Background(), "m1", livedto.Move{From: "e2", To: "e5"}, "white"); err != ErrInvalidMove {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
	after, _ := registry.GetRoom("m1")
	if after.GameState != before.GameState || after.CurrentTurn != before.CurrentTurn {
		t.Fatalf("state mutated by invalid move")
	}
	if n, _ := fs.CountMoves(context.Background(), "m1"); n != 0 {
		t.Fatalf("invalid move persisted")
	}
}

func TestMissingPersistedMatchSurfaces(t *testing.T) {
	svc, registry, _, _, _ := newTestService(t) // store has no matches
	seatPlayers(t, registry, "m1")
	svc.InitializeGame("m1")

	_, err := svc.MakeMove(context.Background(), "m1", livedto.Move{From: "e2", To: "e4"}, "white")
	if err != ErrMatchNotFound {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestCheckmateFinalizesMatch(t *testing.T) {
	svc, registry, fs, bc, clocks := newTestService(t, "m1")
	seatPlayers(t, registry, "m1")
	svc.InitializeGame("m1")
	ctx := context.Background()

	moves := []struct {
		mv    livedto.Move
		color string
	}{
		{livedto.Move{From: "f2", To: "f3"}, "white"},
		{livedto.Move{From: "e7", To: "e5"}, "black"},
		{livedto.Move{From: "g2", To: "g4"}, "white"},
		{livedto.Move{From: "d8", To: "h4"}, "black"},
	}
	var last *MoveOutcome
	for _, m := range moves {
		out, err := svc.MakeMove(ctx, "m1", m.mv, m.color)
		if err != nil {
			t.Fatalf("move %+v: %v", m.mv, err)
		}
		last = out
	}
	if !last.IsGameOver || last.Winner != "black" {
		t.Fatalf("expected black checkmate, got %+v", last)
	}

	r, _ := registry.GetRoom("m1")
	if r.Status != room.StatusFinished || r.Winner != "black" {
		t.Fatalf("room not finished: %+v", r)
	}

	fs.mu.Lock()
	res, ok := fs.results["m1"]
	fs.mu.Unlock()
	if !ok || res.winner != "black" || res.finalFEN != last.FEN {
		t.Fatalf("result not persisted correctly: %+v", res)
	}

	finished := bc.byEvent(livedto.EventMatchFinished)
	if len(finished) != 1 {
		t.Fatalf("expected exactly one match_finished, got %d", len(finished))
	}
	payload := finished[0].payload.(livedto.MatchFinished)
	if payload.FinalFEN != last.FEN || payload.Winner != "black" || payload.Reason != "checkmate" {
		t.Fatalf("unexpected match_finished payload: %+v", payload)
	}
	if payload.MarketID != matchid.Numeric("m1") {
		t.Fatalf("market id not derived from match id: %d", payload.MarketID)
	}

	clocks.mu.Lock()
	defer clocks.mu.Unlock()
	if len(clocks.stopped) != 1 || clocks.stopped[0] != "m1" {
		t.Fatalf("clock not stopped: %+v", clocks.stopped)
	}
}

func TestFinalizationIdempotent(t *testing.T) {
	svc, registry, _, bc, _ := newTestService(t, "m1")
	seatPlayers(t, registry, "m1")
	svc.InitializeGame("m1")
	ctx := context.Background()

	svc.FinishByTimeout(ctx, "m1", "black")
	svc.FinishByTimeout(ctx, "m1", "black")
	registry.FinishRoom("m1", "black") // also a no-op

	if got := bc.byEvent(livedto.EventMatchFinished); len(got) != 1 {
		t.Fatalf("expected one match_finished broadcast, got %d", len(got))
	}
	payload := bc.byEvent(livedto.EventMatchFinished)[0].payload.(livedto.MatchFinished)
	if payload.Reason != "timeout" || payload.Winner != "black" {
		t.Fatalf("unexpected timeout payload: %+v", payload)
	}
}

func TestResignFavorsOpponent(t *testing.T) {
	svc, registry, fs, bc, _ := newTestService(t, "m1")
	seatPlayers(t, registry, "m1")
	svc.InitializeGame("m1")

	svc.Resign(context.Background(), "m1", "white")

	r, _ := registry.GetRoom("m1")
	if r.Status != room.StatusFinished || r.Winner != "black" {
		t.Fatalf("resign did not finish room for opponent: %+v", r)
	}
	fs.mu.Lock()
	res := fs.results["m1"]
	fs.mu.Unlock()
	if res.winner != "black" {
		t.Fatalf("resign result not persisted: %+v", res)
	}
	payload := bc.byEvent(livedto.EventMatchFinished)[0].payload.(livedto.MatchFinished)
	if payload.Reason != "resignation" {
		t.Fatalf("unexpected reason: %+v", payload)
	}
}

func TestRemoveGameDiscardsEngine(t *testing.T) {
	svc, registry, _, _, _ := newTestService(t, "m1")
	seatPlayers(t, registry, "m1")
	svc.InitializeGame("m1")
	svc.RemoveGame("m1")

	if _, err := svc.MakeMove(context.Background(), "m1", livedto.Move{From: "e2", To: "e4"}, "white"); err != ErrGameNotFound {
		t.Fatalf("expected ErrGameNotFound after RemoveGame, got %v", err)
	}
}
