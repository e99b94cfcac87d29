// Package lifecycle runs the background scheduling for live matches: the
// status sweep that promotes and cancels persisted matches, and the
// per-match countdown clocks.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/Vaibhav2795/duel-prediction-market/internal/obslog"
	"github.com/Vaibhav2795/duel-prediction-market/internal/room"
	"github.com/Vaibhav2795/duel-prediction-market/internal/store"
	"github.com/Vaibhav2795/duel-prediction-market/pkg/livedto"
	"go.uber.org/zap"
)

// MatchStore is the slice of persistence the worker consumes.
type MatchStore interface {
	ListScheduledDue(ctx context.Context, now time.Time) ([]*store.Match, error)
	ListJoinWindowExpired(ctx context.Context, now time.Time) ([]*store.Match, error)
	MarkLive(ctx context.Context, id string, joinWindowEndsAt time.Time) error
	Cancel(ctx context.Context, id string) error
	UpdateTimers(ctx context.Context, id string, whiteMs, blackMs int64) error
}

// Finisher finalizes a match whose clock expired.
type Finisher interface {
	FinishByTimeout(ctx context.Context, matchID, winner string)
}

// Broadcaster pushes an event to every subscriber of a match channel.
type Broadcaster interface {
	Broadcast(matchID, event string, payload any)
}

// Options tunes the worker intervals.
type Options struct {
	JoinWindow    time.Duration
	SweepInterval time.Duration
	ClockTick     time.Duration
}

type clock struct {
	stop chan struct{}
	once sync.Once
}

func (c *clock) halt() { c.once.Do(func() { close(c.stop) }) }

// Worker owns the sweep loop and one goroutine per running match clock.
// A failing tick is logged and never stops the loop; one match's clock
// cannot affect another's.
type Worker struct {
	store    MatchStore
	registry *room.Registry
	finisher Finisher
	bc       Broadcaster
	opts     Options

	mu     sync.Mutex
	clocks map[string]*clock

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(st MatchStore, registry *room.Registry, finisher Finisher, bc Broadcaster, opts Options) *Worker {
	if opts.JoinWindow <= 0 {
		opts.JoinWindow = time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	if opts.ClockTick <= 0 {
		opts.ClockTick = time.Second
	}
	return &Worker{
		store:    st,
		registry: registry,
		finisher: finisher,
		bc:       bc,
		opts:     opts,
		clocks:   make(map[string]*clock),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.safeSweep()
			}
		}
	}()
}

// StopAll halts the sweep loop and every running clock, and waits for the
// goroutines to drain.
func (w *Worker) StopAll() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.mu.Lock()
	for id, c := range w.clocks {
		c.halt()
		delete(w.clocks, id)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Worker) safeSweep() {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("sweep_panic", zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.SweepInterval)
	defer cancel()
	w.Sweep(ctx, time.Now())
}

// Sweep runs one pass of the status sweep: promote due SCHEDULED matches to
// LIVE, and cancel LIVE matches whose join window elapsed before the game
// started. Cancellation consults the live room so a pair that finished
// joining moments before the sweep is never cancelled.
func (w *Worker) Sweep(ctx context.Context, now time.Time) {
	due, err := w.store.ListScheduledDue(ctx, now)
	if err != nil {
		obslog.L().Error("sweep_list_error", zap.String("phase", "scheduled"), zap.Error(err))
	}
	for _, m := range due {
		endsAt := now.Add(w.opts.JoinWindow)
		if err := w.store.MarkLive(ctx, m.ID, endsAt); err != nil {
			obslog.L().Error("sweep_promote_error", zap.String("match_id", m.ID), zap.Error(err))
			continue
		}
		obslog.L().Info("match_live",
			zap.String("match_id", m.ID),
			zap.Time("join_window_ends_at", endsAt),
		)
	}

	expired, err := w.store.ListJoinWindowExpired(ctx, now)
	if err != nil {
		obslog.L().Error("sweep_list_error", zap.String("phase", "expired"), zap.Error(err))
	}
	for _, m := range expired {
		// a join in flight wins over the sweep
		if w.registry.PlayerCount(m.ID) >= 2 {
			continue
		}
		if err := w.store.Cancel(ctx, m.ID); err != nil {
			obslog.L().Error("sweep_cancel_error", zap.String("match_id", m.ID), zap.Error(err))
			continue
		}
		obslog.L().Info("match_cancelled", zap.String("match_id", m.ID))
	}
}

// StartClock begins (or restarts) the countdown clock for a match with the
// given budgets in milliseconds. Any previous clock for the id is halted
// first so a match never runs two timers.
func (w *Worker) StartClock(matchID string, whiteMs, blackMs int64) {
	w.mu.Lock()
	if prev, ok := w.clocks[matchID]; ok {
		prev.halt()
	}
	c := &clock{stop: make(chan struct{})}
	w.clocks[matchID] = c
	w.mu.Unlock()

	w.registry.UpdateRoom(matchID, room.Update{
		WhiteTimeRemaining: &whiteMs,
		BlackTimeRemaining: &blackMs,
	})

	w.wg.Add(1)
	go w.runClock(matchID, c)
	obslog.L().Info("clock_start",
		zap.String("match_id", matchID),
		zap.Int64("white_ms", whiteMs),
		zap.Int64("black_ms", blackMs),
	)
}

// Stop halts the match's clock. Calling it for an absent or already
// stopped clock is a no-op.
func (w *Worker) Stop(matchID string) {
	w.mu.Lock()
	c, ok := w.clocks[matchID]
	if ok {
		c.halt()
		delete(w.clocks, matchID)
	}
	w.mu.Unlock()
}

// release halts c and drops the map entry only while c is still the
// registered clock, so a goroutine replaced by StartClock cannot stop its
// successor from a final in-flight tick.
func (w *Worker) release(matchID string, c *clock) {
	w.mu.Lock()
	if cur, ok := w.clocks[matchID]; ok && cur == c {
		delete(w.clocks, matchID)
	}
	w.mu.Unlock()
	c.halt()
}

func (w *Worker) runClock(matchID string, c *clock) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("clock_panic", zap.String("match_id", matchID), zap.Any("panic", r))
		}
	}()
	ticker := time.NewTicker(w.opts.ClockTick)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if done := w.tickClock(matchID); done {
				w.release(matchID, c)
				return
			}
		}
	}
}

// tickClock decrements the to-move color's remaining time by one tick and
// reports whether the clock should stop.
func (w *Worker) tickClock(matchID string) bool {
	r, ok := w.registry.GetRoom(matchID)
	if !ok || r.Status == room.StatusFinished {
		return true
	}
	if r.WhiteTimeRemaining == nil || r.BlackTimeRemaining == nil {
		return false
	}

	whiteMs := *r.WhiteTimeRemaining
	blackMs := *r.BlackTimeRemaining
	dec := w.opts.ClockTick.Milliseconds()
	expired := ""
	if r.CurrentTurn == "black" {
		blackMs -= dec
		if blackMs <= 0 {
			blackMs = 0
			expired = "black"
		}
	} else {
		whiteMs -= dec
		if whiteMs <= 0 {
			whiteMs = 0
			expired = "white"
		}
	}

	w.registry.UpdateRoom(matchID, room.Update{
		WhiteTimeRemaining: &whiteMs,
		BlackTimeRemaining: &blackMs,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := w.store.UpdateTimers(ctx, matchID, whiteMs, blackMs); err != nil {
		obslog.L().Warn("timer_persist_error", zap.String("match_id", matchID), zap.Error(err))
	}
	cancel()

	w.bc.Broadcast(matchID, livedto.EventTimerUpdate, livedto.TimerUpdate{
		WhiteTimeRemaining: whiteMs,
		BlackTimeRemaining: blackMs,
	})

	if expired != "" {
		winner := "white"
		if expired == "white" {
			winner = "black"
		}
		obslog.L().Info("clock_timeout",
			zap.String("match_id", matchID),
			zap.String("expired", expired),
			zap.String("winner", winner),
		)
		fctx, fcancel := context.WithTimeout(context.Background(), 5*time.Second)
		w.finisher.FinishByTimeout(fctx, matchID, winner)
		fcancel()
		return true
	}
	return false
}
