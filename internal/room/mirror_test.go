package room

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestMirror(t *testing.T) *RedisMirror {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisMirror(rdb)
}

func TestMirrorPublishesJoins(t *testing.T) {
	m := newTestMirror(t)
	g := NewRegistry()
	g.SetMirror(m)

	if _, err := g.JoinRoom("m1", 2.5, "0xAAA", "s1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	snap, err := m.Load(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap == nil || snap.ID != "m1" || len(snap.Players) != 1 || snap.StakeAmount != 2.5 {
		t.Fatalf("unexpected mirrored snapshot: %+v", snap)
	}
}

func TestMirrorRemovedWithRoom(t *testing.T) {
	m := newTestMirror(t)
	g := NewRegistry()
	g.SetMirror(m)

	_, _ = g.JoinRoom("m1", 0, "0xAAA", "s1")
	if _, ok := g.RemovePlayerBySocket("s1"); !ok {
		t.Fatalf("RemovePlayerBySocket failed")
	}

	snap, err := m.Load(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected mirror key deleted, got %+v", snap)
	}
}

func TestMirrorTracksUpdates(t *testing.T) {
	m := newTestMirror(t)
	g := NewRegistry()
	g.SetMirror(m)

	_, _ = g.JoinRoom("m1", 0, "0xAAA", "s1")
	turn := "black"
	_, _ = g.UpdateRoom("m1", Update{CurrentTurn: &turn})

	snap, err := m.Load(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap == nil || snap.CurrentTurn != "black" {
		t.Fatalf("mirror missed update: %+v", snap)
	}
}
