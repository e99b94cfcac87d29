package matchid

import (
	"fmt"
	"testing"
)

func TestNumericDeterministic(t *testing.T) {
	a := Numeric("665f3c2a9b1d4e00124a77f1")
	b := Numeric("665f3c2a9b1d4e00124a77f1")
	if a != b {
		t.Fatalf("same input produced different ids: %d vs %d", a, b)
	}
}

func TestNumericWithinSafeIntegerRange(t *testing.T) {
	ids := []string{"", "a", "665f3c2a9b1d4e00124a77f1", "match-42"}
	for _, id := range ids {
		if n := Numeric(id); n >= 1<<53 {
			t.Fatalf("id %q mapped outside 53-bit range: %d", id, n)
		}
	}
}

func TestNumericDistinctOverRealisticVolume(t *testing.T) {
	seen := make(map[uint64]string, 10000)
	for i := 0; i < 10000; i++ {
		doc := fmt.Sprintf("665f3c2a9b1d4e00%08x", i)
		n := Numeric(doc)
		if prev, ok := seen[n]; ok {
			t.Fatalf("collision between %q and %q at %d", prev, doc, n)
		}
		seen[n] = doc
	}
}
