package ids

import (
	"testing"
	"time"
)

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestIDsSortByIssueOrder(t *testing.T) {
	base := time.Now()
	prev := At(base)
	for i := 1; i <= 100; i++ {
		next := At(base.Add(time.Duration(i) * time.Millisecond))
		if next <= prev {
			t.Fatalf("ids out of order: %q then %q", prev, next)
		}
		prev = next
	}
}
