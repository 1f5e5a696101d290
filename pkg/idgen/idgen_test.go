package idgen

import "testing"

func TestCounterMonotonic(t *testing.T) {
	c := NewCounter()
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		next := c.Next()
		if next <= prev {
			t.Fatalf("counter did not advance: prev=%d next=%d", prev, next)
		}
		prev = next
	}
}

func TestSourceIndependentCounters(t *testing.T) {
	s := NewSource()
	connID := s.NextConnectionID()
	msgID := s.NextMessageID()
	if connID != 1 || msgID != 1 {
		t.Fatalf("expected both counters to start at 1, got conn=%d msg=%d", connID, msgID)
	}
	if s.NextConnectionID() != 2 {
		t.Fatalf("connection counter did not advance independently")
	}
	if s.NextMessageID() != 2 {
		t.Fatalf("message counter did not advance independently")
	}
}

func TestShortIDUnique(t *testing.T) {
	a := ShortID()
	b := ShortID()
	if a == b {
		t.Fatalf("expected distinct short ids, got %q twice", a)
	}
	if len(a) == 0 {
		t.Fatalf("expected non-empty short id")
	}
}
