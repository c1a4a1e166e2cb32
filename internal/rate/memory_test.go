package rate

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3, time.Minute) {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if l.Allow("k", 3, time.Minute) {
		t.Fatalf("fourth call should be blocked")
	}
}

func TestWindowResets(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter()
	l.now = func() time.Time { return base }

	if !l.Allow("k", 1, time.Minute) {
		t.Fatalf("first call should pass")
	}
	if l.Allow("k", 1, time.Minute) {
		t.Fatalf("second call in window should be blocked")
	}
	l.now = func() time.Time { return base.Add(61 * time.Second) }
	if !l.Allow("k", 1, time.Minute) {
		t.Fatalf("call in fresh window should pass")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter()
	if !l.Allow("a", 1, time.Minute) {
		t.Fatalf("key a should pass")
	}
	if !l.Allow("b", 1, time.Minute) {
		t.Fatalf("key b should pass independently")
	}
}
