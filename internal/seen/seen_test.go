package seen

import (
	"fmt"
	"testing"

	"giftwatch/pkg/types"
)

func TestObserve(t *testing.T) {
	t.Parallel()

	s := New(10)
	if !s.Observe(types.Portals, "portals_1") {
		t.Error("first observation should be new")
	}
	if s.Observe(types.Portals, "portals_1") {
		t.Error("second observation should not be new")
	}

	// Same ID on another venue is independent.
	if !s.Observe(types.Tonnel, "tonnel_1") {
		t.Error("different marketplace should track separately")
	}
}

func TestTrimKeepsNewest(t *testing.T) {
	t.Parallel()

	s := New(5)
	for i := 0; i < 11; i++ {
		s.Observe(types.Portals, fmt.Sprintf("portals_%d", i))
	}

	// Crossing 2x cap trims down to cap.
	if got := s.Len(types.Portals); got != 5 {
		t.Fatalf("Len = %d, want 5 after trim", got)
	}

	// The newest IDs survive, the oldest are forgotten.
	if s.Observe(types.Portals, "portals_10") {
		t.Error("newest ID should still be remembered")
	}
	if !s.Observe(types.Portals, "portals_0") {
		t.Error("oldest ID should have been evicted")
	}
}

func TestTrimIsLazy(t *testing.T) {
	t.Parallel()

	s := New(5)
	for i := 0; i < 10; i++ {
		s.Observe(types.Portals, fmt.Sprintf("portals_%d", i))
	}
	// At exactly 2x cap nothing is trimmed yet.
	if got := s.Len(types.Portals); got != 10 {
		t.Errorf("Len = %d, want 10 (trim only past 2x cap)", got)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	s := New(10)
	s.Observe(types.Portals, "portals_1")
	s.Observe(types.Tonnel, "tonnel_1")
	s.Reset()

	if s.Len(types.Portals) != 0 || s.Len(types.Tonnel) != 0 {
		t.Error("reset should clear all venues")
	}
	if !s.Observe(types.Portals, "portals_1") {
		t.Error("after reset everything is new again")
	}
}
