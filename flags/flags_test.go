package flags

import (
	"testing"

	"github.com/wbmoore/armsim/bus"
)

func TestSetGetRoundTrip(t *testing.T) {
	b := bus.New()
	s := NewSet(b)

	s.Set(Z, true, false)
	if got := s.Get(Z, false); !got {
		t.Errorf("Get(Z) = %v, want true", got)
	}
	if s.Get(N, false) {
		t.Errorf("N should default false")
	}
}

func TestWatchpoints(t *testing.T) {
	b := bus.New()
	s := NewSet(b)
	s.SetBreakpoint(C, MaskWrite)

	s.Set(C, true, true)
	if !b.Triggered() {
		t.Fatalf("expected write watchpoint on C to trigger")
	}
	ev := b.Event()
	if ev.Src != bus.Flag || ev.Mode != bus.ModeWrite || ev.Info != C {
		t.Errorf("got %v, want (flag, write, C)", ev)
	}
}

func TestRemoveBreakpoint(t *testing.T) {
	b := bus.New()
	s := NewSet(b)
	s.SetBreakpoint(V, MaskRead)
	s.RemoveBreakpoint(V)

	s.Get(V, true)
	if b.Triggered() {
		t.Errorf("removed breakpoint should not trigger")
	}
}

func TestStringOrder(t *testing.T) {
	b := bus.New()
	s := NewSet(b)
	s.Set(N, true, false)
	s.Set(C, true, false)

	if got, want := s.String(), "N.C."; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUnknownFlagPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for unknown flag name")
		}
	}()
	s := NewSet(bus.New())
	s.Get(Name("X"), false)
}
