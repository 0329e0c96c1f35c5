package bus

import "testing"

func TestLatchOverwritesWithinCycle(t *testing.T) {
	b := New()

	if b.Triggered() {
		t.Fatalf("new bus should not be triggered")
	}

	b.Throw(Event{Src: Register, Mode: ModeWrite, Info: 3})
	b.Throw(Event{Src: Memory, Mode: ModeIllegalAddress, Info: uint32(0x100)})

	if !b.Triggered() {
		t.Fatalf("bus should be triggered after Throw")
	}

	got := b.Event()
	if got.Src != Memory || got.Mode != ModeIllegalAddress {
		t.Errorf("got %v, want only the most recent event to survive", got)
	}
}

func TestResetClearsLatch(t *testing.T) {
	b := New()
	b.Throw(Event{Src: Flag, Mode: ModeRead, Info: "Z"})
	b.Reset()

	if b.Triggered() {
		t.Errorf("Reset should clear the triggered flag")
	}
	if got := b.Event(); got != (Event{}) {
		t.Errorf("Reset should clear the latched event, got %v", got)
	}
}

func TestSourceStrings(t *testing.T) {
	cases := []struct {
		s    Source
		want string
	}{
		{Register, "register"},
		{Flag, "flag"},
		{Memory, "memory"},
		{Source(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("Source(%d).String() = %q, want %q", tc.s, got, tc.want)
		}
	}
}
