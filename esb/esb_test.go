package esb_test

import (
	"testing"

	"github.com/xive-go/xive/esb"
)

func TestTrigger(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		in      esb.State
		next    esb.State
		forward bool
	}{
		{"Reset", esb.Reset, esb.Pending, true},
		{"Pending", esb.Pending, esb.Queued, false},
		{"Queued", esb.Queued, esb.Queued, false},
		{"Off", esb.Off, esb.Off, false},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			next, forward := tt.in.Trigger()
			if next != tt.next || forward != tt.forward {
				t.Fatalf("Trigger(%v) = (%v, %v), want (%v, %v)", tt.in, next, forward, tt.next, tt.forward)
			}
		})
	}
}

func TestEOI(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		in      esb.State
		next    esb.State
		forward bool
	}{
		{"Reset", esb.Reset, esb.Reset, false},
		{"Pending", esb.Pending, esb.Reset, false},
		{"Queued", esb.Queued, esb.Pending, true},
		{"Off", esb.Off, esb.Off, false},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			next, forward := tt.in.EOI()
			if next != tt.next || forward != tt.forward {
				t.Fatalf("EOI(%v) = (%v, %v), want (%v, %v)", tt.in, next, forward, tt.next, tt.forward)
			}
		})
	}
}

func TestSetPQ(t *testing.T) {
	t.Parallel()

	next, old := esb.SetPQ(esb.Pending, esb.Queued)
	if next != esb.Queued || old != esb.Pending {
		t.Fatalf("SetPQ = (%v, %v), want (%v, %v)", next, old, esb.Queued, esb.Pending)
	}
}

// TestTriggerEOIRoundTrip applies trigger(eoi(eoi(trigger(s)))) with no
// external retrigger. From PENDING it returns to PENDING
// (QUEUED -> PENDING -> RESET -> PENDING); from RESET the final trigger
// leaves the ESB PENDING (PENDING -> RESET -> RESET -> PENDING).
func TestTriggerEOIRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct{ from, want esb.State }{
		{esb.Reset, esb.Pending},
		{esb.Pending, esb.Pending},
	} {
		s1, _ := tt.from.Trigger()
		s2, _ := s1.EOI()
		s3, _ := s2.EOI()
		s4, _ := s3.Trigger()

		if s4 != tt.want {
			t.Fatalf("round trip from %v landed on %v, want %v", tt.from, s4, tt.want)
		}
	}
}

func TestStateEncodingIsTwoBits(t *testing.T) {
	t.Parallel()

	for _, s := range []esb.State{esb.Reset, esb.Off, esb.Pending, esb.Queued} {
		if s&^esb.Mask != 0 {
			t.Fatalf("state %v uses bits outside the 2-bit mask", s)
		}
	}
}
