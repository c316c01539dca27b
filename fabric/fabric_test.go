package fabric_test

import (
	"testing"

	"github.com/xive-go/xive/fabric"
	"github.com/xive-go/xive/tctx"
)

type mockLine struct{}

func (mockLine) Raise() error { return nil }
func (mockLine) Lower() error { return nil }

func TestRegisterDuplicateCPU(t *testing.T) {
	t.Parallel()

	r := fabric.NewRegistry()

	if err := r.Register(0, tctx.New(0, mockLine{})); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	if err := r.Register(0, tctx.New(0, mockLine{})); err == nil {
		t.Fatalf("expected error on duplicate cpu registration")
	}
}

func TestUnregisterRemovesThreadContext(t *testing.T) {
	t.Parallel()

	r := fabric.NewRegistry()
	r.Register(0, tctx.New(0, mockLine{}))

	if r.NumCPUs() != 1 {
		t.Fatalf("NumCPUs = %d, want 1", r.NumCPUs())
	}

	r.Unregister(0)

	if r.NumCPUs() != 0 {
		t.Fatalf("NumCPUs = %d, want 0 after unregister", r.NumCPUs())
	}

	if r.ThreadContext(0) != nil {
		t.Fatalf("expected nil ThreadContext after unregister")
	}
}

func TestEachVisitsAllRegistered(t *testing.T) {
	t.Parallel()

	r := fabric.NewRegistry()
	r.Register(0, tctx.New(0, mockLine{}))
	r.Register(1, tctx.New(1, mockLine{}))

	seen := map[int]bool{}
	r.Each(func(cpu int, tc *tctx.TCTX) {
		seen[cpu] = true
	})

	if len(seen) != 2 {
		t.Fatalf("Each visited %d CPUs, want 2", len(seen))
	}
}

type mockRouter struct {
	notified []uint32
}

func (m *mockRouter) Notify(lisn uint32) { m.notified = append(m.notified, lisn) }

func TestNotifyForwardsToAttachedRouter(t *testing.T) {
	t.Parallel()

	f := fabric.New()
	r := &mockRouter{}
	f.Attach(r)

	f.Notify(42)

	if len(r.notified) != 1 || r.notified[0] != 42 {
		t.Fatalf("notified = %v, want [42]", r.notified)
	}
}

func TestNotifyBeforeAttachPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic when Notify is called before Attach")
		}
	}()

	fabric.New().Notify(1)
}
