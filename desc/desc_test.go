package desc_test

import (
	"testing"

	"github.com/xive-go/xive/desc"
	"github.com/xive-go/xive/esb"
)

func TestIVERoundTrip(t *testing.T) {
	t.Parallel()

	v := desc.NewIVE(true, false, 0, 3, 0xABCD)

	if !v.Valid() || v.Masked() {
		t.Fatalf("unexpected valid/masked: %v %v", v.Valid(), v.Masked())
	}

	if v.EQBlock() != 0 || v.EQIndex() != 3 || v.EQData() != 0xABCD {
		t.Fatalf("got block=%d index=%d data=%#x", v.EQBlock(), v.EQIndex(), v.EQData())
	}
}

func TestEQSetPageOffAndGeneration(t *testing.T) {
	t.Parallel()

	e := desc.NewEQ(true, true, true, 0, 0x10000000, 0, 5, 4)
	if e.NumEntries() != 1024 {
		t.Fatalf("NumEntries = %d, want 1024", e.NumEntries())
	}

	// Scenario 6: qindex at 1023 (last slot), one push wraps and flips gen.
	e.SetPageOff(1023)

	idx := e.PageOff()
	if idx != 1023 {
		t.Fatalf("PageOff = %d, want 1023", idx)
	}

	idx++
	wrapped := idx >= e.NumEntries()
	if wrapped {
		idx = 0
		e.SetGeneration(!e.Generation())
	}

	e.SetPageOff(idx)

	if e.PageOff() != 0 || !e.Generation() {
		t.Fatalf("after wrap: PageOff=%d Generation=%v, want 0 true", e.PageOff(), e.Generation())
	}
}

func TestEQESnRoundTrip(t *testing.T) {
	t.Parallel()

	var e desc.EQ

	e.SetESn(esb.Pending)
	e.SetESe(esb.Queued)

	if e.ESn() != esb.Pending || e.ESe() != esb.Queued {
		t.Fatalf("ESn/ESe = %v/%v, want PENDING/QUEUED", e.ESn(), e.ESe())
	}
}

func TestVPBacklog(t *testing.T) {
	t.Parallel()

	vp := desc.NewVP(true)
	vp.SetBacklogBit(4)

	if vp.BacklogIPB() != 0x08 {
		t.Fatalf("BacklogIPB = %#x, want 0x08", vp.BacklogIPB())
	}
}
