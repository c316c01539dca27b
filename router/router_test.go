package router_test

import (
	"errors"
	"testing"

	"github.com/xive-go/xive/desc"
	"github.com/xive-go/xive/internal/ratelog"
	"github.com/xive-go/xive/router"
)

type fakeIVETable struct {
	ives map[uint32]desc.IVE
}

func (f *fakeIVETable) GetIVE(lisn uint32) (desc.IVE, bool) {
	v, ok := f.ives[lisn]

	return v, ok
}

type fakeEQTable struct {
	eqs map[[2]uint32]desc.EQ
}

func (f *fakeEQTable) GetEQ(blk, idx uint32) (desc.EQ, bool) {
	v, ok := f.eqs[[2]uint32{blk, idx}]

	return v, ok
}

func (f *fakeEQTable) SetEQ(blk, idx uint32, eq desc.EQ) {
	f.eqs[[2]uint32{blk, idx}] = eq
}

type fakeMemory struct {
	words map[uint64]uint32
	fail  bool
}

func newFakeMemory() *fakeMemory { return &fakeMemory{words: map[uint64]uint32{}} }

func (f *fakeMemory) WriteUint32(addr uint64, v uint32) error {
	if f.fail {
		return errors.New("dma write failed")
	}

	f.words[addr] = v

	return nil
}

type fakePresenter struct {
	calls []presenterCall
	err   error
}

type presenterCall struct {
	format             uint8
	nvtBlock, nvtIndex uint32
	ignore             bool
	priority           uint8
	logServerID        uint32
}

func (f *fakePresenter) Notify(format uint8, nvtBlock, nvtIndex uint32, ignore bool, priority uint8, logServerID uint32) error {
	f.calls = append(f.calls, presenterCall{format, nvtBlock, nvtIndex, ignore, priority, logServerID})

	return f.err
}

func TestNotifyScenario1MSIEdgeSingleShot(t *testing.T) {
	t.Parallel()

	ives := &fakeIVETable{ives: map[uint32]desc.IVE{
		7: desc.NewIVE(true, false, 0, 3, 0xABCD),
	}}

	eq := desc.NewEQ(true, true, true, 0, 0x10000000, 0, 5, 4)
	eqs := &fakeEQTable{eqs: map[[2]uint32]desc.EQ{{0, 3}: eq}}

	mem := newFakeMemory()
	pres := &fakePresenter{}

	r, err := router.New(0, ives, eqs, mem, pres, ratelog.New("router-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r.Notify(7)

	word, ok := mem.words[0x10000000]
	if !ok {
		t.Fatalf("no DMA write observed at 0x10000000")
	}

	// gen=0 at push time, so the written word carries data unmodified in
	// its low 31 bits and a clear generation bit (bit 31).
	if word != 0x0000ABCD {
		t.Fatalf("word = %#x, want 0x0000abcd", word)
	}

	got, _ := eqs.GetEQ(0, 3)
	if got.PageOff() != 1 || got.Generation() {
		t.Fatalf("eq after push: PageOff=%d Generation=%v, want 1/false", got.PageOff(), got.Generation())
	}

	if len(pres.calls) != 1 {
		t.Fatalf("presenter calls = %d, want 1", len(pres.calls))
	}

	call := pres.calls[0]
	if call.nvtIndex != 5 || call.priority != 4 {
		t.Fatalf("presenter call = %+v, want nvtIndex=5 priority=4", call)
	}
}

func TestNotifyScenario6EQWrapAndGenerationFlip(t *testing.T) {
	t.Parallel()

	ives := &fakeIVETable{ives: map[uint32]desc.IVE{
		1: desc.NewIVE(true, false, 0, 9, 0),
	}}

	eq := desc.NewEQ(true, true, true, 0, 0x20000000, 0, 1, 4)
	eq.SetPageOff(1023)
	eqs := &fakeEQTable{eqs: map[[2]uint32]desc.EQ{{0, 9}: eq}}

	mem := newFakeMemory()
	pres := &fakePresenter{}

	r, err := router.New(0, ives, eqs, mem, pres, ratelog.New("router-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r.Notify(1)

	wantAddr := uint64(0x20000000 + 1023*4)
	if _, ok := mem.words[wantAddr]; !ok {
		t.Fatalf("no DMA write at %#x", wantAddr)
	}

	got, _ := eqs.GetEQ(0, 9)
	if got.PageOff() != 0 || !got.Generation() {
		t.Fatalf("eq after wrap: PageOff=%d Generation=%v, want 0/true", got.PageOff(), got.Generation())
	}

	r.Notify(1)

	secondAddr := uint64(0x20000000)
	word, ok := mem.words[secondAddr]
	if !ok {
		t.Fatalf("no DMA write at %#x after wrap", secondAddr)
	}

	if word&0x80000000 == 0 {
		t.Fatalf("word = %#x, want generation bit set after wrap", word)
	}
}

func TestNotifyMaskedIVEIsNoOp(t *testing.T) {
	t.Parallel()

	ives := &fakeIVETable{ives: map[uint32]desc.IVE{
		2: desc.NewIVE(true, true, 0, 0, 0),
	}}

	eqs := &fakeEQTable{eqs: map[[2]uint32]desc.EQ{}}
	mem := newFakeMemory()
	pres := &fakePresenter{}

	r, _ := router.New(0, ives, eqs, mem, pres, ratelog.New("t"))
	r.Notify(2)

	if len(pres.calls) != 0 {
		t.Fatalf("expected no presenter calls for a masked IVE")
	}
}

func TestNotifyInvalidLISNIsNoOp(t *testing.T) {
	t.Parallel()

	ives := &fakeIVETable{ives: map[uint32]desc.IVE{}}
	eqs := &fakeEQTable{eqs: map[[2]uint32]desc.EQ{}}
	mem := newFakeMemory()
	pres := &fakePresenter{}

	r, _ := router.New(0, ives, eqs, mem, pres, ratelog.New("t"))
	r.Notify(99) // absent: logs, does not panic
}

func TestEQNotifyMaskedFormat0StopsBeforePresenter(t *testing.T) {
	t.Parallel()

	eq := desc.NewEQ(true, true, true, 0, 0x1000, 0, 1, 0xFF)
	ives := &fakeIVETable{ives: map[uint32]desc.IVE{3: desc.NewIVE(true, false, 0, 4, 0)}}
	eqs := &fakeEQTable{eqs: map[[2]uint32]desc.EQ{{0, 4}: eq}}
	mem := newFakeMemory()
	pres := &fakePresenter{}

	r, _ := router.New(0, ives, eqs, mem, pres, ratelog.New("t"))
	r.Notify(3)

	if len(pres.calls) != 0 {
		t.Fatalf("expected no presenter call when priority==0xFF masks the EQ")
	}
}

func TestDMAFailureDropsWithoutAdvancingQueue(t *testing.T) {
	t.Parallel()

	eq := desc.NewEQ(true, true, true, 0, 0x4000, 0, 1, 2)
	ives := &fakeIVETable{ives: map[uint32]desc.IVE{5: desc.NewIVE(true, false, 0, 6, 0)}}
	eqs := &fakeEQTable{eqs: map[[2]uint32]desc.EQ{{0, 6}: eq}}
	mem := newFakeMemory()
	mem.fail = true
	pres := &fakePresenter{}

	r, _ := router.New(0, ives, eqs, mem, pres, ratelog.New("t"))
	r.Notify(5)

	got, _ := eqs.GetEQ(0, 6)
	if got.PageOff() != 0 {
		t.Fatalf("PageOff = %d, want 0 (queue index must not advance on DMA failure)", got.PageOff())
	}
}

func TestNewRejectsNilCollaborator(t *testing.T) {
	t.Parallel()

	ives := &fakeIVETable{ives: map[uint32]desc.IVE{}}
	eqs := &fakeEQTable{eqs: map[[2]uint32]desc.EQ{}}
	mem := newFakeMemory()
	pres := &fakePresenter{}

	if _, err := router.New(0, nil, eqs, mem, pres, ratelog.New("t")); err == nil {
		t.Fatalf("expected error for nil IVETable")
	}

	if _, err := router.New(0, ives, nil, mem, pres, ratelog.New("t")); err == nil {
		t.Fatalf("expected error for nil EQTable")
	}

	if _, err := router.New(0, ives, eqs, nil, pres, ratelog.New("t")); err == nil {
		t.Fatalf("expected error for nil GuestMemory")
	}

	if _, err := router.New(0, ives, eqs, mem, nil, ratelog.New("t")); err == nil {
		t.Fatalf("expected error for nil Presenter")
	}
}
