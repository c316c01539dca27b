package main

import "testing"

type fakeRW struct {
	reads  []uint64
	writes []uint64
}

func (f *fakeRW) Read(addr uint64, size int) uint64 {
	f.reads = append(f.reads, addr)

	return addr + uint64(size)
}

func (f *fakeRW) Write(addr uint64, size int, value uint64) {
	f.writes = append(f.writes, addr)
}

func TestMMIOBusRoutesByRange(t *testing.T) {
	t.Parallel()

	bus := &mmioBus{}

	low := &fakeRW{}
	high := &fakeRW{}

	if err := bus.RegisterMMIORegion(0x1000, 0x100, low); err != nil {
		t.Fatalf("RegisterMMIORegion: %v", err)
	}

	if err := bus.RegisterMMIORegion(0x2000, 0x100, high); err != nil {
		t.Fatalf("RegisterMMIORegion: %v", err)
	}

	got, err := bus.Read(0x2010, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got != 0x10+4 {
		t.Fatalf("Read = %#x, want %#x", got, 0x10+4)
	}

	if len(high.reads) != 1 || high.reads[0] != 0x10 {
		t.Fatalf("high region saw reads %v, want offset 0x10", high.reads)
	}

	if len(low.reads) != 0 {
		t.Fatalf("low region should not have been touched: %v", low.reads)
	}
}

func TestMMIOBusRejectsUnmappedAddress(t *testing.T) {
	t.Parallel()

	bus := &mmioBus{}
	if err := bus.RegisterMMIORegion(0x1000, 0x10, &fakeRW{}); err != nil {
		t.Fatalf("RegisterMMIORegion: %v", err)
	}

	if _, err := bus.Read(0x5000, 4); err == nil {
		t.Fatalf("expected an error reading an unmapped address")
	}

	if err := bus.Write(0x5000, 4, 0); err == nil {
		t.Fatalf("expected an error writing an unmapped address")
	}
}
