package main

import (
	"fmt"
	"sort"

	"github.com/xive-go/xive/xive"
)

// mmioBus is the smallest possible xive.MMIORegistrar: a sorted list of
// base/size/handler triples, dispatched by linear range lookup. Real
// machines route this through a PCI BAR or a flat bus like pci.Device's
// MMIO registration; xivectl only needs enough of one to let `dump` and
// `serve` poke at the three regions RegisterRegions installs.
type mmioBus struct {
	regions []busRegion
}

type busRegion struct {
	base, size uint64
	rw         xive.ReadWriter
}

func (b *mmioBus) RegisterMMIORegion(base, size uint64, rw xive.ReadWriter) error {
	b.regions = append(b.regions, busRegion{base, size, rw})

	sort.Slice(b.regions, func(i, j int) bool { return b.regions[i].base < b.regions[j].base })

	return nil
}

func (b *mmioBus) find(addr uint64) (busRegion, uint64, error) {
	for _, r := range b.regions {
		if addr >= r.base && addr < r.base+r.size {
			return r, addr - r.base, nil
		}
	}

	return busRegion{}, 0, fmt.Errorf("xivectl: no MMIO region covers address %#x", addr)
}

func (b *mmioBus) Read(addr uint64, size int) (uint64, error) {
	r, off, err := b.find(addr)
	if err != nil {
		return 0, err
	}

	return r.rw.Read(off, size), nil
}

func (b *mmioBus) Write(addr uint64, size int, value uint64) error {
	r, off, err := b.find(addr)
	if err != nil {
		return err
	}

	r.rw.Write(off, size, value)

	return nil
}
