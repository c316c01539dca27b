package xive

import "github.com/xive-go/xive/desc"

// memIVETable is the simplest IVETable: a flat map keyed by LISN. A
// real chip variant might back this with a guest-resident table walked
// via DMA or a cached mirror (spec DESIGN NOTES, "Polymorphic descriptor
// storage"); this is the in-process default xive.New assembles.
type memIVETable struct {
	ives map[uint32]desc.IVE
}

func newMemIVETable() *memIVETable {
	return &memIVETable{ives: map[uint32]desc.IVE{}}
}

func (t *memIVETable) GetIVE(lisn uint32) (desc.IVE, bool) {
	v, ok := t.ives[lisn]

	return v, ok
}

func (t *memIVETable) Set(lisn uint32, ive desc.IVE) {
	t.ives[lisn] = ive
}

// memEQTable is the in-process default EQTable, keyed by (block, index).
type memEQTable struct {
	eqs map[[2]uint32]desc.EQ
}

func newMemEQTable() *memEQTable {
	return &memEQTable{eqs: map[[2]uint32]desc.EQ{}}
}

func (t *memEQTable) GetEQ(blk, idx uint32) (desc.EQ, bool) {
	v, ok := t.eqs[[2]uint32{blk, idx}]

	return v, ok
}

func (t *memEQTable) SetEQ(blk, idx uint32, eq desc.EQ) {
	t.eqs[[2]uint32{blk, idx}] = eq
}

// memVPTable is the in-process default VPTable. nrVPs seeds every
// (block 0, index < nrVPs) slot as valid with an empty backlog, the way
// a guest would provision its VP table at boot; indices beyond that
// range are simply absent until SetVP installs them.
type memVPTable struct {
	vps map[[2]uint32]desc.VP
}

func newMemVPTable(nrVPs uint32) *memVPTable {
	t := &memVPTable{vps: map[[2]uint32]desc.VP{}}

	for i := uint32(0); i < nrVPs; i++ {
		t.vps[[2]uint32{0, i}] = desc.NewVP(true)
	}

	return t
}

func (t *memVPTable) GetVP(blk, idx uint32) (desc.VP, bool) {
	v, ok := t.vps[[2]uint32{blk, idx}]

	return v, ok
}

func (t *memVPTable) SetVP(blk, idx uint32, vp desc.VP) {
	t.vps[[2]uint32{blk, idx}] = vp
}
