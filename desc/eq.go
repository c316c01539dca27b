package desc

import "github.com/xive-go/xive/esb"

// EQ is the eight-word Event Queue descriptor (spec section 3). Fields
// that a concrete platform backing store does not use are still tracked
// so a round trip through GetEQ/SetEQ never silently drops state.
type EQ struct {
	W [8]uint32
}

// w0 bits.
const (
	eqW0Valid       = uint32(1) << 31
	eqW0Enqueue     = uint32(1) << 30
	eqW0UcondNotify = uint32(1) << 29
	eqW0Backlog     = uint32(1) << 28
	eqW0EscalateCtl = uint32(1) << 27
	eqW0QSizeMask   = 0x7
)

// w1 bits: generation, queue index (PAGE_OFF), and the ESn/ESe ESB pairs.
const (
	eqW1Generation  = uint32(1) << 31
	eqW1PageOffMask = 0x3FFFF
	eqW1PageOffSft  = 13
	eqW1ESnSft      = 2
	eqW1ESeSft      = 0
	eqW1ESMask      = 0x3
)

// w6 bits: format selector and the NVT (target VP) identity.
const (
	eqW6Format    = uint32(1) << 31
	eqW6NVTBlkSft = 24
	eqW6NVTBlkMsk = 0xF
	eqW6NVTIdxMsk = 0xFFFFFF
)

func (e EQ) Valid() bool       { return e.W[0]&eqW0Valid != 0 }
func (e EQ) Enqueue() bool     { return e.W[0]&eqW0Enqueue != 0 }
func (e EQ) UcondNotify() bool { return e.W[0]&eqW0UcondNotify != 0 }
func (e EQ) Backlog() bool     { return e.W[0]&eqW0Backlog != 0 }
func (e EQ) EscalateCtl() bool { return e.W[0]&eqW0EscalateCtl != 0 }
func (e EQ) QSize() uint32     { return e.W[0] & eqW0QSizeMask }

// NumEntries is the queue length, 2^(QSIZE+10).
func (e EQ) NumEntries() uint32 { return uint32(1) << (e.QSize() + 10) }

func (e EQ) Generation() bool { return e.W[1]&eqW1Generation != 0 }
func (e EQ) PageOff() uint32  { return (e.W[1] >> eqW1PageOffSft) & eqW1PageOffMask }
func (e EQ) ESn() esb.State   { return esb.State((e.W[1] >> eqW1ESnSft) & eqW1ESMask) }
func (e EQ) ESe() esb.State   { return esb.State((e.W[1] >> eqW1ESeSft) & eqW1ESMask) }

func (e *EQ) SetGeneration(v bool) {
	if v {
		e.W[1] |= eqW1Generation
	} else {
		e.W[1] &^= eqW1Generation
	}
}

func (e *EQ) SetPageOff(idx uint32) {
	e.W[1] &^= eqW1PageOffMask << eqW1PageOffSft
	e.W[1] |= (idx & eqW1PageOffMask) << eqW1PageOffSft
}

func (e *EQ) SetESn(s esb.State) {
	e.W[1] &^= eqW1ESMask << eqW1ESnSft
	e.W[1] |= (uint32(s) & eqW1ESMask) << eqW1ESnSft
}

func (e *EQ) SetESe(s esb.State) {
	e.W[1] &^= eqW1ESMask << eqW1ESeSft
	e.W[1] |= (uint32(s) & eqW1ESMask) << eqW1ESeSft
}

// QAddr is the 60-bit guest-physical queue base address, w2 holding the
// high 28 bits and w3 the low 32.
func (e EQ) QAddr() uint64 {
	return (uint64(e.W[2]&0xFFFFFFF) << 32) | uint64(e.W[3])
}

func (e *EQ) SetQAddr(addr uint64) {
	e.W[2] = uint32((addr >> 32) & 0xFFFFFFF)
	e.W[3] = uint32(addr)
}

// Format selects w7's interpretation: 0 is PRIORITY/IGNORE, 1 is a raw
// LOG_SERVER_ID.
func (e EQ) Format() uint8    { return uint8(e.W[6] >> 31) }
func (e EQ) NVTBlock() uint32 { return (e.W[6] >> eqW6NVTBlkSft) & eqW6NVTBlkMsk }
func (e EQ) NVTIndex() uint32 { return e.W[6] & eqW6NVTIdxMsk }

func (e *EQ) SetNVT(format uint8, blk, idx uint32) {
	e.W[6] = 0
	if format != 0 {
		e.W[6] |= eqW6Format
	}

	e.W[6] |= (blk & eqW6NVTBlkMsk) << eqW6NVTBlkSft
	e.W[6] |= idx & eqW6NVTIdxMsk
}

// Priority and Ignore are only meaningful for format 0; LogServerID only
// for format 1 (w7 is shared storage either way).
func (e EQ) Priority() uint8    { return uint8(e.W[7] & 0xFF) }
func (e EQ) Ignore() bool       { return e.W[7]&0x100 != 0 }
func (e EQ) LogServerID() uint32 { return e.W[7] }

func (e *EQ) SetPriority(p uint8, ignore bool) {
	e.W[7] = uint32(p)
	if ignore {
		e.W[7] |= 0x100
	}
}

func (e *EQ) SetLogServerID(id uint32) { e.W[7] = id }

// NewEQ builds a format-0 EQ descriptor from its commonly-set fields, for
// use by tests and simple in-memory tables.
func NewEQ(valid, enqueue, ucondNotify bool, qsize uint32, qaddr uint64, nvtBlk, nvtIdx uint32, priority uint8) EQ {
	var e EQ

	if valid {
		e.W[0] |= eqW0Valid
	}

	if enqueue {
		e.W[0] |= eqW0Enqueue
	}

	if ucondNotify {
		e.W[0] |= eqW0UcondNotify
	}

	e.W[0] |= qsize & eqW0QSizeMask
	e.SetQAddr(qaddr)
	e.SetNVT(0, nvtBlk, nvtIdx)
	e.SetPriority(priority, false)

	return e
}
