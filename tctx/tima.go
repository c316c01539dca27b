package tctx

import (
	"fmt"

	"github.com/xive-go/xive/internal/mmioregion"
	"github.com/xive-go/xive/internal/ratelog"
)

// ErrBadSize marks a TIMA access whose width XIVE does not define.
var ErrBadSize = fmt.Errorf("tctx: unsupported access size")

// Page identifies which of the four TIMA mirror pages an MMIO access
// targets. It shares numeric values with Ring: each page's "natural"
// privilege is the ring it primarily exposes.
type Page = Ring

const (
	specialBit = 0x800 // offset bit 11: raw region vs special-operations region

	// TM_QW1_OS + TM_CPPR and friends, per spec section 6.
	opSetCPPR      = 0x10 // OS page, 1-byte store
	opAckOSReg     = 0x800 | 0x10
	opSetOSPending = 0x800 | 0x38
)

// Permission is the 2-bit raw-region access mask for one byte.
type Permission uint8

const (
	PermNone Permission = iota
	PermWriteOnly
	PermReadOnly
	PermReadWrite
)

func (p Permission) readable() bool { return p == PermReadOnly || p == PermReadWrite }
func (p Permission) writable() bool { return p == PermWriteOnly || p == PermReadWrite }

// rawPermission computes the per-byte raw-region mask for an access from
// page, following spec section 4.3: a page may see any ring whose
// privilege is less than or equal to its own; QW0_USER is never raw-
// writable from any page (it is only mutated through special EBB ops,
// none of which this port implements, per spec Non-goals).
func rawPermission(page Page, byteOffset int) Permission {
	if byteOffset < 0 || byteOffset >= numRings*ringSize {
		return PermNone
	}

	owner := Ring(byteOffset / ringSize)
	if int(owner) > int(page) {
		return PermNone
	}

	if owner == User {
		return PermReadOnly
	}

	return PermReadWrite
}

// ReadRaw services a load against the raw region (offset&0x800==0).
// Permitted bytes are copied verbatim; forbidden bytes read as zero.
func (t *TCTX) ReadRaw(page Page, offset uint64, out []byte) {
	for i := range out {
		off := int(offset) + i
		if rawPermission(page, off).readable() {
			out[i] = t.regs[off]
		} else {
			out[i] = 0
		}
	}
}

// WriteRaw services a store against the raw region. Only 4- or 8-byte
// raw writes are accepted (spec section 4.3); smaller accesses are
// guest errors. Forbidden bytes (including all of QW0_USER) are left
// unmodified rather than applied.
func (t *TCTX) WriteRaw(log *ratelog.Logger, page Page, offset uint64, in []byte) {
	if len(in) != 4 && len(in) != 8 {
		log.Printf("%v: raw TIMA write of %d bytes at %#x (only 4/8 permitted)", ErrBadSize, len(in), offset)

		return
	}

	for i, b := range in {
		off := int(offset) + i
		if rawPermission(page, off).writable() {
			t.regs[off] = b
		}
	}
}

// specialTable is built once and shared read-only by every TCTX: its
// entries carry no handler and only decide whether (page, opOffset, size,
// direction) is a defined op; selectorFor then picks which of the three
// ops below runs, so the table carries no per-instance state.
var specialTable = buildSpecialTable()

type specialOp int

const (
	opNone specialOp = iota
	opAckOS
	opSetOSCPPR
	opSetOSPendingOp
)

func buildSpecialTable() *mmioregion.Table {
	// "A handler on a more-privileged page may also be invoked from a
	// less-privileged page" describes the entry's own privilege relative
	// to the page it is named for, not the accessor: OS's ACK_OS_REG is
	// also reachable from the HV_POOL and HV_PHYS pages mirroring it, so
	// an entry registered at page P is reachable from any accessing page
	// whose privilege is >= P's.
	tbl := mmioregion.New(func(accessPage, entryPage int) bool {
		return accessPage >= entryPage
	})

	tbl.Add(mmioregion.Entry{
		Page: int(OS), OpOffset: opAckOSReg, Size: 2, Direction: mmioregion.Load,
	})
	tbl.Add(mmioregion.Entry{
		Page: int(OS), OpOffset: opSetCPPR, Size: 1, Direction: mmioregion.Store,
	})
	tbl.Add(mmioregion.Entry{
		Page: int(OS), OpOffset: opSetOSPending, Size: 1, Direction: mmioregion.Store,
	})

	return tbl
}

func selectorFor(opOffset uint64, dir mmioregion.Direction) specialOp {
	switch {
	case opOffset == opAckOSReg && dir == mmioregion.Load:
		return opAckOS
	case opOffset == opSetCPPR && dir == mmioregion.Store:
		return opSetOSCPPR
	case opOffset == opSetOSPending && dir == mmioregion.Store:
		return opSetOSPendingOp
	default:
		return opNone
	}
}

// ReadSpecial services a load against the special-operations region
// (offset&0x800!=0). It returns the 8-byte big-endian result the guest
// should see, or ok=false if no handler matched (guest error: -1).
func (t *TCTX) ReadSpecial(page Page, offset uint64, size int) (result uint64, ok bool) {
	opOffset := offset & 0xFFF
	if _, found := specialTable.Lookup(int(page), opOffset, size, mmioregion.Load); !found {
		return 0, false
	}

	switch selectorFor(opOffset, mmioregion.Load) {
	case opAckOS:
		return uint64(t.Accept(OS)), true
	default:
		return 0, false
	}
}

// WriteSpecial services a store against the special-operations region.
// ok is false if no handler matched (guest error: no-op).
func (t *TCTX) WriteSpecial(page Page, offset uint64, size int, value uint64) (ok bool) {
	opOffset := offset & 0xFFF
	if _, found := specialTable.Lookup(int(page), opOffset, size, mmioregion.Store); !found {
		return false
	}

	switch selectorFor(opOffset, mmioregion.Store) {
	case opSetOSCPPR:
		t.SetCPPR(OS, byte(value))

		return true
	case opSetOSPendingOp:
		t.SetPending(OS, byte(value))

		return true
	default:
		return false
	}
}

// Read services any TIMA access (raw or special) for size bytes at
// offset on page, returning the big-endian result the guest sees. The
// special operations (ACK_OS_REG, SET_OS_PENDING, SET_OS_CPPR) carry side
// effects beyond a plain byte copy, and SET_OS_CPPR lives at offset 0x10
// with bit 11 clear, so every access is tried against the
// special-operations table first; only a miss there falls through to a
// plain raw-region copy. Invalid special
// accesses (bit 11 set, no matching op) log through logger and return
// all-ones (-1), per spec section 7.
func (t *TCTX) Read(logger *ratelog.Logger, page Page, offset uint64, size int) uint64 {
	if v, ok := t.ReadSpecial(page, offset, size); ok {
		return v
	}

	if offset&specialBit != 0 {
		logger.Printf("invalid TIMA special load: page=%v offset=%#x size=%d", page, offset, size)

		return ^uint64(0)
	}

	buf := make([]byte, size)
	t.ReadRaw(page, offset, buf)

	return beToUint64(buf)
}

// Write services any TIMA store, trying the special-operations table
// before falling back to a plain raw-region copy (see Read).
func (t *TCTX) Write(logger *ratelog.Logger, page Page, offset uint64, size int, value uint64) {
	if t.WriteSpecial(page, offset, size, value) {
		return
	}

	if offset&specialBit != 0 {
		logger.Printf("invalid TIMA special store: page=%v offset=%#x size=%d value=%#x", page, offset, size, value)

		return
	}

	buf := uint64ToBE(value, size)
	t.WriteRaw(logger, page, offset, buf)
}

func beToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}

	return v
}

func uint64ToBE(v uint64, size int) []byte {
	b := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}

	return b
}
