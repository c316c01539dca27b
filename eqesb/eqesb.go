// Package eqesb implements the EQ ESB source (spec section 4.6): a
// second MMIO region exposing each EQ's embedded ESn/ESe pair as a
// regular single-page ESB, so guest software can poll or rearm
// queue-level coalescing the same way it does for an event source.
//
// Unlike ivse, the ESB state here is not a byte array the region owns
// outright: it lives inside the EQ descriptor itself, so every access
// round-trips through an EQTable load/apply/store instead of a local
// slice.
package eqesb

import (
	"fmt"

	"github.com/xive-go/xive/desc"
	"github.com/xive-go/xive/esb"
	"github.com/xive-go/xive/internal/ratelog"
)

const allOnes = ^uint64(0)

var (
	errNrEQs    = fmt.Errorf("eqesb: nr_eqs must be non-zero")
	errNilTable = fmt.Errorf("eqesb: EQTable is required")
)

func errBadShift(shift uint) error {
	return fmt.Errorf("eqesb: esb_shift %d is not a supported single-page shift (12 or 13)", shift)
}

// EQTable is the pluggable (block, index) -> EQ lookup and update the
// region operates on. router.EQTable satisfies this directly.
type EQTable interface {
	GetEQ(blk, idx uint32) (desc.EQ, bool)
	SetEQ(blk, idx uint32, eq desc.EQ)
}

// Config describes one EQ ESB region.
type Config struct {
	Block uint32
	NrEQs uint32

	// ESBShift is one of the two single-page shifts; the EQ ESB region
	// never uses the two-page trigger+management layout ivse does.
	ESBShift uint
}

func validShift(shift uint) bool { return shift == 12 || shift == 13 }

// Source is an EQ ESB MMIO region.
type Source struct {
	cfg    Config
	eq     EQTable
	logger *ratelog.Logger
}

// New constructs a Source over cfg and eq. eq must be non-nil and
// cfg.ESBShift must be one of the two single-page shifts.
func New(cfg Config, eq EQTable, logger *ratelog.Logger) (*Source, error) {
	if !validShift(cfg.ESBShift) {
		return nil, errBadShift(cfg.ESBShift)
	}

	if cfg.NrEQs == 0 {
		return nil, errNrEQs
	}

	if eq == nil {
		return nil, errNilTable
	}

	return &Source{cfg: cfg, eq: eq, logger: logger}, nil
}

// RegionSize is the full MMIO footprint: two pages (ESn, ESe) per EQ.
func (s *Source) RegionSize() uint64 {
	return (uint64(2) << s.cfg.ESBShift) * uint64(s.cfg.NrEQs)
}

func (s *Source) pageSize() uint64 { return uint64(1) << s.cfg.ESBShift }

// decode splits an offset into the target EQ index, which half of the
// pair (ese=false selects ESn, true selects ESe) it addresses, and the
// op-offset within that half's page.
func (s *Source) decode(addr uint64) (idx uint32, ese bool, opOffset uint64) {
	pair := s.pageSize() * 2
	idx = uint32(addr / pair)
	rem := addr % pair

	ese = rem >= s.pageSize()
	opOffset = (rem % s.pageSize()) & 0xFFF

	return idx, ese, opOffset
}

// Read services an 8-byte-only load from the region.
func (s *Source) Read(addr uint64, size int) uint64 {
	if size != 8 {
		s.logger.Printf("eqesb: unsupported load size %d at %#x", size, addr)

		return allOnes
	}

	idx, ese, op := s.decode(addr)

	eq, ok := s.eq.GetEQ(s.cfg.Block, idx)
	if !ok {
		s.logger.Printf("eqesb: load for unknown eq idx=%d", idx)

		return allOnes
	}

	cur := eq.ESn()
	if ese {
		cur = eq.ESe()
	}

	var (
		result esb.State
		next   esb.State
		dirty  bool
	)

	switch op {
	case 0x400:
		// Load-EOI. The original source marks the forwarding step here
		// with an unresolved "Forward the source event notification
		// for routing ??" comment; per the spec this stays a no-op:
		// state updates, but an EOI that would ask for forwarding
		// never re-notifies the router from this path.
		n, _ := cur.EOI()
		next, result, dirty = n, n, true
	case 0x800:
		result = cur
	case 0xC00, 0xD00, 0xE00, 0xF00:
		v := esb.State((op >> 8) & uint64(esb.Mask))
		n, old := esb.SetPQ(cur, v)
		next, result, dirty = n, old, true
	default:
		s.logger.Printf("eqesb: bad op-offset %#x for eq idx=%d", op, idx)

		return allOnes
	}

	if dirty {
		if ese {
			eq.SetESe(next)
		} else {
			eq.SetESn(next)
		}

		s.eq.SetEQ(s.cfg.Block, idx, eq)
	}

	return uint64(result)
}

// Write always fails: the EQ ESB region only accepts loads (spec
// section 4.6, "Stores to this region are invalid").
func (s *Source) Write(addr uint64, size int, value uint64) {
	s.logger.Printf("eqesb: store to read-only region at %#x (value %#x)", addr, value)
}
