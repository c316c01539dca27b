// Package ivse implements the Event Source: the array of per-IRQ ESB
// bytes, the LSI/MSI distinction, and the ESB MMIO region that lets the
// guest trigger, EOI, and inspect each source.
package ivse

import (
	"fmt"

	"github.com/xive-go/xive/esb"
	"github.com/xive-go/xive/internal/ratelog"
)

// Fabric is the notification sink an Event Source forwards LISNs to once
// an ESB transition calls for a fresh notification.
type Fabric interface {
	Notify(lisn uint32)
}

// esb_shift values of 12/13 address one page per IRQ (trigger and
// management operations share it); 16/17 pair a trigger page with a
// separate management page.
const (
	ShiftSinglePage4K = 12
	ShiftSinglePage8K = 13
	ShiftTwoPage64K   = 16
	ShiftTwoPage128K  = 17

	// StoreEOI is the only esb_flags bit modeled.
	StoreEOI = 1 << 0
)

func twoPageMode(shift uint) bool {
	return shift == ShiftTwoPage64K || shift == ShiftTwoPage128K
}

func validShift(shift uint) bool {
	switch shift {
	case ShiftSinglePage4K, ShiftSinglePage8K, ShiftTwoPage64K, ShiftTwoPage128K:
		return true
	default:
		return false
	}
}

// Config is the construction-time configuration of one Event Source.
type Config struct {
	NrIRQs   uint32
	ESBShift uint
	ESBFlags uint32
}

// Source owns nr_irqs ESB bytes plus their LSI/ASSERTED state and exposes
// the ESB MMIO region over them.
type Source struct {
	cfg    Config
	fabric Fabric
	logger *ratelog.Logger

	state    []esb.State
	lsi      []bool
	asserted []bool
}

// New validates cfg and constructs a Source. Construction fails outright
// (no partial state left behind) if esb_shift is not one of the four
// allowed values or nr_irqs is zero.
func New(cfg Config, fabric Fabric, logger *ratelog.Logger) (*Source, error) {
	if !validShift(cfg.ESBShift) {
		return nil, fmt.Errorf("ivse: invalid esb_shift %d", cfg.ESBShift)
	}

	if cfg.NrIRQs == 0 {
		return nil, fmt.Errorf("ivse: nr_irqs must be nonzero")
	}

	if fabric == nil {
		return nil, fmt.Errorf("ivse: fabric is required")
	}

	s := &Source{
		cfg:      cfg,
		fabric:   fabric,
		logger:   logger,
		state:    make([]esb.State, cfg.NrIRQs),
		lsi:      make([]bool, cfg.NrIRQs),
		asserted: make([]bool, cfg.NrIRQs),
	}
	s.Reset()

	return s, nil
}

// Reset returns every ESB byte to OFF; the LSI map is preserved, since it
// reflects static wiring rather than interrupt state.
func (s *Source) Reset() {
	for i := range s.state {
		s.state[i] = esb.Off
		s.asserted[i] = false
	}
}

// SetLSI marks srcno as level-sensitive (true) or edge/MSI (false).
func (s *Source) SetLSI(srcno uint32, lsi bool) {
	s.lsi[srcno] = lsi
}

// RegionSize is the total byte size of the ESB MMIO region.
func (s *Source) RegionSize() uint64 {
	pagesPerIRQ := uint64(1)
	if twoPageMode(s.cfg.ESBShift) {
		pagesPerIRQ = 2
	}

	return (uint64(1) << s.cfg.ESBShift) * pagesPerIRQ * uint64(s.cfg.NrIRQs)
}

// SetIRQ implements set_irq(srcno, level): edge sources trigger only on a
// rising level; level sources track ASSERTED independently of the P/Q
// state and only transition out of RESET.
func (s *Source) SetIRQ(srcno uint32, level bool) {
	if s.lsi[srcno] {
		s.setLSI(srcno, level)

		return
	}

	if !level {
		return
	}

	next, forward := s.state[srcno].Trigger()
	s.state[srcno] = next

	if forward {
		s.fabric.Notify(srcno)
	}
}

func (s *Source) setLSI(srcno uint32, level bool) {
	if !level {
		s.asserted[srcno] = false

		return
	}

	s.asserted[srcno] = true

	if s.state[srcno] == esb.Reset {
		s.state[srcno] = esb.Pending
		s.fabric.Notify(srcno)
	}
}

// page/trigger-vs-management selection for two-page mode.
func (s *Source) decode(addr uint64) (srcno uint32, mgmtPage bool, opOffset uint64) {
	pageShift := s.cfg.ESBShift
	pagesPerIRQ := uint64(1)

	if twoPageMode(s.cfg.ESBShift) {
		pagesPerIRQ = 2
	}

	pageSize := uint64(1) << pageShift
	page := addr / pageSize
	opOffset = addr % pageSize

	srcno = uint32(page / pagesPerIRQ)
	if pagesPerIRQ == 2 {
		mgmtPage = page%2 == 1
	} else {
		mgmtPage = true // single-page mode: the one page does everything
	}

	return srcno, mgmtPage, opOffset
}

// Read services an 8-byte ESB load at addr. Any other size, or a load
// against a trigger-only page, is a guest error: it logs and returns all
// ones.
func (s *Source) Read(addr uint64, size int) uint64 {
	if size != 8 {
		s.logger.Printf("ivse: unsupported load size %d at %#x", size, addr)

		return ^uint64(0)
	}

	srcno, mgmtPage, opOffset := s.decode(addr)
	if srcno >= s.cfg.NrIRQs {
		s.logger.Printf("ivse: load from out-of-range srcno %d", srcno)

		return ^uint64(0)
	}

	if !mgmtPage {
		s.logger.Printf("ivse: load from trigger-only page, srcno %d offset %#x", srcno, opOffset)

		return ^uint64(0)
	}

	switch {
	case opOffset < 0x400:
		s.logger.Printf("ivse: invalid load in trigger range, srcno %d offset %#x", srcno, opOffset)

		return ^uint64(0)

	case opOffset < 0x800:
		return uint64(s.loadEOI(srcno))

	case opOffset < 0xC00:
		return uint64(s.state[srcno] & esb.Mask)

	default:
		v := esb.State((opOffset & 0x300) >> 8)
		next, old := esb.SetPQ(s.state[srcno], v)
		s.state[srcno] = next

		return uint64(old)
	}
}

// Write services an 8-byte ESB store at addr.
func (s *Source) Write(addr uint64, size int, value uint64) {
	if size != 8 {
		s.logger.Printf("ivse: unsupported store size %d at %#x", size, addr)

		return
	}

	srcno, mgmtPage, opOffset := s.decode(addr)
	if srcno >= s.cfg.NrIRQs {
		s.logger.Printf("ivse: store to out-of-range srcno %d", srcno)

		return
	}

	switch {
	case opOffset < 0x400:
		s.trigger(srcno)

	case opOffset < 0x800:
		if !twoPageMode(s.cfg.ESBShift) || !mgmtPage {
			// Single-page mode, or the trigger half of two-page mode:
			// this range also triggers.
			s.trigger(srcno)

			return
		}

		if s.cfg.ESBFlags&StoreEOI == 0 {
			s.logger.Printf("ivse: STORE_EOI disabled, srcno %d", srcno)

			return
		}

		s.eoi(srcno)

	case opOffset < 0xC00:
		s.logger.Printf("ivse: store to undefined GET_PQ range, srcno %d", srcno)

	default:
		v := esb.State((opOffset & 0x300) >> 8)
		next, _ := esb.SetPQ(s.state[srcno], v)
		s.state[srcno] = next
	}
}

func (s *Source) trigger(srcno uint32) {
	next, forward := s.state[srcno].Trigger()
	s.state[srcno] = next

	if forward {
		s.fabric.Notify(srcno)
	}
}

// loadEOI implements the LOAD_EOI op: EOI the ESB, returning bit 0 =
// forward; for an LSI source that is still ASSERTED, an EOI that would
// settle in RESET re-enters PENDING and forwards again instead.
func (s *Source) loadEOI(srcno uint32) byte {
	forward := s.eoi(srcno)

	var ret byte
	if forward {
		ret = 1
	}

	return ret
}

func (s *Source) eoi(srcno uint32) bool {
	next, forward := s.state[srcno].EOI()
	s.state[srcno] = next

	if s.lsi[srcno] && s.asserted[srcno] && s.state[srcno] == esb.Reset {
		// The line is still physically asserted: re-enter PENDING and
		// forward, mirroring SetIRQ's RESET->PENDING edge.
		s.state[srcno] = esb.Pending
		forward = true
	}

	if forward {
		s.fabric.Notify(srcno)
	}

	return forward
}
