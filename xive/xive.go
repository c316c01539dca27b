// Package xive assembles the Event Source, Router, Presenter, EQ ESB
// source, and TCTX registry into one controller: construction-time
// validation, the reset lifecycle, and the three MMIO region
// registrations spec.md section 6 describes. It is the only package
// that imports every other XIVE package; nothing downstream of it
// imports back up.
package xive

import (
	"fmt"

	"github.com/xive-go/xive/desc"
	"github.com/xive-go/xive/eqesb"
	"github.com/xive-go/xive/fabric"
	"github.com/xive-go/xive/internal/ratelog"
	"github.com/xive-go/xive/ivse"
	"github.com/xive-go/xive/presenter"
	"github.com/xive-go/xive/router"
	"github.com/xive-go/xive/tctx"
)

// CPUEnumerator lets the Presenter and the TCTX registry reach every
// thread context without a global singleton. The surrounding machine
// model owns CPU and TCTX lifetime; xive only borrows references to them.
type CPUEnumerator interface {
	NumCPUs() int
	ThreadContext(cpu int) *tctx.TCTX
}

// GuestMemory is the blocking DMA write channel into guest-resident
// memory the Router's EQ push uses.
type GuestMemory interface {
	WriteAt(p []byte, off int64) (int, error)
}

// IRQLine is the per-thread output line into the host CPU model.
type IRQLine interface {
	Raise(cpu int) error
	Lower(cpu int) error
}

// ReadWriter is the MMIO region contract xive registers with the
// surrounding bus: addr is always relative to the region's own base.
type ReadWriter interface {
	Read(addr uint64, size int) uint64
	Write(addr uint64, size int, value uint64)
}

// MMIORegistrar lets xive register its three MMIO regions with whatever
// bus/region framework the surrounding machine model uses.
type MMIORegistrar interface {
	RegisterMMIORegion(base, size uint64, rw ReadWriter) error
}

// Config is the construction-time configuration for one XIVE instance.
type Config struct {
	Block uint32 // this instance's own block number (spec Non-goals: single-block only)

	NrIRQs   uint32
	ESBShift uint
	ESBFlags uint32

	NrEQs      uint32
	EQESBShift uint

	NrVPs uint32

	// BaseESB, BaseTIMA, BaseEQESB are the guest-physical base addresses
	// the three regions are registered at. TIMA is registered once per
	// CPU, each CPU's slice starting at BaseTIMA + cpu*TIMARegionSize.
	BaseESB   uint64
	BaseTIMA  uint64
	BaseEQESB uint64
}

// TIMARegionSize is the per-CPU TIMA footprint: 4 mirror pages of 4KB.
const TIMARegionSize = 4 * 4096

// Controller is one assembled XIVE instance.
type Controller struct {
	cfg Config

	ivse   *ivse.Source
	router *router.Router
	pres   *presenter.Presenter
	eqesb  *eqesb.Source
	fabric *fabric.Fabric

	ives *memIVETable
	eqs  *memEQTable
	vps  *memVPTable

	cpus CPUEnumerator

	logger *ratelog.Logger
}

// New constructs a fully wired Controller. cpus and mem are required and
// must already be fully formed: each CPU's TCTX is expected to have been
// built against an IRQLine of the caller's choosing (see NewIRQLine)
// before it is handed to xive through the CPUEnumerator. A nil
// collaborator is a construction-time error, matching machine.New's
// validate-first, fail-clean convention.
func New(cfg Config, cpus CPUEnumerator, mem GuestMemory) (*Controller, error) {
	if cpus == nil {
		return nil, fmt.Errorf("xive: CPUEnumerator is required")
	}

	if mem == nil {
		return nil, fmt.Errorf("xive: GuestMemory is required")
	}

	logger := ratelog.New("xive")

	fab := fabric.New()

	for cpu := 0; cpu < cpus.NumCPUs(); cpu++ {
		tc := cpus.ThreadContext(cpu)
		if tc == nil {
			return nil, fmt.Errorf("xive: CPUEnumerator returned a nil TCTX for cpu %d", cpu)
		}

		if err := fab.Register(cpu, tc); err != nil {
			return nil, fmt.Errorf("xive: registering cpu %d: %w", cpu, err)
		}
	}

	ives := newMemIVETable()
	eqs := newMemEQTable()
	vps := newMemVPTable(cfg.NrVPs)

	ivseCfg := ivse.Config{NrIRQs: cfg.NrIRQs, ESBShift: cfg.ESBShift, ESBFlags: cfg.ESBFlags}

	src, err := ivse.New(ivseCfg, fab, logger)
	if err != nil {
		return nil, fmt.Errorf("xive: event source: %w", err)
	}

	pres, err := presenter.New(fab, vps)
	if err != nil {
		return nil, fmt.Errorf("xive: presenter: %w", err)
	}

	rtr, err := router.New(cfg.Block, ives, eqs, &dmaWriter{mem}, pres, logger)
	if err != nil {
		return nil, fmt.Errorf("xive: router: %w", err)
	}

	eqSrc, err := eqesb.New(eqesb.Config{Block: cfg.Block, NrEQs: cfg.NrEQs, ESBShift: cfg.EQESBShift}, eqs, logger)
	if err != nil {
		return nil, fmt.Errorf("xive: eq esb source: %w", err)
	}

	fab.Attach(rtr)

	c := &Controller{
		cfg:    cfg,
		ivse:   src,
		router: rtr,
		pres:   pres,
		eqesb:  eqSrc,
		fabric: fab,
		ives:   ives,
		eqs:    eqs,
		vps:    vps,
		cpus:   cpus,
		logger: logger,
	}

	return c, nil
}

// Reset restores the event source and every registered thread context to
// their power-on state. Descriptor tables (IVE/EQ/VP) are left untouched:
// they are configuration the surrounding machine model owns, not
// transient interrupt state.
func (c *Controller) Reset() {
	c.ivse.Reset()

	c.fabric.Each(func(_ int, tc *tctx.TCTX) {
		tc.Reset()
	})
}

// SetIRQ raises or lowers an event source line (MSI edge or LSI level,
// per the source's own configuration).
func (c *Controller) SetIRQ(srcno uint32, level bool) {
	c.ivse.SetIRQ(srcno, level)
}

// SetLSI marks srcno as level-sensitive (LSI) rather than the MSI default.
func (c *Controller) SetLSI(srcno uint32, lsi bool) {
	c.ivse.SetLSI(srcno, lsi)
}

// SetIVE installs or replaces the IVE for lisn.
func (c *Controller) SetIVE(lisn uint32, ive desc.IVE) {
	c.ives.Set(lisn, ive)
}

// SetEQ installs or replaces the EQ descriptor at (block, index).
func (c *Controller) SetEQ(blk, idx uint32, eq desc.EQ) {
	c.eqs.SetEQ(blk, idx, eq)
}

// SetVP installs or replaces the VP descriptor at (block, index).
func (c *Controller) SetVP(blk, idx uint32, vp desc.VP) {
	c.vps.SetVP(blk, idx, vp)
}

// RegisterRegions registers the ESB, per-CPU TIMA, and EQ ESB MMIO
// regions with reg.
func (c *Controller) RegisterRegions(reg MMIORegistrar) error {
	if err := reg.RegisterMMIORegion(c.cfg.BaseESB, c.ivse.RegionSize(), c.ivse); err != nil {
		return fmt.Errorf("xive: registering ESB region: %w", err)
	}

	if err := reg.RegisterMMIORegion(c.cfg.BaseEQESB, c.eqesb.RegionSize(), c.eqesb); err != nil {
		return fmt.Errorf("xive: registering EQ ESB region: %w", err)
	}

	for cpu := 0; cpu < c.cpus.NumCPUs(); cpu++ {
		tc := c.cpus.ThreadContext(cpu)
		base := c.cfg.BaseTIMA + uint64(cpu)*TIMARegionSize

		rw := &timaRegion{tc: tc, logger: c.logger}
		if err := reg.RegisterMMIORegion(base, TIMARegionSize, rw); err != nil {
			return fmt.Errorf("xive: registering TIMA region for cpu %d: %w", cpu, err)
		}
	}

	return nil
}

// dmaWriter adapts the external GuestMemory collaborator (WriteAt-
// shaped, matching machine.Machine.WriteAt) to router.GuestMemory's
// narrower big-endian word write.
type dmaWriter struct {
	mem GuestMemory
}

func (d *dmaWriter) WriteUint32(addr uint64, v uint32) error {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}

	n, err := d.mem.WriteAt(b, int64(addr))
	if err != nil {
		return fmt.Errorf("xive: dma write at %#x: %w", addr, err)
	}

	if n != len(b) {
		return fmt.Errorf("xive: short dma write at %#x: wrote %d of %d bytes", addr, n, len(b))
	}

	return nil
}

// timaRegion presents one CPU's TCTX as a 4-page MMIO ReadWriter. The
// page index is the top two bits of the 16KB region offset.
type timaRegion struct {
	tc     *tctx.TCTX
	logger *ratelog.Logger
}

func (r *timaRegion) page(addr uint64) (tctx.Page, uint64) {
	return tctx.Page(addr / 4096), addr % 4096
}

func (r *timaRegion) Read(addr uint64, size int) uint64 {
	page, offset := r.page(addr)

	return r.tc.Read(r.logger, page, offset, size)
}

func (r *timaRegion) Write(addr uint64, size int, value uint64) {
	page, offset := r.page(addr)
	r.tc.Write(r.logger, page, offset, size, value)
}

// irqAdapter adapts the external per-controller IRQLine (cpu-addressed)
// to tctx.IRQLine's per-instance Raise/Lower, for use by a caller that
// constructs its own TCTXs outside of this package.
type irqAdapter struct {
	cpu   int
	lines IRQLine
}

// NewIRQLine returns a tctx.IRQLine bound to one CPU index, for callers
// building TCTXs against an xive.IRQLine collaborator.
func NewIRQLine(cpu int, lines IRQLine) tctx.IRQLine {
	return &irqAdapter{cpu: cpu, lines: lines}
}

func (a *irqAdapter) Raise() error { return a.lines.Raise(a.cpu) }
func (a *irqAdapter) Lower() error { return a.lines.Lower(a.cpu) }
