// Package router implements the Router (IVRE): the LISN -> IVE -> EQ
// lookup chain that pushes event data into a guest-resident queue and, if
// the queue's own ESB allows it, hands the event to the Presenter.
package router

import (
	"github.com/xive-go/xive/desc"
	"github.com/xive-go/xive/internal/ratelog"
)

// IVETable is the pluggable LISN -> IVE lookup a concrete platform
// provides; different chip variants back this with an in-memory array, a
// guest-resident table walked via DMA, or a cached mirror (spec DESIGN
// NOTES, "Polymorphic descriptor storage").
type IVETable interface {
	GetIVE(lisn uint32) (desc.IVE, bool)
}

// EQTable is the pluggable (block, index) -> EQ lookup and update.
type EQTable interface {
	GetEQ(blk, idx uint32) (desc.EQ, bool)
	SetEQ(blk, idx uint32, eq desc.EQ)
}

// GuestMemory is the DMA write channel into guest-resident memory the
// Router uses to push EQ entries.
type GuestMemory interface {
	// WriteUint32 writes v big-endian at guest-physical address addr. An
	// error return models a DMA write failure (e.g. an invalid guest
	// address); the Router logs and drops the notification rather than
	// retrying or propagating the error to the guest.
	WriteUint32(addr uint64, v uint32) error
}

// Presenter is the downstream consumer of a fully-routed notification.
type Presenter interface {
	Notify(format uint8, nvtBlock, nvtIndex uint32, ignore bool, priority uint8, logServerID uint32) error
}

// Router ties an IVE table, an EQ table, guest memory, and a Presenter
// together. eqBlock is this Router's own block number; it is stored but
// not consulted: EQ lookups use the EQ_BLOCK field of the IVE being
// routed, and no multi-chip block-group routing is done.
type Router struct {
	eqBlock uint32

	ive  IVETable
	eq   EQTable
	mem  GuestMemory
	pres Presenter

	logger *ratelog.Logger
}

// New constructs a Router. All four collaborators are required; a nil
// collaborator is a construction-time error surfaced to the caller rather
// than a deferred nil-pointer panic.
func New(eqBlock uint32, ive IVETable, eq EQTable, mem GuestMemory, pres Presenter, logger *ratelog.Logger) (*Router, error) {
	switch {
	case ive == nil:
		return nil, errRequired("IVETable")
	case eq == nil:
		return nil, errRequired("EQTable")
	case mem == nil:
		return nil, errRequired("GuestMemory")
	case pres == nil:
		return nil, errRequired("Presenter")
	}

	return &Router{eqBlock: eqBlock, ive: ive, eq: eq, mem: mem, pres: pres, logger: logger}, nil
}

func errRequired(what string) error {
	return &requiredError{what}
}

type requiredError struct{ what string }

func (e *requiredError) Error() string { return "router: " + e.what + " is required" }

// Notify is the entry point from any Event Source: walk IVE[lisn] and, if
// valid and unmasked, continue into eq_notify.
func (r *Router) Notify(lisn uint32) {
	ive, ok := r.ive.GetIVE(lisn)
	if !ok || !ive.Valid() {
		r.logger.Printf("router: notify for invalid/absent lisn %d", lisn)

		return
	}

	if ive.Masked() {
		return // notification is considered complete
	}

	r.eqNotify(ive.EQBlock(), ive.EQIndex(), ive.EQData())
}

// eqNotify implements the queue-push + queue-ESB-coalesce + presenter
// dispatch chain (spec section 4.4).
func (r *Router) eqNotify(blk, idx uint32, data uint32) {
	eq, ok := r.eq.GetEQ(blk, idx)
	if !ok || !eq.Valid() {
		r.logger.Printf("router: eq_notify for invalid/absent eq blk=%d idx=%d", blk, idx)

		return
	}

	if eq.Enqueue() {
		if !r.pushEntry(&eq, data) {
			return // DMA failure: drop the notification, no further steps
		}
	}

	if !eq.UcondNotify() {
		next, forward := eq.ESn().Trigger()
		eq.SetESn(next)
		r.eq.SetEQ(blk, idx, eq)

		if !forward {
			return
		}
	} else {
		r.eq.SetEQ(blk, idx, eq)
	}

	format := eq.Format()
	priority := eq.Priority()

	if format == 0 && priority == 0xFF {
		return // masked
	}

	err := r.pres.Notify(format, eq.NVTBlock(), eq.NVTIndex(), eq.Ignore(), priority, eq.LogServerID())
	if err != nil {
		r.logger.Printf("router: presenter notify failed for eq blk=%d idx=%d: %v", blk, idx, err)
	}
}

// pushEntry writes one big-endian (generation<<31)|(data&0x7fffffff) word
// at qaddr_base + (qindex << 2), advances qindex modulo the queue's
// entry count, and flips the generation bit on wrap. It reports false on
// a DMA failure, leaving qindex/generation untouched.
func (r *Router) pushEntry(eq *desc.EQ, data uint32) bool {
	idx := eq.PageOff()
	addr := eq.QAddr() + uint64(idx)*4

	word := data & 0x7fffffff
	if eq.Generation() {
		word |= 0x80000000
	}

	if err := r.mem.WriteUint32(addr, word); err != nil {
		r.logger.Printf("router: dma write failed at %#x: %v", addr, err)

		return false
	}

	idx++
	if idx >= eq.NumEntries() {
		idx = 0
		eq.SetGeneration(!eq.Generation())
	}

	eq.SetPageOff(idx)

	return true
}
