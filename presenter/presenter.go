// Package presenter implements the Presenter (IVPE): matching a routed
// notification's target virtual processor against every CPU's dispatched
// thread context, and falling back to the VP's own backlog IPB when no
// thread is currently dispatched for it.
package presenter

import (
	"errors"
	"fmt"

	"github.com/xive-go/xive/desc"
	"github.com/xive-go/xive/tctx"
)

// ErrCamIgnoreUnsupported is returned for any notification, of either
// format, with cam_ignore (logical-server notification) set: block-group/cam_ignore
// routing is out of scope (spec Non-goals), and a faithful port surfaces
// this explicitly rather than silently mismatching or dropping it.
var ErrCamIgnoreUnsupported = errors.New("presenter: cam_ignore (logical-server) notify not supported")

// ErrDuplicateCAMMatch marks the modeling error of more than one TCTX
// claiming the same (vp_blk, vp_idx): only one thread may ever be
// dispatched for a given virtual processor.
var ErrDuplicateCAMMatch = errors.New("presenter: more than one thread context matched")

// Registry enumerates the live thread contexts to scan. fabric.Registry
// satisfies this directly.
type Registry interface {
	Each(fn func(cpu int, tc *tctx.TCTX))
}

// VPTable is the pluggable VP descriptor lookup and update used for the
// zero-match backlog path.
type VPTable interface {
	GetVP(blk, idx uint32) (desc.VP, bool)
	SetVP(blk, idx uint32, vp desc.VP)
}

// Presenter matches routed notifications to dispatched thread contexts.
type Presenter struct {
	registry Registry
	vp       VPTable
}

// New constructs a Presenter over registry and vp, both required.
func New(registry Registry, vp VPTable) (*Presenter, error) {
	if registry == nil {
		return nil, fmt.Errorf("presenter: registry is required")
	}

	if vp == nil {
		return nil, fmt.Errorf("presenter: vp table is required")
	}

	return &Presenter{registry: registry, vp: vp}, nil
}

// Notify implements the match step (spec section 4.5): for format 0,
// rings are tried in decreasing privilege order (HV_PHYS -> HV_POOL ->
// OS); cam_ignore is rejected outright. For format 1, only the USER ring
// is tried.
func (p *Presenter) Notify(format uint8, nvtBlock, nvtIndex uint32, ignore bool, priority uint8, logServerID uint32) error {
	if ignore {
		return ErrCamIgnoreUnsupported
	}

	var (
		matched     *tctx.TCTX
		matchedRing tctx.Ring
	)

	dup := false

	p.registry.Each(func(_ int, tc *tctx.TCTX) {
		ring, ok := matchRing(tc, format, nvtBlock, nvtIndex, logServerID)
		if !ok {
			return
		}

		if matched != nil {
			dup = true

			return
		}

		matched, matchedRing = tc, ring
	})

	if dup {
		return ErrDuplicateCAMMatch
	}

	if matched == nil {
		p.recordBacklog(nvtBlock, nvtIndex, priority)

		return nil
	}

	matched.Deliver(matchedRing, priority)

	return nil
}

// matchRing tries a thread context's rings in the decreasing-privilege
// order the spec prescribes and reports the first ring that matches, if
// any.
func matchRing(tc *tctx.TCTX, format uint8, blk, idx, logServerID uint32) (tctx.Ring, bool) {
	if format == 1 {
		if tc.MatchUser(blk, idx, logServerID) {
			return tctx.User, true
		}

		return 0, false
	}

	switch {
	case tc.MatchPhys(blk, idx):
		return tctx.Phys, true
	case tc.MatchPool(blk, idx):
		return tctx.Pool, true
	case tc.MatchOS(blk, idx):
		return tctx.OS, true
	default:
		return 0, false
	}
}

func (p *Presenter) recordBacklog(blk, idx uint32, priority uint8) {
	vp, ok := p.vp.GetVP(blk, idx)
	if !ok {
		return
	}

	vp.SetBacklogBit(priority)
	p.vp.SetVP(blk, idx, vp)
}
