// Package fabric implements the per-CPU TCTX registry and the
// notification sink every Event Source forwards LISNs to. It replaces a
// global singleton or back-pointer cycle with an explicit registration
// surface: CPUs register their TCTX at construction, the Router and
// Presenter reach them only through this registry, and removal happens
// on CPU teardown.
package fabric

import (
	"fmt"
	"sync"

	"github.com/xive-go/xive/tctx"
)

// Router is the notification consumer a Fabric forwards LISNs to.
type Router interface {
	Notify(lisn uint32)
}

// Registry holds the live (cpu index -> *tctx.TCTX) mapping the Presenter
// scans during a match.
type Registry struct {
	mu    sync.RWMutex
	byCPU map[int]*tctx.TCTX
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byCPU: make(map[int]*tctx.TCTX)}
}

// Register binds cpu to its TCTX. Registering the same cpu index twice is
// a construction-time error: each CPU owns exactly one thread context.
func (r *Registry) Register(cpu int, tc *tctx.TCTX) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCPU[cpu]; exists {
		return fmt.Errorf("fabric: cpu %d already registered", cpu)
	}

	r.byCPU[cpu] = tc

	return nil
}

// Unregister removes cpu's thread context, e.g. on CPU hot-unplug.
func (r *Registry) Unregister(cpu int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byCPU, cpu)
}

// NumCPUs returns the number of currently-registered thread contexts.
func (r *Registry) NumCPUs() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byCPU)
}

// ThreadContext returns cpu's TCTX, or nil if no such CPU is registered.
func (r *Registry) ThreadContext(cpu int) *tctx.TCTX {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byCPU[cpu]
}

// Each calls fn once per registered TCTX, in no particular order, while
// holding only a read lock: fn must not call back into Register or
// Unregister.
func (r *Registry) Each(fn func(cpu int, tc *tctx.TCTX)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for cpu, tc := range r.byCPU {
		fn(cpu, tc)
	}
}

// Fabric is the one process-wide notification sink shared, by a
// non-owning reference, with every Event Source. It forwards LISNs to a
// Router attached after construction (the Router and the Fabric have a
// construction-order cycle: the Router's Presenter needs the Registry,
// the Sources need the Fabric, and the Fabric needs the Router).
type Fabric struct {
	*Registry

	mu     sync.RWMutex
	router Router
}

// New returns a Fabric with an empty Registry and no attached Router.
func New() *Fabric {
	return &Fabric{Registry: NewRegistry()}
}

// Attach binds the Router a Notify call forwards to.
func (f *Fabric) Attach(r Router) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.router = r
}

// Notify forwards lisn to the attached Router. Calling Notify before
// Attach is an internal inconsistency (the surrounding wiring is
// incomplete); it panics rather than silently dropping the notification.
func (f *Fabric) Notify(lisn uint32) {
	f.mu.RLock()
	r := f.router
	f.mu.RUnlock()

	if r == nil {
		panic("fabric: Notify called before a Router was attached")
	}

	r.Notify(lisn)
}
