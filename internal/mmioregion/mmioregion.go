// Package mmioregion implements the small (page, opOffset, size, direction)
// -> handler static table that the TIMA special-operations region, and any
// other XIVE MMIO region that needs per-offset dispatch, is built from.
// It generalizes machine.go's registerIOPortHandler/ioportHandlers array
// one level below the IO-port bus: a handful of entries, searched
// linearly, where lookup time is never the bottleneck.
package mmioregion

// Direction is whether an MMIO access is a load or a store.
type Direction uint8

const (
	Load Direction = iota
	Store
)

// Entry binds one (page, opOffset, size, direction) tuple to a handler.
// Page is an opaque privilege/page identifier; Table does not interpret it
// beyond the Reachable rule supplied at construction, so a single Table
// instance can serve the TIMA, the ESB region, or the EQ ESB region alike.
type Entry struct {
	Page      int
	OpOffset  uint64
	Size      int
	Direction Direction
	Handler   func(data []byte) error
}

// Table is a linear-scan dispatch table plus a page-reachability rule: an
// access from AccessPage may invoke an Entry registered for a different
// Page when Reachable(AccessPage, Entry.Page) returns true. This captures
// TIMA's "a handler on a more-privileged page may also be invoked from a
// less-privileged page" rule without hard-coding it into every region.
type Table struct {
	entries   []Entry
	reachable func(accessPage, entryPage int) bool
}

// New builds a Table. reachable may be nil, in which case only exact page
// matches are dispatched.
func New(reachable func(accessPage, entryPage int) bool) *Table {
	if reachable == nil {
		reachable = func(a, b int) bool { return a == b }
	}

	return &Table{reachable: reachable}
}

// Add registers an entry.
func (t *Table) Add(e Entry) {
	t.entries = append(t.entries, e)
}

// Lookup finds the handler for an access, if any.
func (t *Table) Lookup(accessPage int, opOffset uint64, size int, dir Direction) (func(data []byte) error, bool) {
	for _, e := range t.entries {
		if e.OpOffset != opOffset || e.Size != size || e.Direction != dir {
			continue
		}

		if t.reachable(accessPage, e.Page) {
			return e.Handler, true
		}
	}

	return nil, false
}
