package desc

// VP is the Virtual Processor descriptor. Only w0 (VALID) and w4 (backlog
// IPB, used when the presenter finds no dispatched thread context) are
// modeled; logical-server/block-group fields are out of scope per spec
// Non-goals.
type VP struct {
	W0 uint32
	W4 uint32
}

const vpW0Valid = uint32(1) << 31

func (v VP) Valid() bool { return v.W0&vpW0Valid != 0 }

func NewVP(valid bool) VP {
	var v VP
	if valid {
		v.W0 |= vpW0Valid
	}

	return v
}

// SetBacklogBit ORs a priority's bit into the backlog IPB (w4's low byte),
// the same encoding tctx.TCTX uses for its own IPB register: bit
// (7-priority) set means that priority is pending.
func (v *VP) SetBacklogBit(priority uint8) {
	v.W4 |= uint32(1) << (7 - priority)
}

// BacklogIPB returns the low byte of w4 as the backlog IPB byte.
func (v VP) BacklogIPB() uint8 { return uint8(v.W4) }
