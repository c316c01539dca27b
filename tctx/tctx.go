// Package tctx implements the Thread Interrupt Management Context: the
// per-CPU register bank of four 16-byte rings, and the priority
// arithmetic (IPB/PIPR/CPPR/NSR) that decides whether an output line is
// asserted. The TIMA MMIO view over this state lives in tima.go.
package tctx

import "encoding/binary"

// Ring identifies one of the four 16-byte register rings. The numeric
// value doubles as its privilege level (HW >= HV >= OS >= USER), matching
// spec section 4.3's partial order.
type Ring int

const (
	User Ring = iota
	OS
	Pool
	Phys
)

func (r Ring) String() string {
	switch r {
	case User:
		return "QW0_USER"
	case OS:
		return "QW1_OS"
	case Pool:
		return "QW2_HV_POOL"
	case Phys:
		return "QW3_HV_PHYS"
	}

	return "INVALID_RING"
}

const (
	ringSize = 16
	numRings = 4

	offNSR   = 0
	offCPPR  = 1
	offIPB   = 2
	offLSMFB = 3
	offACK   = 4
	offINC   = 5
	offAGE   = 6
	offPIPR  = 7
	offWord2 = 8
)

// NSREO is the NSR "exception outstanding" bit: set, and the output line
// asserted, iff PIPR < CPPR for that ring.
const NSREO = 0x80

// MaxPrio is the lowest (least favored) interrupt priority; priority 0xFF
// is the reserved "no priority"/masked sentinel.
const MaxPrio = 7

// IRQLine is the per-thread output line into the host CPU model.
type IRQLine interface {
	Raise() error
	Lower() error
}

// TCTX is one CPU's Thread Interrupt Management Context.
type TCTX struct {
	regs [numRings * ringSize]byte
	line IRQLine

	// hwCam is this thread's hardwired CAM value (QW3_HV_PHYS), derived
	// once at construction from the thread's physical identity. Block-
	// group addressing is out of scope (spec Non-goals), so this is a
	// flat 23-bit value with no multi-chip component.
	hwCam uint32

	asserted bool // whether NSREO is currently reflected on the line
}

// New creates a TCTX for one CPU thread. cpu seeds the hardwired CAM line
// (QW3_HV_PHYS) the way a real thread's PIR register would.
func New(cpu int, line IRQLine) *TCTX {
	t := &TCTX{line: line, hwCam: uint32(cpu) & 0x7F}
	t.Reset()

	return t
}

// Reset zeroes the register file, seeds LSMFB/ACK_CNT/AGE to 0xFF per
// ring, recomputes PIPR from the (now-zero) IPB, and pushes an initial OS
// CAM line so the thread starts dispatched in non-hypervisor mode, the
// same implicit VP==thread mapping the reference emulator establishes at
// boot before any hypervisor software reprograms it.
func (t *TCTX) Reset() {
	for i := range t.regs {
		t.regs[i] = 0
	}

	for r := User; r <= Phys; r++ {
		t.setByte(r, offLSMFB, 0xFF)
		t.setByte(r, offACK, 0xFF)
		t.setByte(r, offAGE, 0xFF)
		t.recomputePIPR(r)
	}

	t.PushOSCam(0, t.hwCam)

	const vtBit = uint32(1) << 31
	t.setWord2(Phys, vtBit|t.hwCam)

	if t.asserted {
		t.lowerLine()
	}
}

func (t *TCTX) ring(r Ring) []byte { return t.regs[int(r)*ringSize : (int(r)+1)*ringSize] }

func (t *TCTX) getByte(r Ring, off int) byte    { return t.ring(r)[off] }
func (t *TCTX) setByte(r Ring, off int, v byte) { t.ring(r)[off] = v }

func (t *TCTX) NSR(r Ring) byte  { return t.getByte(r, offNSR) }
func (t *TCTX) CPPR(r Ring) byte { return t.getByte(r, offCPPR) }
func (t *TCTX) IPB(r Ring) byte  { return t.getByte(r, offIPB) }
func (t *TCTX) PIPR(r Ring) byte { return t.getByte(r, offPIPR) }

func (t *TCTX) Word2(r Ring) uint32 {
	return binary.BigEndian.Uint32(t.ring(r)[offWord2 : offWord2+4])
}

func (t *TCTX) setWord2(r Ring, v uint32) {
	binary.BigEndian.PutUint32(t.ring(r)[offWord2:offWord2+4], v)
}

// ipbToPIPR returns the priority of the most-favored (lowest-numeric) set
// bit in ipb, encoded as bit (MaxPrio-priority), or 0xFF if ipb is zero.
func ipbToPIPR(ipb byte) byte {
	if ipb == 0 {
		return 0xFF
	}

	for i := 7; i >= 0; i-- {
		if ipb&(1<<uint(i)) != 0 {
			return byte(7 - i)
		}
	}

	return 0xFF // unreachable: ipb != 0 guarantees some bit is set
}

func (t *TCTX) recomputePIPR(r Ring) {
	t.setByte(r, offPIPR, ipbToPIPR(t.IPB(r)))
}

// recheckNotify raises or lowers NSR.EO (and the output line) to match
// whether PIPR < CPPR currently holds for ring r.
func (t *TCTX) recheckNotify(r Ring) {
	exception := t.PIPR(r) < t.CPPR(r)
	nsr := t.NSR(r)

	switch {
	case exception && nsr&NSREO == 0:
		t.setByte(r, offNSR, nsr|NSREO)
		t.raiseLine()
	case !exception && nsr&NSREO != 0:
		t.setByte(r, offNSR, nsr&^NSREO)
		t.lowerLine()
	}
}

func (t *TCTX) raiseLine() {
	if t.asserted {
		return // idempotent: already asserted
	}

	t.asserted = true

	if t.line != nil {
		_ = t.line.Raise()
	}
}

func (t *TCTX) lowerLine() {
	t.asserted = false

	if t.line != nil {
		_ = t.line.Lower()
	}
}

// Deliver ORs priority into ring r's IPB (the presenter's "matched" path),
// recomputes PIPR, and re-checks the notification.
func (t *TCTX) Deliver(r Ring, priority uint8) {
	t.setByte(r, offIPB, t.IPB(r)|(1<<(MaxPrio-priority)))
	t.recomputePIPR(r)
	t.recheckNotify(r)
}

// SetCPPR sets ring r's CPPR and re-checks the notification: lowering
// CPPR can newly expose a pending exception.
func (t *TCTX) SetCPPR(r Ring, v byte) {
	t.setByte(r, offCPPR, v)
	t.recheckNotify(r)
}

// SetPending ORs a priority bit into ring r's IPB directly (the
// SET_xx_PENDING special op), recomputes PIPR, and re-checks.
func (t *TCTX) SetPending(r Ring, priority byte) {
	t.setByte(r, offIPB, t.IPB(r)|(1<<(MaxPrio-priority)))
	t.recomputePIPR(r)
	t.recheckNotify(r)
}

// Accept implements the ACK_xx_REG special op for ring r: lower the
// output line; if NSR.EO was set, copy PIPR into CPPR, clear that
// priority's IPB bit, recompute PIPR, and clear NSR.EO. Returns
// (old_NSR<<8)|new_CPPR, the value the guest reads back.
func (t *TCTX) Accept(r Ring) uint16 {
	oldNSR := t.NSR(r)
	t.lowerLine()

	if oldNSR&NSREO != 0 {
		p := t.PIPR(r)
		t.setByte(r, offCPPR, p)

		if p <= MaxPrio {
			t.setByte(r, offIPB, t.IPB(r)&^(1<<(MaxPrio-p)))
		}

		t.recomputePIPR(r)
		t.setByte(r, offNSR, oldNSR&^NSREO)
	}

	return uint16(oldNSR)<<8 | uint16(t.CPPR(r))
}

// PushOSCam sets the QW1_OS ring's CAM line (VO valid bit + 23-bit OS
// CAM, (vpBlk<<19)|vpIdx) to mark this thread as dispatched for that VP.
func (t *TCTX) PushOSCam(vpBlk uint32, vpIdx uint32) {
	const voBit = uint32(1) << 31

	t.setWord2(OS, voBit|osCam(vpBlk, vpIdx))
}

func osCam(vpBlk, vpIdx uint32) uint32 {
	return ((vpBlk & 0xF) << 19) | (vpIdx & 0x7FFFF)
}
