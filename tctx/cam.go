package tctx

// CAM line bit positions. QW1/QW2/QW3 share the "valid bit in bit 31,
// 23-bit (vp_blk<<19)|vp_idx CAM in the low bits" shape; QW0 is special:
// it carries only a VU bit plus a logical-server field, and relies on
// QW1's VO bit (not its own) to decide validity (spec section 4.3).
const (
	camValidBit = uint32(1) << 31
	camMask     = 0x7FFFFF // 23 bits: 4-bit block + 19-bit index

	userVUBit       = uint32(1) << 31
	userLogServMask = 0xFFFF
)

// MatchPhys implements the QW3_HV_PHYS ring match rule: VT set and the
// hardwired CAM equals the (single-chip) encoding of (vpBlk, vpIdx).
func (t *TCTX) MatchPhys(vpBlk, vpIdx uint32) bool {
	w := t.Word2(Phys)

	return w&camValidBit != 0 && w&camMask == osCam(vpBlk, vpIdx)
}

// MatchPool implements the QW2_HV_POOL ring match rule.
func (t *TCTX) MatchPool(vpBlk, vpIdx uint32) bool {
	w := t.Word2(Pool)

	return w&camValidBit != 0 && w&camMask == osCam(vpBlk, vpIdx)
}

// MatchOS implements the QW1_OS ring match rule.
func (t *TCTX) MatchOS(vpBlk, vpIdx uint32) bool {
	w := t.Word2(OS)

	return w&camValidBit != 0 && w&camMask == osCam(vpBlk, vpIdx)
}

// MatchUser implements the QW0_USER ring match rule (format 1 only): the
// OS ring's VO bit and OS CAM gate it (EBB delivery requires the OS ring
// to also be dispatched for the same VP), and the user ring's own VU bit
// and logical-server field must additionally match.
func (t *TCTX) MatchUser(vpBlk, vpIdx, logServerID uint32) bool {
	if !t.MatchOS(vpBlk, vpIdx) {
		return false
	}

	u := t.Word2(User)

	return u&userVUBit != 0 && u&userLogServMask == logServerID&userLogServMask
}

// SetPoolCam pushes the QW2_HV_POOL CAM line.
func (t *TCTX) SetPoolCam(vpBlk, vpIdx uint32) {
	t.setWord2(Pool, camValidBit|osCam(vpBlk, vpIdx))
}

// ClearPoolCam invalidates the QW2_HV_POOL ring.
func (t *TCTX) ClearPoolCam() {
	t.setWord2(Pool, 0)
}

// ClearOSCam invalidates the QW1_OS ring.
func (t *TCTX) ClearOSCam() {
	t.setWord2(OS, 0)
}

// SetUserCam pushes the QW0_USER ring's VU bit and logical-server field.
func (t *TCTX) SetUserCam(logServerID uint32) {
	t.setWord2(User, userVUBit|(logServerID&userLogServMask))
}

// ClearUserCam invalidates the QW0_USER ring.
func (t *TCTX) ClearUserCam() {
	t.setWord2(User, 0)
}
