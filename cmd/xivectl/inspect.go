package main

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// disassemble decodes one x86-64 instruction from code (which should start
// at the reported PC) and renders it in GNU syntax, the same
// x86asm.Decode + x86asm.GNUSyntax pairing machine/debug_amd64.go's Inst
// uses to annotate a guest trap. xivectl has no real faulting instruction
// stream to read, so `dump --code` uses this against caller-supplied bytes
// (e.g. captured from a guest memory dump) instead of a live vCPU.
func disassemble(code []byte, pc uint64) (string, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "", fmt.Errorf("decoding %#02x: %w", code, err)
	}

	return x86asm.GNUSyntax(inst, pc, nil), nil
}
