package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// guestMemory is an anonymous mmap-backed region standing in for the
// guest-physical address space the Router's EQ pushes DMA into, the same
// syscall.Mmap(-1, 0, size, ...) shape memory/memory.go uses for the real
// VM's RAM, ported to golang.org/x/sys/unix.
type guestMemory struct {
	buf []byte
}

func newGuestMemory(size int) (*guestMemory, error) {
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}

	return &guestMemory{buf: buf}, nil
}

// WriteAt implements xive.GuestMemory: the Router's only write path into
// guest memory, used for the EQ circular-queue push.
func (g *guestMemory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(g.buf) {
		return 0, fmt.Errorf("write at %#x: out of range (region is %d bytes)", off, len(g.buf))
	}

	return copy(g.buf[off:], p), nil
}

// ReadAt supports xivectl dump's EQ inspection: reading back what the
// router pushed, without round-tripping through a real guest.
func (g *guestMemory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(g.buf) {
		return 0, fmt.Errorf("read at %#x: out of range (region is %d bytes)", off, len(g.buf))
	}

	return copy(p, g.buf[off:]), nil
}

func (g *guestMemory) Close() error {
	if g.buf == nil {
		return nil
	}

	err := unix.Munmap(g.buf)
	g.buf = nil

	return err
}
