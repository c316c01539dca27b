package main

import (
	"log"
	"sync/atomic"

	"github.com/xive-go/xive/tctx"
	"github.com/xive-go/xive/xive"
)

// cpuSet is the demo harness's xive.CPUEnumerator: n threads, each with its
// own TCTX wired against an irqCounter line. There is no real vCPU loop
// behind it, unlike machine.Machine's vcpuFds -- xivectl only drives the
// interrupt controller itself.
type cpuSet struct {
	tcs  []*tctx.TCTX
	line *irqCounter
}

func newCPUSet(n int) *cpuSet {
	s := &cpuSet{line: &irqCounter{}}

	for cpu := 0; cpu < n; cpu++ {
		s.tcs = append(s.tcs, tctx.New(cpu, xive.NewIRQLine(cpu, s.line)))
	}

	return s
}

func (s *cpuSet) NumCPUs() int                     { return len(s.tcs) }
func (s *cpuSet) ThreadContext(cpu int) *tctx.TCTX { return s.tcs[cpu] }

// irqCounter is the demo xive.IRQLine: it has no real CPU to interrupt, so
// it just counts and logs, the way a bring-up harness would before a real
// IRQ controller exists downstream.
type irqCounter struct {
	raised  atomic.Int64
	lowered atomic.Int64
}

func (c *irqCounter) Raise(cpu int) error {
	c.raised.Add(1)
	log.Printf("xivectl: IRQ raised on cpu %d", cpu)

	return nil
}

func (c *irqCounter) Lower(cpu int) error {
	c.lowered.Add(1)
	log.Printf("xivectl: IRQ lowered on cpu %d", cpu)

	return nil
}
