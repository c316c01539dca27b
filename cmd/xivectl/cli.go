package main

import (
	"encoding/hex"
	"fmt"

	"github.com/xive-go/xive/desc"
	"github.com/xive-go/xive/tctx"
	"github.com/xive-go/xive/xive"
)

// CLI is xivectl's top-level kong command set, the same Run()-per-
// subcommand shape flag/runs.go wires BootCMD and ProbeCMD through.
type CLI struct {
	Trigger TriggerCmd `cmd:"" help:"raise or lower an event source and report where it was delivered"`
	Dump    DumpCmd    `cmd:"" help:"print thread-context register state, or disassemble a byte sequence"`
	Serve   ServeCmd   `cmd:"" help:"run a background XIVE instance, accepting trigger commands on stdin"`
}

// controllerConfig is the construction-time sizing every subcommand needs;
// each Cmd embeds its own copy rather than reaching into a shared parent,
// matching BootCMD/ProbeCMD's fully self-contained field sets.
type controllerConfig struct {
	NrIRQs  uint32 `default:"16" help:"number of event sources"`
	NrEQs   uint32 `default:"8" help:"number of event queues"`
	NrVPs   uint32 `default:"4" help:"number of virtual processors"`
	NCPUs   int    `default:"1" help:"number of emulated threads"`
	MemSize string `default:"64m" help:"guest memory region size, as num[gGmMkK]"`
}

const (
	baseESB   = 0x1000_0000
	baseTIMA  = 0x2000_0000
	baseEQESB = 0x3000_0000
	esbShift  = 12 // single-page layout: one page serves trigger and management
)

// build assembles a fresh Controller, CPU set, guest memory region, and
// MMIO bus from cfg. The caller owns closing mem.
func (cfg controllerConfig) build() (*xive.Controller, *cpuSet, *guestMemory, *mmioBus, error) {
	size, err := parseSize(cfg.MemSize, "m")
	if err != nil {
		return nil, nil, nil, nil, err
	}

	mem, err := newGuestMemory(size)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	cpus := newCPUSet(cfg.NCPUs)

	c, err := xive.New(xive.Config{
		NrIRQs:     cfg.NrIRQs,
		ESBShift:   esbShift,
		NrEQs:      cfg.NrEQs,
		EQESBShift: 12,
		NrVPs:      cfg.NrVPs,
		BaseESB:    baseESB,
		BaseTIMA:   baseTIMA,
		BaseEQESB:  baseEQESB,
	}, cpus, mem)
	if err != nil {
		mem.Close()

		return nil, nil, nil, nil, err
	}

	bus := &mmioBus{}
	if err := c.RegisterRegions(bus); err != nil {
		mem.Close()

		return nil, nil, nil, nil, err
	}

	return c, cpus, mem, bus, nil
}

// TriggerCmd wires one LISN to one EQ/VP pair, resets its ESB, then raises
// or lowers it, reporting the resulting PIPR and the word at the queue's
// base address (the DMA word the router pushed, if it delivered, else
// whatever memory held) -- the manual equivalent of scenario 1 in
// router_test.go, driven from a terminal instead of a table test.
type TriggerCmd struct {
	controllerConfig

	LISN  uint32 `arg:"" help:"event source number to trigger"`
	Level bool   `default:"true" help:"true raises (or triggers, for MSI); false lowers (LSI only)"`

	EQBlock   uint32 `default:"0"`
	EQIndex   uint32 `default:"0"`
	Priority  uint8  `default:"4" help:"delivery priority written into the EQ descriptor"`
	NVTBlock  uint32 `default:"0"`
	NVTIndex  uint32 `default:"0"`
	QueueAddr uint64 `default:"0x1000" help:"guest-physical base address of the backing EQ"`
	QueueSize uint32 `default:"0" help:"EQ_SIZE field written into the EQ descriptor"`
}

func (t *TriggerCmd) Run() error {
	c, cpus, mem, bus, err := t.controllerConfig.build()
	if err != nil {
		return err
	}
	defer mem.Close()

	cpus.tcs[0].SetCPPR(tctx.OS, 0xFF)
	cpus.tcs[0].PushOSCam(t.NVTBlock, t.NVTIndex)

	c.SetIVE(t.LISN, desc.NewIVE(true, false, t.EQBlock, t.EQIndex, t.LISN))
	c.SetEQ(t.EQBlock, t.EQIndex, desc.NewEQ(true, true, true,
		t.QueueSize, t.QueueAddr, t.NVTBlock, t.NVTIndex, t.Priority))

	// A freshly reset source's ESB sits at OFF; a guest must SET_PQ=00
	// before a trigger forwards (spec scenario 1's MMIO sequence).
	pageSize := uint64(1) << esbShift
	if err := bus.Write(baseESB+uint64(t.LISN)*pageSize+0xC00, 8, 0); err != nil {
		return err
	}

	c.SetIRQ(t.LISN, t.Level)

	fmt.Printf("cpu 0: PIPR=%d CPPR=%d NSR=%#x\n",
		cpus.tcs[0].PIPR(tctx.OS), cpus.tcs[0].CPPR(tctx.OS), cpus.tcs[0].NSR(tctx.OS))

	if word, ok := mem.words(t.QueueAddr); ok {
		fmt.Printf("eq push at %#x: %#08x\n", t.QueueAddr, word)
	}

	return nil
}

// words is a dump helper reading back the 4 bytes the router DMA'd.
func (g *guestMemory) words(off uint64) (uint32, bool) {
	b := make([]byte, 4)
	if _, err := g.ReadAt(b, int64(off)); err != nil {
		return 0, false
	}

	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}

// DumpCmd either prints one thread context's register state, or, with
// --code, disassembles a hex byte string the way machine/debug_amd64.go's
// Inst annotates a guest trap.
type DumpCmd struct {
	controllerConfig

	CPU  int    `default:"0" help:"thread index to dump"`
	Code string `optional:"" help:"hex-encoded instruction bytes to disassemble instead of dumping state"`
	PC   uint64 `default:"0" help:"program counter to render the disassembly against"`
}

func (d *DumpCmd) Run() error {
	if d.Code != "" {
		code, err := hex.DecodeString(d.Code)
		if err != nil {
			return fmt.Errorf("xivectl: %q: %w", d.Code, err)
		}

		asm, err := disassemble(code, d.PC)
		if err != nil {
			return err
		}

		fmt.Println(asm)

		return nil
	}

	_, cpus, mem, _, err := d.controllerConfig.build()
	if err != nil {
		return err
	}
	defer mem.Close()

	if d.CPU < 0 || d.CPU >= cpus.NumCPUs() {
		return fmt.Errorf("xivectl: cpu %d out of range (0..%d)", d.CPU, cpus.NumCPUs()-1)
	}

	tc := cpus.tcs[d.CPU]
	for _, r := range []tctx.Ring{tctx.User, tctx.OS, tctx.Pool, tctx.Phys} {
		fmt.Printf("%-7v CPPR=%#02x PIPR=%#02x IPB=%#02x NSR=%#02x\n",
			r, tc.CPPR(r), tc.PIPR(r), tc.IPB(r), tc.NSR(r))
	}

	return nil
}
