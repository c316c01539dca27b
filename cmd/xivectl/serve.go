package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/xive-go/xive/tctx"
	"github.com/xive-go/xive/xive"
	"golang.org/x/sync/errgroup"
)

// ServeCmd runs a Controller in the foreground, accepting "trigger <lisn>"
// / "lower <lisn>" lines on stdin and periodically reporting delivery
// counts, the same errgroup.Group join VMM.runRestoredVM uses to collect
// its per-vCPU goroutines -- here joining a console reader and a stats
// reporter instead.
type ServeCmd struct {
	controllerConfig

	StatsInterval time.Duration `default:"5s" help:"how often to report IRQ counts"`
}

func (s *ServeCmd) Run() error {
	c, cpus, mem, _, err := s.controllerConfig.build()
	if err != nil {
		return err
	}
	defer mem.Close()

	cpus.tcs[0].SetCPPR(tctx.OS, 0xFF)
	cpus.tcs[0].PushOSCam(0, 0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.reportStats(ctx, cpus.line) })
	g.Go(func() error { return s.readCommands(ctx, c) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (s *ServeCmd) reportStats(ctx context.Context, line *irqCounter) error {
	ticker := time.NewTicker(s.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			log.Printf("xivectl: raised=%d lowered=%d", line.raised.Load(), line.lowered.Load())
		}
	}
}

// readCommands drains stdin the way VMM.Boot's console goroutine drains
// os.Stdin into the serial input channel, translating lines into SetIRQ
// calls against the running Controller instead of injecting serial bytes.
func (s *ServeCmd) readCommands(ctx context.Context, c *xive.Controller) error {
	in := bufio.NewScanner(os.Stdin)

	for in.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fields := strings.Fields(in.Text())
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: trigger <lisn> | lower <lisn>")

			continue
		}

		lisn, err := strconv.ParseUint(fields[1], 0, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad lisn %q: %v\n", fields[1], err)

			continue
		}

		switch fields[0] {
		case "trigger":
			c.SetIRQ(uint32(lisn), true)
		case "lower":
			c.SetIRQ(uint32(lisn), false)
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
		}
	}

	if err := in.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	return nil
}
