// Command xivectl is a terminal harness for the XIVE interrupt controller:
// trigger sources, dump thread-context state, or run one in the
// background and feed it commands over stdin. It exists for manual
// exercise and as an integration fixture, not as a full guest hypervisor.
package main

import (
	"github.com/alecthomas/kong"
)

func main() {
	c := CLI{}

	ctx := kong.Parse(&c,
		kong.Name("xivectl"),
		kong.Description("inspect and drive an emulated XIVE interrupt controller"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	ctx.FatalIfErrorf(ctx.Run())
}
