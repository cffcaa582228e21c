// Originator sends the fixed request sequence through the relay.
//
// Usage:
//
//	originator [flags] <filename>
//
// Requests alternate between write (even index) and read (odd index); one
// request (-invalid-index) is replaced by a malformed packet. A summary table
// is printed when the run ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/1ureka/tftprelay/internal/app"
	"github.com/1ureka/tftprelay/internal/config"
	"github.com/1ureka/tftprelay/internal/originator"
	"github.com/1ureka/tftprelay/internal/transport"
	"github.com/1ureka/tftprelay/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine, config.RoleOriginator)
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <filename>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	util.SetRole("originator")
	if *debugMode {
		util.EnableDebug()
	}

	if flag.NArg() != 1 {
		util.LogError("expected exactly one argument: the filename to request")
		flag.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	pterm.Info.Printfln("Originator v%s", version)

	results, err := app.RunOriginator(ctx, cfg, flag.Arg(0))
	if err != nil {
		if transport.IsBindError(err) {
			util.LogError("failed to open socket: %v", err)
		} else {
			util.LogError("%v", err)
		}
		os.Exit(1)
	}

	pterm.Println()
	if err := originator.RenderSummary(results); err != nil {
		util.LogWarning("failed to render summary: %v", err)
	}

	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	util.LogSuccess("%d of %d requests answered", ok, len(results))
}
