// Responder pulls requests out of the relay and answers them.
//
// Each cycle sends a pull to the relay and answers whatever comes back: Data
// for a read request, Ack for a write request, Error for anything invalid.
// The responder stops after the first invalid request or once its cycle
// budget (-max-cycles) is used up.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/1ureka/tftprelay/internal/app"
	"github.com/1ureka/tftprelay/internal/config"
	"github.com/1ureka/tftprelay/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine, config.RoleResponder)
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	util.SetRole("responder")
	if *debugMode {
		util.EnableDebug()
	}

	if flag.NArg() != 0 {
		util.LogError("responder takes no arguments")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	pterm.Info.Printfln("Responder v%s", version)

	summary, err := app.RunResponder(ctx, cfg)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if summary.Invalid {
		util.LogSuccess("stopped on invalid request after %d cycles", summary.Cycles)
		return
	}
	util.LogSuccess("served %d requests in %d cycles", summary.Served, summary.Cycles)
}
