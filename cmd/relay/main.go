// Relay sits between the originator and the responder.
//
// Originator packets arriving on the client port are queued and acknowledged;
// the responder pulls them through the server port and its replies travel
// back the same way. The relay runs for a fixed lifetime (-lifetime), can
// stream its events over WebSocket (-tap) and can expose Prometheus metrics
// (-metrics).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/tftprelay/internal/app"
	"github.com/1ureka/tftprelay/internal/config"
	"github.com/1ureka/tftprelay/internal/metrics"
	"github.com/1ureka/tftprelay/internal/relay"
	"github.com/1ureka/tftprelay/internal/tap"
	"github.com/1ureka/tftprelay/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine, config.RoleRelay)
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	tapAddr := flag.String("tap", "", "Serve relay events over WebSocket on this address (e.g. 127.0.0.1:8080)")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
	statsInterval := flag.Duration("stats", 0, "Log traffic statistics at this interval (0 = off)")
	flag.Parse()

	util.SetRole("relay")
	if *debugMode {
		util.EnableDebug()
	}

	if flag.NArg() != 0 {
		util.LogError("relay takes no arguments")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	pterm.Info.Printfln("Relay v%s", version)

	var observers []relay.Observer
	if *tapAddr != "" {
		hub := tap.NewHub()
		addr, err := hub.Start(*tapAddr)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		defer hub.Close()
		observers = append(observers, hub)
		util.LogInfo("event stream at ws://%s%s", addr, tap.Path)
	}

	if *metricsAddr != "" {
		collector := metrics.New()
		addr, err := collector.Start(*metricsAddr)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		defer collector.Close()
		observers = append(observers, collector)
		util.LogInfo("metrics at http://%s%s", addr, metrics.Path)
	}

	if *statsInterval > 0 {
		util.StartStatsReporter(ctx, *statsInterval)
	}

	start := time.Now()
	if err := app.RunRelay(ctx, cfg, relay.Observers(observers...)); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogSuccess("relay finished after %s", time.Since(start).Round(time.Millisecond))
}
