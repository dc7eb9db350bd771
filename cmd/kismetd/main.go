// Command kismetd is a passive 802.11 discovery and tracking daemon: it
// decodes captured frames into networks/clients, serves the live push
// protocol over TCP, writes the append/snapshot logs, and tears everything
// down in a fixed order on signal. See main's structure against the
// teacher's cmd/wmap/main.go: structured logging setup, config load,
// bootstrap, signal-driven shutdown, explicit exit codes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/braylonh/kismet/internal/config"
	"github.com/braylonh/kismet/internal/daemon"
	"github.com/braylonh/kismet/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Version {
		fmt.Println("kismetd " + daemon.MajorVersion + "." + daemon.MinorVersion)
		return
	}
	if cfg.Help {
		printUsage()
		return
	}
	if cfg.Quiet || cfg.Silent {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		slog.SetDefault(logger)
	}

	tracerShutdown, err := telemetry.InitTracer("kismetd", daemon.MajorVersion+"."+daemon.MinorVersion)
	if err != nil {
		logger.Warn("tracer init failed, continuing without tracing", "error", err)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kismetd: startup failed:", err)
		os.Exit(1)
	}

	runErr := d.Run()
	d.Finish()
	if tracerShutdown != nil {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "kismetd: capture failure:", runErr)
		os.Exit(1)
	}
	os.Exit(0)
}

func printUsage() {
	fmt.Println(`kismetd — passive 802.11 discovery and tracking daemon

  --config-file DIR        configuration directory
  --log-title NAME         base title for --log-types templates
  --no-logging             disable all file logging
  --capture-type TYPE      capture source type (pcapfile, mock)
  --capture-interface PATH capture interface or pcap file path
  --log-types LIST         comma-separated log types (dump,network,weak,csv,xml,cisco,gps)
  --dump-type TYPE         dump writer encoding
  --max-packets N          stop after N packets (0 = unbounded)
  --quiet                  suppress informational stderr output
  --gps HOST:PORT|off      gpsd host:port, or "off" to disable
  --port N                 push protocol TCP port
  --allowed-hosts LIST     comma-separated allowed client hosts
  --silent                 suppress status broadcasts to stderr
  --version                print version and exit
  --help                   print this message and exit`)
}
