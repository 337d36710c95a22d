// Command ehsgw runs the heat pump protocol gateway: it speaks the bus
// over serial or TCP, republishes decoded values over MQTT, and accepts
// write commands back onto the bus.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ehsgw/gateway"
	"github.com/sirupsen/logrus"
)

var cmdLog = log.New(os.Stderr, filepath.Base(os.Args[0])+": ", 0)

var (
	configFlag  = flag.String("config", "", "Path to the gateway configuration `file` (required).")
	dumpFlag    = flag.String("dump", "", "Path to a raw-frame trace sink (optional).")
	dryRunFlag  = flag.Bool("dry-run", false, "Read frames from -dump instead of the bus.")
	verboseFlag = flag.Bool("verbose", false, "Enable debug-level and wire-trace logging.")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	if *configFlag == "" {
		cmdLog.Println("missing required -config flag")
		os.Exit(1)
	}

	logger := logrus.New()
	if *verboseFlag {
		logger.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(logger)

	cfg, err := ehsgw.LoadConfig(*configFlag)
	if err != nil {
		cmdLog.Println(err)
		os.Exit(1)
	}

	if *dryRunFlag {
		// -dry-run substitutes a recorded trace for the live bus; the
		// runtime itself has no notion of this, so it is implemented as
		// an alternate entry point rather than a Runtime option.
		if err := runDryRun(entry, cfg, *dumpFlag); err != nil {
			cmdLog.Println(err)
			os.Exit(2)
		}
		return
	}

	rt, err := ehsgw.New(cfg, entry)
	if err != nil {
		cmdLog.Println(err)
		os.Exit(1)
	}
	rt.DumpPath = *dumpFlag

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cmdLog.Println("shutting down")
		cancel()
	}()

	if err := rt.Run(ctx); err != nil {
		cmdLog.Println(err)
		os.Exit(2)
	}
}
