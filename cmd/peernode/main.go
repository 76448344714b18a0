package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/p2pswarm/node/internal/eventlog"
	"github.com/p2pswarm/node/internal/monitor"
	"github.com/p2pswarm/node/internal/process"
)

func main() {
	workdir := flag.String("workdir", ".", "directory holding Common.cfg, PeerInfo.cfg and piece data")
	useTUI := flag.Bool("tui", false, "show a live terminal dashboard instead of plain logs")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: peernode [--workdir dir] [--tui] <peer-id>")
		os.Exit(1)
	}
	selfID, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "peernode: invalid peer id %q: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	logger, closeLog, err := eventlog.NewLogger(selfID, *workdir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "peernode: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	p, err := process.New(*workdir, selfID, logger)
	if err != nil {
		logger.Error("failed to initialize peer", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *useTUI {
		runWithDashboard(ctx, p, logger)
		return
	}

	if err := p.Run(ctx); err != nil {
		logger.Error("peer exited with error", "error", err)
		os.Exit(1)
	}
}

// runWithDashboard runs the swarm process and the terminal dashboard
// concurrently, tearing the dashboard down when the process finishes and
// vice versa.
func runWithDashboard(ctx context.Context, p *process.PeerProcess, logger *slog.Logger) {
	runner := monitor.NewRunner(ctx, p.SelfID(), p.StatsSource())

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- p.Run(ctx) }()

	go func() {
		err := <-runErrCh
		if err != nil {
			logger.Error("peer exited with error", "error", err)
		}
		runner.Stop()
	}()

	if err := runner.Run(); err != nil {
		logger.Error("dashboard exited with error", "error", err)
		os.Exit(1)
	}
}
