package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// watchSignals derives a context from parent that is canceled when the
// process receives SIGINT or SIGTERM. The first signal asks the poll loops
// to stop at their next iteration, so a recovery batch that is mid-flight
// still drains. A repeated signal aborts the process without waiting.
func watchSignals(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)

		for seen := 0; ; seen++ {
			select {
			case sig := <-sigs:
				if seen > 0 {
					logger.Warn("repeated signal, exiting now",
						slog.String("signal", sig.String()))
					os.Exit(1)
				}
				logger.Info("stop requested, draining poll loops",
					slog.String("signal", sig.String()))
				cancel()
			case <-parent.Done():
				cancel()
				return
			}
		}
	}()

	return ctx
}
