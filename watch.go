package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/runwatch/internal/config"
	"github.com/tonimelisma/runwatch/internal/detector"
	"github.com/tonimelisma/runwatch/internal/notify"
	"github.com/tonimelisma/runwatch/internal/watermark"
)

// newWatchCmd builds the `runwatch watch` command: the long-running daemon.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch configured instruments for new runs",
		Long: "Starts one detector per configured instrument and runs until " +
			"interrupted or a fatal error occurs. Exits non-zero on fatal " +
			"errors so a supervisor can restart the process; the restarted " +
			"process resumes from the persisted watermarks.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context())
		},
	}
}

func runWatch(parent context.Context) error {
	logger := buildLogger()
	ctx := watchSignals(parent, logger)

	store, err := openStore(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	producer, err := notify.DialProducer(ctx, resolvedCfg.Gateway.URL,
		resolvedCfg.Gateway.ProducerName, resolvedCfg.GatewayConnectTimeout(), logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	// One detector per instrument; instances share no mutable state. The
	// first fatal error cancels the rest of the group.
	g, gctx := errgroup.WithContext(ctx)

	for _, inst := range resolvedCfg.Instruments {
		d, err := detector.New(gctx, detector.Config{
			ArchiveRoot:         resolvedCfg.Archive.Root,
			Instrument:          inst.Folder,
			FilePrefix:          inst.Prefix,
			ReferenceInstrument: resolvedCfg.Archive.ReferenceInstrument,
			PollInterval:        resolvedCfg.PollInterval(),
			CycleRecheck:        resolvedCfg.CycleRecheckInterval(),
			Store:               store,
			Notifier:            producer,
			Logger:              logger,
		})
		if err != nil {
			return fmt.Errorf("initializing detector for %s: %w", inst.Folder, err)
		}

		g.Go(func() error {
			return d.Watch(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	logger.Info("all watchers stopped")

	return nil
}

// openStore opens the watermark store selected by config.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (watermark.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return watermark.OpenSQLite(ctx, cfg.Store.Path, logger)
	default:
		return watermark.OpenPostgres(ctx, cfg.Store.DSN, cfg.StoreConnectTimeout(), logger)
	}
}
