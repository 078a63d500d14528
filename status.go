package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/runwatch/internal/watermark"
)

// newStatusCmd builds the `runwatch status` command: print the persisted
// watermark for each configured instrument.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show persisted watermarks for configured instruments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			store, err := openStore(cmd.Context(), resolvedCfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTRUMENT\tLAST RUN")

			for _, inst := range resolvedCfg.Instruments {
				name := watermark.StoreName(inst.Folder)

				run, found, err := store.Get(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("reading watermark for %s: %w", name, err)
				}

				if !found {
					fmt.Fprintf(w, "%s\t(no record)\n", name)
					continue
				}

				fmt.Fprintf(w, "%s\t%s\n", name, run)
			}

			return w.Flush()
		},
	}
}
