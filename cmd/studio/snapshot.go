package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/studio/internal/app"
	"github.com/arkilian/studio/internal/source"
	"github.com/arkilian/studio/internal/storage"
)

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	var (
		dest   string
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "snapshot <view>",
		Short: "Fetch a view's batch and write each table as a compressed snapshot",
		Long: `snapshot fetches every read of a view and writes each table to
<dest>/<prefix><table>.json.sz. The directory can then be served with
--source local --source-path <dest>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, opts.log())
			if err != nil {
				return err
			}
			if err := a.Open(cmd.Context()); err != nil {
				return err
			}
			defer a.Close()

			v, payload, err := a.Load(cmd.Context(), args[0], true)
			if err != nil {
				return fmt.Errorf("load view %q: %w", args[0], err)
			}

			store, err := storage.NewLocalStorage(dest)
			if err != nil {
				return err
			}
			for _, read := range v.Batch.Reads {
				rows := payload.Rows(read.Collection)
				if err := source.WriteSnapshot(cmd.Context(), store, prefix, read.Table, rows); err != nil {
					return err
				}
				opts.log().Info("snapshot written",
					zap.String("table", read.Table),
					zap.Int("rows", len(rows)))
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\n", read.Table, len(rows))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "destination directory")
	cmd.Flags().StringVar(&prefix, "prefix", "", "object key prefix")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}
