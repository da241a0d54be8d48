package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/studio/internal/app"
	"github.com/arkilian/studio/internal/logging"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		httpAddr    string
		grpcAddr    string
		grpcEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured views over HTTP (and the row source over gRPC)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}
			if grpcAddr != "" {
				cfg.GRPC.Addr = grpcAddr
			}
			if cmd.Flags().Changed("grpc") {
				cfg.GRPC.Enabled = grpcEnabled
			}

			logger := opts.log()
			if opts.logLevel == "" && !opts.verbose {
				if logger, err = logging.New(cfg.Log); err != nil {
					return err
				}
				defer logger.Sync()
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			logger.Info("serving",
				zap.String("http", a.HTTPAddr()),
				zap.String("grpc", a.GRPCAddr()),
				zap.String("source", cfg.Source.Type))

			if err := a.WaitForShutdown(ctx); err != nil {
				logger.Warn("shutdown error", zap.Error(err))
			}
			return a.Stop(context.Background())
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address")
	cmd.Flags().BoolVar(&grpcEnabled, "grpc", false, "serve the row source over gRPC")
	return cmd
}
