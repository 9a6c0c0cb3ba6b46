package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"treewalk/internal/app"
	"treewalk/internal/config"
	"treewalk/internal/logging"
)

func serveCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				opts.v.Set("server.addr", addr)
			}
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions) error {
	settings, err := config.Load(opts.v, opts.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.Setup(settings.Log.Level, settings.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, settings, logger, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.WithError(cerr).Warn("shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return a.Run(gctx)
	})
	g.Go(func() error { return watchSignals(gctx, cancel, logger) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// shutdownSignals stop the server gracefully.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// watchSignals cancels the serve context on the first shutdown signal.
func watchSignals(ctx context.Context, cancel context.CancelFunc, logger log.Interface) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)
	defer signal.Stop(sigCh)
	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("stopping")
		cancel()
	case <-ctx.Done():
	}
	return nil
}
