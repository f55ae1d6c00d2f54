package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the maintenance scheduler and the metrics endpoint",
		Long:  "Run every maintenance job on its configured cadence and serve Prometheus metrics until interrupted.",
		RunE:  runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	cfg := client.Config()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Metrics().StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path)
	})
	g.Go(func() error {
		if err := client.StartScheduler(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
