package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	lcworker "github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/spf13/cobra"

	"github.com/aretw0/furrow/internal/platform"
	furrowlifecycle "github.com/aretw0/furrow/pkg/adapters/lifecycle"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/view"
	"github.com/aretw0/furrow/pkg/worker"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep a space in sync until interrupted",
	Long: `Run the sync worker: poll the remote every sync.interval and pull when it
moved, and push shortly after local documents change. The worker is restarted
with backoff if it fails. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := slog.Default()
		store := openStore(ctx)
		defer store.Close()

		broker := view.NewBroker()
		id := resolveSpace(ctx, store)
		e := openEngine(ctx, store, id, platform.WithPublisher(broker))

		watchable, canWatch := store.(core.Watchable)
		if !canWatch {
			logger.Warn("store cannot report local changes, pushing on every poll instead", "adapter", cfg.Store.Adapter)
		}

		spec := supervisor.Spec{
			Name: "sync-" + id,
			Type: string(lcworker.TypeGoroutine),
			Factory: func() (lcworker.Worker, error) {
				opts := []worker.Option{
					worker.WithInterval(cfg.Sync.Interval),
					worker.WithPushDelay(cfg.Sync.PushDelay),
					worker.WithLogger(logger),
				}
				if canWatch {
					opts = append(opts, worker.WithSource(furrowlifecycle.NewStoreSource(watchable, cfg.Sync.Include)))
				}
				return worker.New(e, opts...), nil
			},
			Backoff: supervisor.Backoff{
				InitialInterval: time.Second,
				MaxInterval:     time.Minute,
				Multiplier:      2,
				ResetDuration:   5 * time.Minute,
				MaxRestarts:     10,
				MaxDuration:     time.Hour,
			},
			RestartPolicy: supervisor.RestartOnFailure,
		}

		sup := supervisor.New("furrow", supervisor.StrategyOneForOne, spec)
		if err := sup.Start(ctx); err != nil {
			fatal("Failed to start sync worker", err)
		}

		followViews(ctx, broker, logger)
		if !canWatch {
			pushOnPoll(ctx, e, cfg.Sync.Interval, logger)
		}

		fmt.Printf("Watching space '%s' (Ctrl-C to stop)...\n", id)
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sup.Stop(stopCtx); err != nil {
			fatal("Failed to stop sync worker", err)
		}
		fmt.Println("Stopped.")
	},
}

// followViews logs every value the engine publishes.
func followViews(ctx context.Context, broker *view.Broker, logger *slog.Logger) {
	src := furrowlifecycle.NewViewSource(ctx, broker)
	if err := src.Start(ctx); err != nil {
		logger.Warn("view updates unavailable", "error", err)
		return
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		for e := range src.Events() {
			if u, ok := e.(view.Update); ok {
				logger.Info("view updated", "key", u.Key, "epoch", u.Epoch)
			}
		}
		return nil
	})
}

// pushOnPoll pushes on the poll interval for stores without change events.
func pushOnPoll(ctx context.Context, s worker.Syncer, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := s.Push(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("push failed", "error", err)
				}
			}
		}
	})
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
