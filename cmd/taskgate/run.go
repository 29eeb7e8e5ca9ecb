package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/phrazzld/taskgate/internal/platform/metrics"
	"github.com/phrazzld/taskgate/internal/task"
)

// runOptions are the demo's own flags; everything else comes from config.
type runOptions struct {
	tasks       int
	delay       time.Duration
	target      string
	rotateAfter time.Duration
	restore     bool
}

func newRunCmd(cfgFile *string) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run HTTP tasks through the task manager",
		Long: `Start a set of HTTP GET tasks against a slow demo server (or --target) and log
every delivery.

--rotate-after tears the consumer down mid-flight and recreates it, so tasks
that were running are reported killed and restarted. Interrupting the command
saves the outstanding ids to the snapshot backend; --restore replays them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *cfgFile,
				flagBinding{key: "tasks.worker_count", flag: "workers"},
				flagBinding{key: "snapshot.backend", flag: "backend"},
				flagBinding{key: "snapshot.scope", flag: "scope"},
				flagBinding{key: "metrics.addr", flag: "metrics-addr"},
			)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.cleanup()

			if cfg.Metrics.Addr != "" {
				metrics.StartServer(ctx, cfg.Metrics.Addr, app.registry, logger)
			}

			result, err := runDemo(ctx, app, opts)
			fmt.Fprintf(cmd.OutOrStdout(), "finished=%d failed=%d cancelled=%d killed=%d\n",
				result.Finished, result.Failed, result.Cancelled, result.Killed)
			return err
		},
	}

	cmd.Flags().IntVar(&opts.tasks, "tasks", 5, "number of tasks to run")
	cmd.Flags().DurationVar(&opts.delay, "delay", 2*time.Second, "demo server response delay")
	cmd.Flags().StringVar(&opts.target, "target", "", "base URL serving /items/{id} (default: built-in demo server)")
	cmd.Flags().DurationVar(&opts.rotateAfter, "rotate-after", 0, "recreate the consumer after this long (0 disables)")
	cmd.Flags().BoolVar(&opts.restore, "restore", false, "replay the snapshot saved by an interrupted run")
	cmd.Flags().Int("workers", 0, "worker goroutines")
	cmd.Flags().String("backend", "", "snapshot backend: memory | redis | postgres | sqlite")
	cmd.Flags().String("scope", "", "snapshot scope")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

// runDemo drives the dispatch loop on the calling goroutine until every task
// has settled or ctx is cancelled. On cancellation the consumer is torn down
// and its outstanding ids are saved.
func runDemo(ctx context.Context, app *application, opts runOptions) (summary, error) {
	baseURL := opts.target
	if baseURL == "" {
		var err error
		baseURL, err = startDemoServer(ctx, newDemoRouter(opts.delay, app.logger), app.logger)
		if err != nil {
			return summary{}, err
		}
	}

	d := newDemo(app, baseURL, opts.tasks)
	posted := app.loop.Post(func() {
		if err := d.attach(ctx, opts.restore); err != nil {
			d.fail(err)
			return
		}
		if err := d.startAll(); err != nil {
			d.fail(err)
		}
	})
	if !posted {
		return summary{}, task.ErrLoopClosed
	}

	if opts.rotateAfter > 0 {
		timer := time.AfterFunc(opts.rotateAfter, func() {
			app.loop.Post(func() { d.rotate(ctx) })
		})
		defer timer.Stop()
	}

	if err := app.loop.RunUntil(ctx, d.done); err != nil {
		if ctx.Err() == nil || d.host == nil {
			return d.summary, err
		}

		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.teardown(saveCtx); err != nil {
			return d.summary, err
		}
		app.logger.Info("interrupted, outstanding tasks saved", "scope", app.config.Snapshot.Scope)
		return d.summary, nil
	}

	return d.summary, d.err
}
