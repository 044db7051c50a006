package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/distcompute/internal/config"
	"github.com/shaiso/distcompute/internal/runner"
	"github.com/shaiso/distcompute/internal/telemetry"
)

func newRunCmd(opts *Options) *cobra.Command {
	var (
		handler      string
		forwardURL   string
		pollInterval time.Duration
		maxJobs      int
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Register with the tracker and process jobs until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.Load(cmd, func(c *config.Config) {
				if cmd.Flags().Changed("handler") {
					c.Runner.Handler = handler
				}
				if cmd.Flags().Changed("forward-url") {
					c.Runner.ForwardURL = forwardURL
				}
				if cmd.Flags().Changed("poll-interval") {
					c.Runner.PollInterval = pollInterval
				}
				if cmd.Flags().Changed("max-jobs") {
					c.Runner.MaxJobs = maxJobs
				}
				if cmd.Flags().Changed("metrics-addr") {
					c.Metrics.Addr = metricsAddr
				}
			})
			if err != nil {
				return err
			}

			registry := runner.NewRegistry()
			if app.Config.Runner.ForwardURL != "" {
				registry.Register("http", runner.NewHTTPHandler(app.Config.Runner.ForwardURL, 0))
			}
			h, err := registry.Get(app.Config.Runner.Handler)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			metricsErr := make(chan error, 1)
			go func() {
				metricsErr <- telemetry.ServeMetrics(ctx, app.Config.Metrics.Addr, app.Registry, app.Logger)
			}()

			r := runner.New(runner.Config{
				Connect: func(ctx context.Context) (runner.Session, error) {
					return app.Connect(ctx)
				},
				Handler:      h,
				PollInterval: app.Config.Runner.PollInterval,
				MaxJobs:      app.Config.Runner.MaxJobs,
				Logger:       app.Logger,
			})

			runErr := r.Run(ctx)
			cancel()
			if err := <-metricsErr; err != nil {
				app.Logger.Error("metrics server failed", "error", err)
			}

			app.Out.Print(
				[]string{"COMPLETED", "FLAGGED"},
				[][]string{{strconv.Itoa(r.Completed()), strconv.Itoa(r.Flagged())}},
				map[string]int{"completed": r.Completed(), "flagged": r.Flagged()},
			)
			if runErr != nil {
				return fmt.Errorf("run: %w", runErr)
			}
			app.Out.Success(fmt.Sprintf("runner stopped: %d completed, %d flagged", r.Completed(), r.Flagged()))
			return nil
		},
	}

	cmd.Flags().StringVar(&handler, "handler", "echo", "Job handler: echo, http (env RUNNER_HANDLER)")
	cmd.Flags().StringVar(&forwardURL, "forward-url", "", "URL the http handler forwards jobs to (env RUNNER_FORWARD_URL)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 30*time.Second, "Wait after the tracker reports no jobs (env RUNNER_POLL_INTERVAL)")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "Stop after this many completed jobs, 0 means unlimited (env RUNNER_MAX_JOBS)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for /metrics and /healthz, empty disables (env METRICS_ADDR)")

	return cmd
}
