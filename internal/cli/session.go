package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newCountCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of jobs waiting at the worker's stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.Load(cmd, nil)
			if err != nil {
				return err
			}

			sess, err := app.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			n, err := sess.JobCount(cmd.Context())
			if err != nil {
				return err
			}

			app.Out.Print(
				[]string{"PROJECT", "STAGE", "FILTER", "JOBS"},
				[][]string{{sess.Project(), sess.StageName(), sess.Stage(), strconv.Itoa(n)}},
				map[string]any{"project": sess.Project(), "stage": sess.StageName(), "filter": sess.Stage(), "jobs": n},
			)
			return nil
		},
	}
}

func newCheckCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Register a worker and verify the tracker still considers it alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.Load(cmd, nil)
			if err != nil {
				return err
			}

			sess, err := app.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			alive, err := sess.IsAlive(cmd.Context())
			if err != nil {
				return err
			}

			sess.Logger().Debug("worker checked", "alive", alive)

			app.Out.Print(
				[]string{"WORKER", "SESSION", "ALIVE", "DASHBOARD"},
				[][]string{{sess.DisplayName(), sess.ID().String(), strconv.FormatBool(alive), sess.DashboardURL()}},
				map[string]any{
					"worker":     sess.DisplayName(),
					"session_id": sess.ID().String(),
					"alive":      alive,
					"dashboard":  sess.DashboardURL(),
				},
			)
			return nil
		},
	}
}
