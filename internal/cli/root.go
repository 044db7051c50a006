package cli

import "github.com/spf13/cobra"

// NewRootCmd создаёт корневую команду distcompute-worker.
func NewRootCmd(version string) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "distcompute-worker",
		Short:         "Worker client for a distributed computing tracker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.Bind(root)

	root.AddCommand(
		newRunCmd(opts),
		newCountCmd(opts),
		newCheckCmd(opts),
	)

	return root
}
