package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/domain"
	"github.com/bnema/flotilla/internal/usecase/project"
)

var runCmd = &cobra.Command{
	Use:   "run SERVICE [COMMAND...]",
	Short: "Run a one-off command in a service container",
	Long: `Creates a fresh one-off container for the service, outside the numbered
set that up manages. Dependencies are started first unless --no-deps is
given. The command exits with the container's exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}

		noDeps, _ := cmd.Flags().GetBool("no-deps")
		rm, _ := cmd.Flags().GetBool("rm")
		detach, _ := cmd.Flags().GetBool("detach")
		timeout := timeoutFlag(cmd)

		opts := project.RunOptions{
			NoDeps:     noDeps,
			AutoRemove: rm,
			Detached:   detach,
			Timeout:    timeout,
		}

		if detach {
			code, _, err := svc.Run(cmd.Context(), args[0], args[1:], opts)
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		}

		coord := project.NewSignalCoordinator(svc, timeout)
		stop := coord.Notify()
		defer stop()

		var runErr error
		var code int
		result := coord.Run(cmd.Context(), func(ctx context.Context) *project.Result {
			c, _, err := svc.Run(ctx, args[0], args[1:], opts)
			if err != nil && ctx.Err() == nil {
				runErr = err
			}
			code = c
			return &project.Result{}
		})

		if result.Interrupted() {
			return domain.ErrInterrupted
		}
		if runErr != nil {
			return runErr
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("no-deps", false, "do not start linked services")
	runCmd.Flags().Bool("rm", false, "remove the container when it exits")
	runCmd.Flags().BoolP("detach", "d", false, "run the container in the background")
	runCmd.Flags().IntP("timeout", "t", -1, "shutdown grace period in seconds")
}
