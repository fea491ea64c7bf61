package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/domain"
	"github.com/bnema/flotilla/internal/usecase/project"
)

var upCmd = &cobra.Command{
	Use:   "up [SERVICE...]",
	Short: "Create and start containers",
	Long: `Converges the targeted services toward created-and-running state.
Containers whose configuration changed since they were created are replaced,
carrying their volumes forward. Unchanged containers are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}

		detach, _ := cmd.Flags().GetBool("detach")
		noDeps, _ := cmd.Flags().GetBool("no-deps")
		forceRecreate, _ := cmd.Flags().GetBool("force-recreate")
		noRecreate, _ := cmd.Flags().GetBool("no-recreate")
		abortOnExit, _ := cmd.Flags().GetBool("abort-on-container-exit")
		removeOrphans, _ := cmd.Flags().GetBool("remove-orphans")
		noCascade, _ := cmd.Flags().GetBool("no-recreate-deps")
		timeout := timeoutFlag(cmd)

		if detach && abortOnExit {
			return domain.NewConfigError("", "--abort-on-container-exit and --detach cannot be combined")
		}

		opts := project.UpOptions{
			Services:           args,
			NoDeps:             noDeps,
			ForceRecreate:      forceRecreate,
			NoRecreate:         noRecreate,
			RemoveOrphans:      removeOrphans,
			Timeout:            timeout,
			RecreateDependents: !noCascade,
		}

		if detach {
			result, err := svc.Up(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return reportResult(result)
		}

		coord := project.NewSignalCoordinator(svc, timeout)
		stop := coord.Notify()
		defer stop()

		var upErr error
		var waitCode int
		result := coord.Run(cmd.Context(), func(ctx context.Context) *project.Result {
			r, err := svc.Up(ctx, opts)
			if err != nil {
				upErr = err
				return &project.Result{}
			}
			if r.Err() != nil {
				return r
			}
			go func() {
				streamErr := svc.Logs(ctx, args, os.Stdout, project.LogsOptions{Follow: true})
				if streamErr != nil && ctx.Err() == nil {
					fmt.Fprintf(os.Stderr, "streaming logs: %v\n", streamErr)
				}
			}()
			code, err := svc.WaitForExit(ctx, args, abortOnExit, timeout)
			if err != nil && ctx.Err() == nil {
				upErr = err
			}
			waitCode = code
			return r
		})

		if result.Interrupted() {
			return domain.ErrInterrupted
		}
		if upErr != nil {
			return upErr
		}
		if err := reportResult(result); err != nil {
			return err
		}
		if waitCode != 0 {
			return fmt.Errorf("container exited with code %d", waitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
	upCmd.Flags().BoolP("detach", "d", false, "run containers in the background")
	upCmd.Flags().Bool("no-deps", false, "do not start linked services")
	upCmd.Flags().Bool("force-recreate", false, "recreate containers even if unchanged")
	upCmd.Flags().Bool("no-recreate", false, "never recreate existing containers")
	upCmd.Flags().Bool("no-recreate-deps", false, "do not recreate dependents of recreated services")
	upCmd.Flags().Bool("abort-on-container-exit", false, "stop all containers when any container exits")
	upCmd.Flags().Bool("remove-orphans", false, "remove containers of services no longer in the config")
	upCmd.Flags().IntP("timeout", "t", -1, "shutdown grace period in seconds")
}
