package cmd

import (
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [SERVICE...]",
	Short: "Stop running containers without removing them",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		result, err := svc.Stop(cmd.Context(), args, timeoutFlag(cmd))
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var startCmd = &cobra.Command{
	Use:   "start [SERVICE...]",
	Short: "Start existing stopped containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		result, err := svc.Start(cmd.Context(), args)
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var killCmd = &cobra.Command{
	Use:   "kill [SERVICE...]",
	Short: "Force-stop running containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		signal, _ := cmd.Flags().GetString("signal")
		result, err := svc.Kill(cmd.Context(), args, signal)
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart [SERVICE...]",
	Short: "Restart containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		result, err := svc.Restart(cmd.Context(), args, timeoutFlag(cmd))
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [SERVICE...]",
	Short: "Pause running containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		result, err := svc.Pause(cmd.Context(), args)
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var unpauseCmd = &cobra.Command{
	Use:   "unpause [SERVICE...]",
	Short: "Resume paused containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		result, err := svc.Unpause(cmd.Context(), args)
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

func init() {
	stopCmd.Flags().IntP("timeout", "t", -1, "shutdown grace period in seconds")
	restartCmd.Flags().IntP("timeout", "t", -1, "shutdown grace period in seconds")
	killCmd.Flags().StringP("signal", "s", "SIGKILL", "signal to send")
	rootCmd.AddCommand(stopCmd, startCmd, killCmd, restartCmd, pauseCmd, unpauseCmd)
}
