package cmd

import (
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull [SERVICE...]",
	Short: "Pull service images",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		result, err := svc.Pull(cmd.Context(), args)
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
