package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/usecase/project"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove containers, networks and optionally volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}

		rmi, _ := cmd.Flags().GetString("rmi")
		volumes, _ := cmd.Flags().GetBool("volumes")
		removeOrphans, _ := cmd.Flags().GetBool("remove-orphans")

		result, err := svc.Down(cmd.Context(), project.DownOptions{
			RemoveImages:  rmi,
			RemoveVolumes: volumes,
			RemoveOrphans: removeOrphans,
			Timeout:       timeoutFlag(cmd),
		})
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

func init() {
	rootCmd.AddCommand(downCmd)
	downCmd.Flags().String("rmi", "", `remove images: "local" (built only) or "all"`)
	downCmd.Flags().Bool("volumes", false, "also remove named volumes declared by the project")
	downCmd.Flags().Bool("remove-orphans", false, "remove containers of services no longer in the config")
	downCmd.Flags().IntP("timeout", "t", -1, "shutdown grace period in seconds")
}
