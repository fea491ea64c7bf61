package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/usecase/project"
)

var createCmd = &cobra.Command{
	Use:   "create [SERVICE...]",
	Short: "Create containers without starting them",
	Long: `Converges the targeted services toward created state: missing containers
are created and drifted ones are replaced, but nothing is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}

		noDeps, _ := cmd.Flags().GetBool("no-deps")
		forceRecreate, _ := cmd.Flags().GetBool("force-recreate")
		noRecreate, _ := cmd.Flags().GetBool("no-recreate")

		result, err := svc.Up(cmd.Context(), project.UpOptions{
			Services:      args,
			NoDeps:        noDeps,
			ForceRecreate: forceRecreate,
			NoRecreate:    noRecreate,
			NoStart:       true,
		})
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().Bool("no-deps", false, "do not create linked services")
	createCmd.Flags().Bool("force-recreate", false, "recreate containers even if unchanged")
	createCmd.Flags().Bool("no-recreate", false, "never recreate existing containers")
}
