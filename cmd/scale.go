package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/usecase/project"
)

var scaleCmd = &cobra.Command{
	Use:   "scale SERVICE=NUM...",
	Short: "Set the number of containers per service",
	Long: `Converges each named service to an exact replica count. Growth fills
the lowest free instance numbers; shrinkage removes the highest-numbered
containers first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := project.ParseScaleArgs(args)
		if err != nil {
			return err
		}
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		result, err := svc.Scale(cmd.Context(), counts, timeoutFlag(cmd))
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

func init() {
	rootCmd.AddCommand(scaleCmd)
	scaleCmd.Flags().IntP("timeout", "t", -1, "shutdown grace period in seconds")
}
