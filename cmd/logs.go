package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/domain"
	"github.com/bnema/flotilla/internal/usecase/project"
)

var logsCmd = &cobra.Command{
	Use:   "logs [SERVICE...]",
	Short: "View output from containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}

		follow, _ := cmd.Flags().GetBool("follow")
		timestamps, _ := cmd.Flags().GetBool("timestamps")
		tail, _ := cmd.Flags().GetString("tail")
		noColor, _ := cmd.Flags().GetBool("no-color")

		err = svc.Logs(cmd.Context(), args, os.Stdout, project.LogsOptions{
			Follow:     follow,
			Timestamps: timestamps,
			Tail:       tail,
			NoColor:    noColor,
		})
		if errors.Is(err, domain.ErrNoContainers) {
			fmt.Println("No containers")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().Bool("follow", false, "follow log output")
	logsCmd.Flags().BoolP("timestamps", "t", false, "show timestamps")
	logsCmd.Flags().String("tail", "all", "number of lines to show from the end of each log")
	logsCmd.Flags().Bool("no-color", false, "produce monochrome output")
}
