package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/domain"
)

var psCmd = &cobra.Command{
	Use:   "ps [SERVICE...]",
	Short: "List project containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		containers, err := svc.Containers(cmd.Context(), args, all)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tSERVICE\tSTATE\tIMAGE")
		for _, c := range containers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Service, renderState(c), c.Image)
		}
		return w.Flush()
	},
}

func renderState(c *domain.Container) string {
	switch c.State {
	case domain.StateRunning:
		return color.GreenString(c.State)
	case domain.StateExited, domain.StateDead:
		if c.ExitCode != 0 {
			return color.RedString("%s (%d)", c.State, c.ExitCode)
		}
		return c.State
	case domain.StatePaused:
		return color.YellowString(c.State)
	default:
		return c.State
	}
}

func init() {
	rootCmd.AddCommand(psCmd)
	psCmd.Flags().BoolP("all", "a", false, "include stopped containers")
}
