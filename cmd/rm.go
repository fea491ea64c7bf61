package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm [SERVICE...]",
	Short: "Remove stopped containers",
	Long: `Removes the targeted services' stopped containers, one-off containers
included. Running containers are left alone; stop or down them first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}

		containers, err := svc.Containers(cmd.Context(), args, true)
		if err != nil {
			return err
		}
		var names []string
		for _, c := range containers {
			if !c.IsRunning() {
				names = append(names, c.Name)
			}
		}
		if len(names) == 0 {
			fmt.Println("No stopped containers")
			return nil
		}

		if force, _ := cmd.Flags().GetBool("force"); !force {
			fmt.Printf("Going to remove %s\n", strings.Join(names, ", "))
			fmt.Print("Are you sure? [yN] ")
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if a := strings.TrimSpace(answer); a != "y" && a != "Y" {
				return nil
			}
		}

		result, err := svc.Remove(cmd.Context(), args)
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().Bool("force", false, "do not ask to confirm removal")
}
