package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and print the resolved configuration",
	Long: `Loads the configuration files, applies overrides, extends chains and
variable interpolation, and prints the fully resolved project. With
--services only the service names are printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadProjectOnly()
		if err != nil {
			return err
		}
		proj := svc.Project()

		if servicesOnly, _ := cmd.Flags().GetBool("services"); servicesOnly {
			for _, name := range proj.ServiceNames() {
				fmt.Println(name)
			}
			return nil
		}
		if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
			return nil
		}

		rendered, err := config.Render(proj)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().Bool("services", false, "print service names, one per line")
	configCmd.Flags().BoolP("quiet", "q", false, "validate only, print nothing")
}
