package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bnema/flotilla/internal/adapters/out/docker"
	"github.com/bnema/flotilla/internal/config"
	"github.com/bnema/flotilla/internal/logging"
	"github.com/bnema/flotilla/internal/usecase/project"
)

var (
	configFiles []string
	projectName string
	verbosity   int
	maxParallel int
)

var rootCmd = &cobra.Command{
	Use:   "flotilla",
	Short: "Flotilla - declarative multi-container environments",
	Long: `Flotilla reads a YAML description of a multi-container application and
converges the running containers toward it: missing containers are created,
drifted ones are replaced and up-to-date ones are left alone.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbosity)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "file", "f", nil, "configuration file (repeat for overrides, order matters)")
	rootCmd.PersistentFlags().StringVarP(&projectName, "project-name", "p", "", "project name (default: directory name)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().IntVar(&maxParallel, "parallel", 0, "maximum concurrent operations per run")
}

// newProjectService loads the configuration and wires the Docker engine
// behind a project service.
func newProjectService() (*project.Service, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	proj, err := config.Load(config.Options{
		WorkingDir:  wd,
		ProjectName: projectName,
		Files:       configFiles,
	})
	if err != nil {
		return nil, err
	}
	engine, err := docker.NewEngine()
	if err != nil {
		return nil, err
	}
	return project.New(engine, engine, proj, project.Options{MaxParallel: maxParallel})
}

// loadProjectOnly resolves the configuration without touching the engine,
// for introspection commands.
func loadProjectOnly() (*project.Service, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	proj, err := config.Load(config.Options{
		WorkingDir:  wd,
		ProjectName: projectName,
		Files:       configFiles,
	})
	if err != nil {
		return nil, err
	}
	return project.New(nil, nil, proj, project.Options{})
}

// timeoutFlag reads the shared -t/--timeout flag. Negative means unset.
func timeoutFlag(cmd *cobra.Command) *time.Duration {
	secs, err := cmd.Flags().GetInt("timeout")
	if err != nil || secs < 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}

// reportResult prints the per-service breakdown of a failed operation and
// converts it into a command error.
func reportResult(result *project.Result) error {
	if err := result.Err(); err != nil {
		for _, res := range result.Services() {
			switch res.Outcome {
			case project.OutcomeFailed:
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("FAILED"), res.Service, res.Err)
			case project.OutcomeSkipped:
				fmt.Fprintf(os.Stderr, "%s %s\n", color.YellowString("SKIPPED"), res.Service)
			}
		}
		return err
	}
	return nil
}
