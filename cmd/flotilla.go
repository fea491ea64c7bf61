package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/bnema/flotilla/internal/domain"
)

// Build information, injected by the linker at release time.
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// ExecuteCLI runs the root command and exits the process with the proper
// status: 0 on success, 1 on any failure or interruption.
func ExecuteCLI(version, commit, date string) {
	if version != "" {
		BuildVersion = version
	}
	if commit != "" {
		BuildCommit = commit
	}
	if date != "" {
		BuildDate = date
	}

	if err := Execute(); err != nil {
		if !errors.Is(err, domain.ErrInterrupted) {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("ERROR"), err)
		}
		os.Exit(1)
	}
}
