package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var portCmd = &cobra.Command{
	Use:   "port SERVICE PRIVATE_PORT",
	Short: "Print the public port a container port is bound to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newProjectService()
		if err != nil {
			return err
		}

		protocol, _ := cmd.Flags().GetString("protocol")
		index, _ := cmd.Flags().GetInt("index")

		target := args[1]
		if !strings.Contains(target, "/") {
			target += "/" + protocol
		}

		addr, err := svc.Port(cmd.Context(), args[0], target, index)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portCmd)
	portCmd.Flags().String("protocol", "tcp", "tcp or udp")
	portCmd.Flags().Int("index", 1, "index of the container if the service has multiple instances")
}
