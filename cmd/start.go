package cmd

import (
	"github.com/spf13/cobra"

	"github.com/anvh2/market-intel/internal/servers"
)

// startCmd runs the live analysis service.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the market-intel service",
	Long:  "Start the live analysis cycle, alerting and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := servers.New()
		if err != nil {
			return err
		}
		return server.Start()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
