package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/anvh2/market-intel/internal/servers"
)

var labelBatch int

// labelCmd runs one outcome-labeling sweep and exits.
var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Label unlabeled states whose horizon has expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := servers.New()
		if err != nil {
			return err
		}
		defer server.Stop()

		return server.LabelSweep(context.Background(), labelBatch)
	},
}

func init() {
	labelCmd.Flags().IntVar(&labelBatch, "batch", 50, "max states per sweep")
	RootCmd.AddCommand(labelCmd)
}
