package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anvh2/market-intel/internal/servers"
)

var replayAsOf string

// replayCmd rebuilds one MarketState as of a historical timestamp and
// prints it as JSON.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run one analysis pass against historical data",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := time.Parse(time.RFC3339, replayAsOf)
		if err != nil {
			return fmt.Errorf("invalid --asof: %w", err)
		}

		server, err := servers.New()
		if err != nil {
			return err
		}
		defer server.Stop()

		state, err := server.Replay(context.Background(), asOf)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayAsOf, "asof", "", "point in time to replay (RFC3339)")
	_ = replayCmd.MarkFlagRequired("asof")
	RootCmd.AddCommand(replayCmd)
}
