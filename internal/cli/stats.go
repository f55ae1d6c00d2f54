package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics of a user",
		RunE:  runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := client.GetMemoryStats(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return printJSON(stats)
}
