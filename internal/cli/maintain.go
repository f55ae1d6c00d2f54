package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "maintain [job]",
		Short: "Run a maintenance job now",
		Long:  "Run a maintenance job now and print its report. Without a job the registered jobs and their state are listed.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMaintain,
	}

	RootCmd.AddCommand(cmd)
}

func runMaintain(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		return printJSON(client.JobStates())
	}

	report, err := client.RunMaintenance(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("%w (jobs: %s)", err, strings.Join(client.MaintenanceJobs(), ", "))
	}
	return printJSON(report)
}
