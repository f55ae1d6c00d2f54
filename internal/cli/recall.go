package cli

import (
	"strings"

	"github.com/spf13/cobra"

	brain "github.com/odiumxp/ai-brain/pkg/core"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Retrieve the memories most relevant to a query",
		Long:  "Retrieve the memories most relevant to a query. Without a query the most recent memories are returned.",
		RunE:  runRecall,
	}

	cmd.Flags().IntP("limit", "l", 5, "Maximum number of memories")
	cmd.Flags().StringP("persona", "p", "", "Persona id")
	cmd.Flags().Bool("chains", false, "Also list the matching memory chains")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	persona, _ := cmd.Flags().GetString("persona")
	withChains, _ := cmd.Flags().GetBool("chains")
	query := strings.Join(args, " ")

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	memories, err := client.RetrieveRelevantMemories(cmd.Context(), userID, query,
		brain.WithLimit(limit), brain.WithPersona(persona))
	if err != nil {
		return err
	}
	if !withChains {
		return printJSON(memories)
	}

	chains, err := client.FindRelevantChains(cmd.Context(), userID, query, limit)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"memories": memories,
		"chains":   chains,
	})
}
