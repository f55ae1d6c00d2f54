package cli

import (
	"strings"

	"github.com/spf13/cobra"

	brain "github.com/odiumxp/ai-brain/pkg/core"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [user text]",
		Short: "Record a conversation turn",
		Long:  "Record a conversation turn and run the chain, personality and user model updates for it.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRemember,
	}

	cmd.Flags().StringP("reply", "r", "", "Agent reply of the turn")
	cmd.Flags().StringP("persona", "p", "", "Persona id")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	reply, _ := cmd.Flags().GetString("reply")
	persona, _ := cmd.Flags().GetString("persona")

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	memory, err := client.RecordTurn(cmd.Context(), brain.Turn{
		UserID:    userID,
		PersonaID: persona,
		UserText:  strings.Join(args, " "),
		AIText:    reply,
	})
	if err != nil {
		return err
	}
	return printJSON(memory)
}
