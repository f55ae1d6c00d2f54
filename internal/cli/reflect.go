package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	emotionsCmd := &cobra.Command{
		Use:   "emotions",
		Short: "Show the recent emotions and learned empathy strategies of a user",
		RunE:  runEmotions,
	}
	emotionsCmd.Flags().Bool("context", false, "Print the prompt block instead of JSON")
	emotionsCmd.Flags().Bool("trends", false, "Show emotional trends instead")

	reflectCmd := &cobra.Command{
		Use:   "reflect",
		Short: "Write a reflection over a user's last day, week or month",
		RunE:  runReflect,
	}
	reflectCmd.Flags().String("period", "", "day, week or month (default from config)")
	reflectCmd.Flags().Int("recent", 0, "List this many stored reflections instead of writing one")

	RootCmd.AddCommand(emotionsCmd, reflectCmd)
}

func runEmotions(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	asContext, _ := cmd.Flags().GetBool("context")
	trends, _ := cmd.Flags().GetBool("trends")

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	switch {
	case trends:
		t, err := client.GetEmotionalTrends(cmd.Context(), userID, 0)
		if err != nil {
			return err
		}
		return printJSON(t)
	case asContext:
		text, err := client.GetEmotionalContext(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	state, err := client.GetEmotionalState(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return printJSON(state)
}

func runReflect(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	period, _ := cmd.Flags().GetString("period")
	recent, _ := cmd.Flags().GetInt("recent")

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if recent > 0 {
		rs, err := client.GetRecentReflections(cmd.Context(), userID, recent)
		if err != nil {
			return err
		}
		return printJSON(rs)
	}

	r, err := client.Reflect(cmd.Context(), userID, period)
	if err != nil {
		return err
	}
	return printJSON(r)
}
