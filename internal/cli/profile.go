package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	personalityCmd := &cobra.Command{
		Use:   "personality",
		Short: "Show the personality traits evolved for a user",
		RunE:  runPersonality,
	}
	personalityCmd.Flags().String("history", "", "Show the dated history of one trait")

	userModelCmd := &cobra.Command{
		Use:   "user-model",
		Short: "Show the beliefs, goals and mental state known about a user",
		RunE:  runUserModel,
	}
	userModelCmd.Flags().Bool("context", false, "Print the prompt block instead of JSON")

	RootCmd.AddCommand(personalityCmd, userModelCmd)
}

func runPersonality(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	trait, _ := cmd.Flags().GetString("history")

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if trait != "" {
		history, err := client.GetPersonalityHistory(cmd.Context(), userID, trait)
		if err != nil {
			return err
		}
		return printJSON(history)
	}

	p, err := client.GetPersonality(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func runUserModel(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	asContext, _ := cmd.Flags().GetBool("context")

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if asContext {
		text, err := client.GetUserModelContext(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	model, err := client.GetUserModel(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return printJSON(model)
}
