// Package cli implements the aibrain commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	brain "github.com/odiumxp/ai-brain/pkg/core"
)

var (
	configPath string
	userID     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "aibrain",
	Short: "Long-term memory for conversational agents",
	Long:  "Stores conversation turns as episodic memories and evolves chains, a personality and a user model from them.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file, YAML or JSON (default: environment and .env)")
	RootCmd.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("AIBRAIN_USER"), "User id (default: $AIBRAIN_USER)")
}

// loadConfig reads the config file when one is given and the plain
// environment otherwise.
func loadConfig() (*brain.Config, error) {
	if configPath != "" {
		return brain.LoadConfig(configPath, nil)
	}
	return brain.LoadConfigFromEnv()
}

func openClient(cmd *cobra.Command) (*brain.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return brain.NewClient(cmd.Context(), cfg)
}

func requireUser() error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

