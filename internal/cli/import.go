package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	brain "github.com/odiumxp/ai-brain/pkg/core"
)

// importTurn is one line of an import file.
type importTurn struct {
	UserID    string `json:"user_id"`
	PersonaID string `json:"persona_id"`
	UserText  string `json:"user_text"`
	AIText    string `json:"ai_text"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import conversation turns from a JSON lines file",
		Long: `Import conversation turns from a JSON lines file or stdin. Each line is
{"user_id": "...", "persona_id": "...", "user_text": "...", "ai_text": "..."}.
A missing user_id falls back to --user. Run "maintain memory-chains" and
"maintain user-model" afterwards to derive chains and beliefs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var turns []brain.Turn
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var t importTurn
		if err := dec.Decode(&t); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if t.UserID == "" {
			t.UserID = userID
		}
		turns = append(turns, brain.Turn{
			UserID:    t.UserID,
			PersonaID: t.PersonaID,
			UserText:  t.UserText,
			AIText:    t.AIText,
		})
	}

	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.StoreMemories(cmd.Context(), turns)
	if err != nil {
		return err
	}
	for _, f := range result.Failed {
		fmt.Fprintf(os.Stderr, "turn %d: %v\n", f.Index+1, f.Err)
	}
	fmt.Printf("imported %d/%d turns\n", len(result.Stored), result.Total)
	return nil
}
