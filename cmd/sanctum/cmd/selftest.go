package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanctumkit/sanctum/engine"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Verify the cryptographic capabilities of this host",
	Long: `Runs the engine initialization self-test: derives a key, encrypts a known
value, decrypts it, and compares. A failure means this host cannot safely
handle protected data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engine.New()
		if err := e.Initialize(cmd.Context()); err != nil {
			return fmt.Errorf("self-test failed: %w", err)
		}
		fmt.Println("self-test passed: AES-256-GCM with PBKDF2-SHA-256 available")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}
