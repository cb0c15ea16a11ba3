package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/engine"
)

var (
	decryptPassword string
	decryptType     string
	decryptLevel    string
	decryptUser     string
	decryptSession  string
	decryptAnon     bool
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt a JSON envelope from stdin to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}

		var env crisis.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("%w: %v", crisis.ErrInvalidEnvelope, err)
		}

		e := engine.New()
		if err := e.Initialize(cmd.Context()); err != nil {
			return err
		}

		cctx := crisis.Context{
			DataType:       crisis.DataType(decryptType),
			EmergencyLevel: crisis.EmergencyLevel(decryptLevel),
			UserID:         decryptUser,
			SessionID:      decryptSession,
			Anonymous:      decryptAnon,
		}

		data, err := e.Decrypt(&env, decryptPassword, cctx)
		if err != nil {
			return err
		}

		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	decryptCmd.Flags().StringVarP(&decryptPassword, "password", "p", "", "decryption password (required)")
	decryptCmd.Flags().StringVarP(&decryptType, "type", "t", string(crisis.DataCrisisMessage), "data type tag")
	decryptCmd.Flags().StringVarP(&decryptLevel, "level", "l", "", "emergency level (low|medium|high|critical)")
	decryptCmd.Flags().StringVarP(&decryptUser, "user", "u", "", "user identifier")
	decryptCmd.Flags().StringVarP(&decryptSession, "session", "s", "", "session identifier")
	decryptCmd.Flags().BoolVar(&decryptAnon, "anonymous", false, "use an anonymous context")
	_ = decryptCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(decryptCmd)
}
