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
	encryptPassword string
	encryptType     string
	encryptLevel    string
	encryptUser     string
	encryptSession  string
	encryptAnon     bool
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt stdin into an envelope on stdout",
	Long: `Reads plaintext from stdin, encrypts it under the given password, and
writes the JSON envelope to stdout. The password is never stored anywhere;
losing it means losing the data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}

		e := engine.New()
		if err := e.Initialize(cmd.Context()); err != nil {
			return err
		}

		cctx := crisis.Context{
			DataType:       crisis.DataType(encryptType),
			EmergencyLevel: crisis.EmergencyLevel(encryptLevel),
			UserID:         encryptUser,
			SessionID:      encryptSession,
			Anonymous:      encryptAnon,
		}
		if encryptAnon && encryptSession == "" {
			cctx = e.NewAnonymousContext(cctx.DataType, cctx.EmergencyLevel)
		}

		env, err := e.Encrypt(data, encryptPassword, cctx)
		if err != nil {
			return err
		}

		out := json.NewEncoder(os.Stdout)
		out.SetIndent("", "  ")
		return out.Encode(env)
	},
}

func init() {
	encryptCmd.Flags().StringVarP(&encryptPassword, "password", "p", "", "encryption password (required)")
	encryptCmd.Flags().StringVarP(&encryptType, "type", "t", string(crisis.DataCrisisMessage), "data type tag")
	encryptCmd.Flags().StringVarP(&encryptLevel, "level", "l", "", "emergency level (low|medium|high|critical)")
	encryptCmd.Flags().StringVarP(&encryptUser, "user", "u", "", "user identifier")
	encryptCmd.Flags().StringVarP(&encryptSession, "session", "s", "", "session identifier")
	encryptCmd.Flags().BoolVar(&encryptAnon, "anonymous", false, "use an anonymous context")
	_ = encryptCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(encryptCmd)
}
