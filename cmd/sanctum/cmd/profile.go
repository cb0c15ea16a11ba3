package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanctumkit/sanctum/engine"
	"github.com/sanctumkit/sanctum/keymgr"
	bboltstorage "github.com/sanctumkit/sanctum/storage/bbolt"
)

var (
	profileDataDir  string
	profilePassword string
	profileContacts []string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage durable user key profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <user-id>",
	Short: "Enroll a user key profile in the local profile store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, store, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		defer mgr.Dispose()

		var opts []keymgr.CreateProfileOption
		if len(profileContacts) > 0 {
			opts = append(opts, keymgr.WithEmergencyAccess(profileContacts...))
		}
		profile, err := mgr.CreateUserProfile(args[0], profilePassword, opts...)
		if err != nil {
			return err
		}
		fmt.Printf("profile created: user=%s key=%s version=%d iterations=%d\n",
			profile.UserID, profile.KeyID, profile.Version, profile.Derivation.Iterations)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled users in the local profile store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := bboltstorage.NewStoreFromFile(profileDB(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := store.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func profileDB() string {
	return profileDataDir + "/profiles.db"
}

func openManager(cmd *cobra.Command) (*keymgr.Manager, *bboltstorage.Store, error) {
	if err := os.MkdirAll(profileDataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := bboltstorage.NewStoreFromFile(profileDB(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open profile store: %w", err)
	}

	e := engine.New()
	if err := e.Initialize(cmd.Context()); err != nil {
		store.Close()
		return nil, nil, err
	}
	mgr, err := keymgr.New(e, keymgr.WithProfileStore(store))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return mgr, store, nil
}

func init() {
	profileCmd.PersistentFlags().StringVarP(&profileDataDir, "data-dir", "d", "./data", "profile store directory")
	profileCreateCmd.Flags().StringVarP(&profilePassword, "password", "p", "", "user password (required)")
	profileCreateCmd.Flags().StringSliceVar(&profileContacts, "emergency-contact", nil, "emergency contact allowed to request delayed access")
	_ = profileCreateCmd.MarkFlagRequired("password")
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileListCmd)
	rootCmd.AddCommand(profileCmd)
}
