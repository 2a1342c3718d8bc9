package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [object-id]",
	Short: "upgrade the repository or one object from OCFL 1.0 to 1.1",
	Long: `Rewrites the storage root declaration, or one object's inventories, from
OCFL 1.0 to 1.1. Content files are untouched; downgrades are refused.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpgrade,
}

func initUpgrade() {
	rootCmd.AddCommand(upgradeCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(args) == 0 {
		if err := repo.Upgrade(cmd.Context()); err != nil {
			return errors.WithStack(err)
		}
		fmt.Println("upgraded storage root to OCFL 1.1")
		return nil
	}
	if err := repo.UpgradeObject(cmd.Context(), args[0]); err != nil {
		return errors.WithStack(err)
	}
	fmt.Printf("upgraded object %s to OCFL 1.1\n", args[0])
	return nil
}
