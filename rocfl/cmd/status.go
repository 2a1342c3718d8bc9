package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [object-id]",
	Short: "list staged objects, or show the staged changes of one object",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func initStatus() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(args) == 0 {
		ids, err := repo.StagedIds(cmd.Context())
		if err != nil {
			return errors.WithStack(err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}
	changes, head, err := repo.Status(cmd.Context(), args[0])
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Printf("Staged version %s of %s\n", head, args[0])
	printChangeSet(changes)
	return nil
}
