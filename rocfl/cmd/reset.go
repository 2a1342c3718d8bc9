package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <object-id>",
	Short: "discard the staged changes of an object",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

func initReset() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	stage, err := repo.Stage(cmd.Context(), args[0])
	if err != nil {
		return errors.WithStack(err)
	}
	defer stage.Close()
	if err := stage.Reset(cmd.Context()); err != nil {
		return errors.WithStack(err)
	}
	fmt.Printf("reset staged changes of %s\n", args[0])
	return nil
}
