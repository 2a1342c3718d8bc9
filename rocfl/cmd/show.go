package cmd

import (
	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <object-id> [version]",
	Short: "show the changes a version introduced",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runShow,
}

func initShow() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	var num ocfl.VersionNum
	if len(args) == 2 {
		if num, err = parseVersionArg(args[1]); err != nil {
			return errors.WithStack(err)
		}
	}
	object, err := repo.GetObject(cmd.Context(), args[0], ocfl.VersionNum{})
	if err != nil {
		return errors.WithStack(err)
	}
	changes, err := object.Show(num)
	if err != nil {
		return errors.WithStack(err)
	}
	printChangeSet(changes)
	return nil
}
