package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <object-id> <left-version> <right-version>",
	Short: "diff two versions of an object by logical path",
	Args:  cobra.ExactArgs(3),
	RunE:  runDiff,
}

func initDiff() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	left, err := parseVersionArg(args[1])
	if err != nil {
		return errors.WithStack(err)
	}
	right, err := parseVersionArg(args[2])
	if err != nil {
		return errors.WithStack(err)
	}
	object, err := repo.GetObject(cmd.Context(), args[0], ocfl.VersionNum{})
	if err != nil {
		return errors.WithStack(err)
	}
	changes, err := object.Diff(left, right)
	if err != nil {
		return errors.WithStack(err)
	}
	printChangeSet(changes)
	return nil
}

func printChangeSet(changes *ocfl.ChangeSet) {
	for _, path := range changes.Added {
		fmt.Printf("A\t%s\n", path)
	}
	for _, path := range changes.Modified {
		fmt.Printf("M\t%s\n", path)
	}
	for _, path := range changes.Removed {
		fmt.Printf("D\t%s\n", path)
	}
}
