package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm -o <object-id> <logical-path>...",
	Short: "remove logical paths from an object's staged version",
	Long: `Removes logical paths from the staged version. Content that was only
staged is deleted; content of committed versions stays on disk and remains
reachable through earlier versions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

func initRm() {
	rmCmd.Flags().StringP("object", "o", "", "target object id")
	rmCmd.Flags().BoolP("recursive", "r", false, "remove logical directories recursively")
	_ = rmCmd.MarkFlagRequired("object")
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	stage, err := repo.Stage(cmd.Context(), getFlagString(cmd, "object"))
	if err != nil {
		return errors.WithStack(err)
	}
	defer stage.Close()
	recursive := getFlagBool(cmd, "recursive")
	for _, logicalPath := range args {
		if recursive {
			removed, err := stage.RemovePrefix(cmd.Context(), logicalPath)
			if err != nil {
				return errors.WithStack(err)
			}
			for _, path := range removed {
				fmt.Printf("removed %s\n", path)
			}
			continue
		}
		if err := stage.Remove(cmd.Context(), logicalPath); err != nil {
			return errors.WithStack(err)
		}
		fmt.Printf("removed %s\n", logicalPath)
	}
	return nil
}
