package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit <object-id>",
	Short: "commit an object's staged version to the repository",
	Long: `Finalizes the staged version and writes it into the main repository.
Content files are written first, the version inventory next, and the root
inventory last, so a failed commit never leaves a torn object: a reader
sees either the old version or the new one.`,
	Args: cobra.ExactArgs(1),
	RunE: runCommit,
}

func initCommit() {
	commitCmd.Flags().StringP("message", "m", "", "version message")
	commitCmd.Flags().StringP("user-name", "n", "", "committer name (default from config author_name)")
	commitCmd.Flags().StringP("user-address", "a", "", "committer address (default from config author_address)")
	commitCmd.Flags().String("object-root", "", "destination path for layout-less repositories")
	rootCmd.AddCommand(commitCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	repoConf, err := resolveRepoConfig()
	if err != nil {
		return errors.WithStack(err)
	}
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	stage, err := repo.Stage(cmd.Context(), args[0])
	if err != nil {
		return errors.WithStack(err)
	}
	defer stage.Close()
	meta := commitMetaFromFlags(cmd, repoConf)
	meta.ObjectRoot = getFlagString(cmd, "object-root")
	if err := stage.Commit(cmd.Context(), meta); err != nil {
		return errors.WithStack(err)
	}
	fmt.Printf("committed %s %s\n", args[0], stage.Head())
	return nil
}
