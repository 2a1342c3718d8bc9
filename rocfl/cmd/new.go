package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new <object-id>",
	Short: "stage a new, empty object",
	Long: `Stages a new object in the staging area. The digest algorithm, content
directory name and version number padding are fixed here for the object's
lifetime. Nothing is written to the main repository until commit.`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

func initNew() {
	newCmd.Flags().StringP("digest", "d", string(checksum.DigestSHA512), "primary digest algorithm (sha512 or sha256)")
	newCmd.Flags().String("content-directory", "", "content directory name (default 'content')")
	newCmd.Flags().Int("zero-padding", 0, "zero-padding width of version numbers")
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	stage, err := repo.StageNew(cmd.Context(), args[0],
		checksum.DigestAlgorithm(getFlagString(cmd, "digest")),
		getFlagString(cmd, "content-directory"),
		getFlagInt(cmd, "zero-padding"))
	if err != nil {
		return errors.WithStack(err)
	}
	defer stage.Close()
	fmt.Printf("staged new object %s\n", stage.Id())
	return nil
}
