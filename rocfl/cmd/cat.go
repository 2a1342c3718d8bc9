package cmd

import (
	"io"
	"os"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <object-id> <logical-path>",
	Short: "write the content of a logical path to stdout",
	Args:  cobra.ExactArgs(2),
	RunE:  runCat,
}

func initCat() {
	catCmd.Flags().StringP("version", "v", "", "read from a specific version")
	catCmd.Flags().Bool("verify", false, "verify the content digest while streaming")
	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	num, err := parseVersionArg(getFlagString(cmd, "version"))
	if err != nil {
		return errors.WithStack(err)
	}
	object, err := repo.GetObject(cmd.Context(), args[0], num)
	if err != nil {
		return errors.WithStack(err)
	}
	fp, err := object.OpenFile(cmd.Context(), args[1], getFlagBool(cmd, "verify"))
	if err != nil {
		return errors.WithStack(err)
	}
	defer fp.Close()
	if _, err := io.Copy(os.Stdout, fp); err != nil {
		return errors.Wrapf(err, "cannot stream '%s'", args[1])
	}
	return nil
}
