package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <object-id>",
	Short: "permanently delete an object and its staged changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurge,
}

func initPurge() {
	purgeCmd.Flags().BoolP("force", "f", false, "do not ask for confirmation")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	id := args[0]
	confirm := func(objectRoot string) (bool, error) {
		if getFlagBool(cmd, "force") {
			return true, nil
		}
		fmt.Printf("permanently delete object '%s' at '%s'? [y/N] ", id, objectRoot)
		answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false, errors.Wrap(err, "cannot read confirmation")
		}
		return strings.TrimSpace(strings.ToLower(answer)) == "y", nil
	}
	if err := repo.Purge(cmd.Context(), id, confirm); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
