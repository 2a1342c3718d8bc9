package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <object-id> [logical-path]",
	Short: "show the version history of an object or one of its files",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLog,
}

func initLog() {
	logCmd.Flags().BoolP("reverse", "r", false, "newest version first")
	logCmd.Flags().IntP("num", "n", 0, "limit the number of versions shown")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	object, err := repo.GetObject(cmd.Context(), args[0], ocfl.VersionNum{})
	if err != nil {
		return errors.WithStack(err)
	}
	logicalPath := ""
	if len(args) == 2 {
		logicalPath = args[1]
	}
	history, err := object.VersionHistory(logicalPath)
	if err != nil {
		return errors.WithStack(err)
	}
	if getFlagBool(cmd, "reverse") {
		for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
			history[i], history[j] = history[j], history[i]
		}
	}
	if limit := getFlagInt(cmd, "num"); limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	for _, details := range history {
		printVersionDetails(details)
	}
	return nil
}

func printVersionDetails(details *ocfl.VersionDetails) {
	fmt.Printf("Version %s\n", details.Num)
	if details.User != nil {
		if details.User.Address != "" {
			fmt.Printf("Author:  %s <%s>\n", details.User.Name, details.User.Address)
		} else {
			fmt.Printf("Author:  %s\n", details.User.Name)
		}
	}
	fmt.Printf("Date:    %s\n", details.Created.Format("2006-01-02 15:04:05 -0700"))
	if details.Message != "" {
		fmt.Printf("Message: %s\n", details.Message)
	}
	fmt.Println()
}
