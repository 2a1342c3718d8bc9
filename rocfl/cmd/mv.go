package cmd

import (
	"github.com/spf13/cobra"
)

var mvCmd = &cobra.Command{
	Use:   "mv -o <object-id> <src>... <dst>",
	Short: "move files into an object's staged version",
	Long: `Like cp, but local sources are deleted once staging succeeds, and
--internal renames a logical path within the staged version.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMv,
}

func initMv() {
	mvCmd.Flags().StringP("object", "o", "", "target object id")
	mvCmd.Flags().BoolP("recursive", "r", false, "move directories recursively")
	mvCmd.Flags().BoolP("internal", "i", false, "rename within the object (logical to logical)")
	mvCmd.Flags().StringP("version", "v", "", "unused for moves; accepted for symmetry with cp")
	_ = mvCmd.MarkFlagRequired("object")
	rootCmd.AddCommand(mvCmd)
}

func runMv(cmd *cobra.Command, args []string) error {
	return runCpMv(cmd, args, true)
}
