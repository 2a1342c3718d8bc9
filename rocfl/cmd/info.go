package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/dustin/go-humanize"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [object-id]",
	Short: "summarize the repository or one object",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInfo,
}

func initInfo() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(args) == 0 {
		info := repo.Info()
		fmt.Printf("Spec version:   %s\n", info.SpecVersion)
		if info.Layout != "" {
			fmt.Printf("Storage layout: %s\n", info.Layout)
		} else {
			fmt.Println("Storage layout: none (scan mode)")
		}
		return nil
	}
	object, err := repo.GetObject(cmd.Context(), args[0], ocfl.VersionNum{})
	if err != nil {
		return errors.WithStack(err)
	}
	inventory := object.Inventory()
	files := 0
	for _, paths := range inventory.HeadState() {
		files += len(paths)
	}
	fmt.Printf("Object id:        %s\n", object.Id())
	fmt.Printf("Spec version:     %s\n", object.Spec())
	fmt.Printf("Digest algorithm: %s\n", object.Algorithm())
	fmt.Printf("Head:             %s\n", object.Head())
	fmt.Printf("Versions:         %s\n", humanize.Comma(int64(len(inventory.Versions))))
	fmt.Printf("Files (head):     %s\n", humanize.Comma(int64(files)))
	fmt.Printf("Stored digests:   %s\n", humanize.Comma(int64(len(inventory.Manifest))))
	return nil
}
