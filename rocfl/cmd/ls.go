package cmd

import (
	"fmt"
	"io"
	"os"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [object-id] [glob]",
	Short: "list objects, or the files of one object",
	Long: `Without an object id, streams the ids of all objects in the repository
in the order the storage layout or scanner produces them. With an object id,
lists the logical paths of the object's head or a pinned version.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runLs,
}

func initLs() {
	lsCmd.Flags().StringP("version", "v", "", "pin the listing to a version (e.g. v2)")
	lsCmd.Flags().BoolP("directories", "D", false, "interpret logical paths as directories")
	lsCmd.Flags().BoolP("physical", "p", false, "show physical content paths")
	lsCmd.Flags().BoolP("long", "l", false, "show version, timestamp and digest")
	lsCmd.Flags().StringP("sort", "s", "name", "sort order: name|version|updated|none")
	lsCmd.Flags().Bool("objects", false, "list object root paths instead of ids")
	rootCmd.AddCommand(lsCmd)
}

func sortFieldFromFlag(name string) (ocfl.SortField, error) {
	switch name {
	case "name":
		return ocfl.SortName, nil
	case "version":
		return ocfl.SortVersion, nil
	case "updated":
		return ocfl.SortUpdated, nil
	case "none":
		return ocfl.SortNone, nil
	}
	return ocfl.SortNone, usagef("unknown sort order '%s'", name)
}

func runLs(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(args) == 0 {
		return lsObjects(cmd, repo)
	}
	glob := ""
	if len(args) == 2 {
		glob = args[1]
	}
	return lsFiles(cmd, repo, args[0], glob)
}

// lsObjects streams ids without sorting so that enormous repositories do
// not buffer.
func lsObjects(cmd *cobra.Command, repo *ocfl.Repository) error {
	showPaths := getFlagBool(cmd, "objects")
	cursor, err := repo.ListObjectIds(cmd.Context(), func(path string, err error) {
		recoverableErrors++
		fmt.Fprintf(os.Stderr, "error reading object at '%s': %v\n", path, err)
	})
	if err != nil {
		return errors.WithStack(err)
	}
	defer cursor.Close()
	for {
		pair, err := cursor.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if showPaths {
			fmt.Printf("%s\t%s\n", pair.Id, pair.Path)
		} else {
			fmt.Println(pair.Id)
		}
	}
}

func lsFiles(cmd *cobra.Command, repo *ocfl.Repository, id, glob string) error {
	num, err := parseVersionArg(getFlagString(cmd, "version"))
	if err != nil {
		return errors.WithStack(err)
	}
	sortBy, err := sortFieldFromFlag(getFlagString(cmd, "sort"))
	if err != nil {
		return errors.WithStack(err)
	}
	object, err := repo.GetObject(cmd.Context(), id, num)
	if err != nil {
		return errors.WithStack(err)
	}
	details, err := object.ListFiles(glob, getFlagBool(cmd, "directories"), sortBy)
	if err != nil {
		return errors.WithStack(err)
	}
	long := getFlagBool(cmd, "long")
	physical := getFlagBool(cmd, "physical")
	for _, detail := range details {
		name := detail.LogicalPath
		if detail.IsDir {
			name += "/"
			fmt.Println(name)
			continue
		}
		switch {
		case long:
			fmt.Printf("%s\t%s\t%s\t%s\n", detail.Updated, detail.UpdatedTime.Format("2006-01-02 15:04:05"), detail.Digest, name)
		case physical:
			fmt.Printf("%s\t%s\n", name, detail.ContentPath)
		default:
			fmt.Println(name)
		}
	}
	return nil
}
