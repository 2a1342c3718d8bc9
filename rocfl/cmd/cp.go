package cmd

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/spf13/cobra"
)

var cpCmd = &cobra.Command{
	Use:   "cp -o <object-id> <src>... <dst>",
	Short: "copy files into an object's staged version",
	Long: `Copies local files into the staged version of an object, or, with
--internal, copies a logical path to another logical path without moving
any content. Content is hashed while it streams into the staging area;
bytes already present in the object are not stored twice.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCp,
}

func initCp() {
	cpCmd.Flags().StringP("object", "o", "", "target object id")
	cpCmd.Flags().BoolP("recursive", "r", false, "copy directories recursively")
	cpCmd.Flags().BoolP("internal", "i", false, "copy within the object (logical to logical)")
	cpCmd.Flags().StringP("version", "v", "", "source version for internal copies")
	_ = cpCmd.MarkFlagRequired("object")
	rootCmd.AddCommand(cpCmd)
}

func runCp(cmd *cobra.Command, args []string) error {
	return runCpMv(cmd, args, false)
}

// runCpMv implements cp and mv; mv deletes sources after staging succeeds.
func runCpMv(cmd *cobra.Command, args []string, move bool) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	id := getFlagString(cmd, "object")
	stage, err := repo.Stage(cmd.Context(), id)
	if err != nil {
		return errors.WithStack(err)
	}
	defer stage.Close()
	sources, dst := args[:len(args)-1], args[len(args)-1]

	if getFlagBool(cmd, "internal") {
		num, err := parseVersionArg(getFlagString(cmd, "version"))
		if err != nil {
			return errors.WithStack(err)
		}
		for _, src := range sources {
			dstLogical := dst
			if len(sources) > 1 || strings.HasSuffix(dst, "/") {
				dstLogical = strings.TrimSuffix(dst, "/") + "/" + filepath.Base(src)
			}
			if move {
				if err := stage.MoveInternal(cmd.Context(), src, dstLogical); err != nil {
					return errors.WithStack(err)
				}
			} else if err := stage.CopyInternal(cmd.Context(), num, src, dstLogical); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	recursive := getFlagBool(cmd, "recursive")
	var staged []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return errors.Wrapf(err, "cannot stat '%s'", src)
		}
		if info.IsDir() {
			if !recursive {
				return usagef("'%s' is a directory (use -r)", src)
			}
			if err := stageDir(cmd, stage, src, dst, len(sources) > 1, &staged); err != nil {
				return errors.WithStack(err)
			}
			continue
		}
		dstLogical := dst
		if len(sources) > 1 || strings.HasSuffix(dst, "/") {
			dstLogical = strings.TrimSuffix(dst, "/") + "/" + filepath.Base(src)
		}
		if err := stageFile(cmd, stage, src, strings.TrimPrefix(dstLogical, "/")); err != nil {
			return errors.WithStack(err)
		}
		staged = append(staged, src)
	}
	if move {
		for _, src := range staged {
			if err := os.Remove(src); err != nil {
				return errors.Wrapf(err, "staged but cannot remove source '%s'", src)
			}
		}
	}
	return nil
}

func stageDir(cmd *cobra.Command, stage *ocfl.Stage, src, dst string, multi bool, staged *[]string) error {
	base := dst
	if multi || strings.HasSuffix(dst, "/") {
		base = strings.TrimSuffix(dst, "/") + "/" + filepath.Base(src)
	}
	return filepath.WalkDir(src, func(path string, dirent fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}
		if dirent.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.WithStack(err)
		}
		logical := strings.TrimPrefix(base+"/"+filepath.ToSlash(rel), "/")
		if err := stageFile(cmd, stage, path, logical); err != nil {
			return errors.WithStack(err)
		}
		*staged = append(*staged, path)
		return nil
	})
}

func stageFile(cmd *cobra.Command, stage *ocfl.Stage, src, logicalPath string) error {
	fp, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "cannot open '%s'", src)
	}
	defer fp.Close()
	return errors.WithStack(stage.Add(cmd.Context(), fp, logicalPath))
}
