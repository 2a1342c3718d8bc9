package cmd

import (
	"fmt"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/extension"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "create a new OCFL storage root",
	RunE:  runInit,
}

func initInit() {
	initCmd.Flags().String("spec", "1.1", "OCFL spec version (1.0 or 1.1)")
	initCmd.Flags().StringP("layout", "l", extension.StorageLayoutHashedNTupleName, "storage layout extension id, or 'none' for a layout-less root")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	repoConf, err := resolveRepoConfig()
	if err != nil {
		return errors.WithStack(err)
	}
	provider, err := buildProvider(repoConf)
	if err != nil {
		return errors.WithStack(err)
	}
	spec := ocfl.OCFLVersion(getFlagString(cmd, "spec"))
	if spec != ocfl.Version1_0 && spec != ocfl.Version1_1 {
		return usagef("unknown spec version '%s'", spec)
	}
	var layout extension.Layout
	if name := getFlagString(cmd, "layout"); name != "none" {
		if layout, err = extension.NewLayout(name, nil); err != nil {
			return errors.WithStack(err)
		}
	}
	staging, err := stagingBase(repoConf)
	if err != nil {
		return errors.WithStack(err)
	}
	repo, err := ocfl.InitRepository(cmd.Context(), provider, spec, layout, &ocfl.Options{
		Logger:      logger,
		StagingBase: staging,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Printf("initialized OCFL %s storage root", repo.SpecVersion())
	if layout != nil {
		fmt.Printf(" with layout %s", layout.Name())
	}
	fmt.Println()
	return nil
}
