package cmd

import (
	"fmt"
	"sort"

	"emperror.dev/errors"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the resolved configuration",
	RunE:  runConfig,
}

func initConfigCmd() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	repoConf, err := resolveRepoConfig()
	if err != nil {
		return errors.WithStack(err)
	}
	name := persistentFlagRepoName
	if name == "" {
		name = "global"
	}
	fmt.Printf("[%s]\n", name)
	fmt.Printf("author_name    = %q\n", repoConf.AuthorName)
	fmt.Printf("author_address = %q\n", repoConf.AuthorAddress)
	fmt.Printf("root           = %q\n", repoConf.Root)
	fmt.Printf("staging_root   = %q\n", repoConf.StagingRoot)
	if repoConf.Bucket != "" {
		fmt.Printf("bucket         = %q\n", repoConf.Bucket)
		fmt.Printf("region         = %q\n", repoConf.Region)
		fmt.Printf("endpoint       = %q\n", repoConf.Endpoint)
		fmt.Printf("profile        = %q\n", repoConf.Profile)
	}
	names := conf.Names()
	if len(names) > 0 {
		sort.Strings(names)
		fmt.Println("\nconfigured repositories:")
		for _, repoName := range names {
			fmt.Printf("  %s\n", repoName)
		}
	}
	return nil
}
