package cmd

import (
	"fmt"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [object-id]...",
	Short: "validate the repository or individual objects",
	Long: `Validates the whole repository, or only the named objects, against the
OCFL specification. Issues stream out as they are found; per-object failures
do not stop the run. The exit code is 1 when any error was reported.`,
	RunE: runValidate,
}

func initValidate() {
	validateCmd.Flags().BoolP("no-warnings", "w", false, "suppress warnings")
	validateCmd.Flags().Bool("no-fixity", false, "skip content digest verification")
	validateCmd.Flags().StringSlice("suppress", nil, "validation codes to suppress (e.g. W004,W005)")
	validateCmd.Flags().BoolP("paths", "p", false, "arguments are object root paths, not ids")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return errors.WithStack(err)
	}
	noWarnings := getFlagBool(cmd, "no-warnings")
	validator := repo.NewValidator(func(issue *ocfl.Issue) {
		if noWarnings && issue.Severity == ocfl.SeverityWarning {
			return
		}
		fmt.Println(issue)
	})
	validator.NoFixity = getFlagBool(cmd, "no-fixity")
	suppress, err := cmd.Flags().GetStringSlice("suppress")
	if err != nil {
		return errors.WithStack(err)
	}
	for _, code := range suppress {
		validator.Suppress[ocfl.ValidationErrorCode(strings.ToUpper(strings.TrimSpace(code)))] = true
	}

	if len(args) == 0 {
		if err := validator.ValidateRepository(cmd.Context()); err != nil {
			return errors.WithStack(err)
		}
	} else {
		byPath := getFlagBool(cmd, "paths")
		for _, arg := range args {
			if byPath {
				err = validator.ValidateObjectAt(cmd.Context(), strings.Trim(arg, "/"))
			} else {
				err = validator.ValidateObject(cmd.Context(), arg)
			}
			if err != nil {
				recoverableErrors++
				fmt.Printf("cannot validate '%s': %v\n", arg, err)
			}
		}
	}
	fmt.Printf("%d errors, %d warnings\n", validator.ErrorCount, validator.WarningCount)
	recoverableErrors += validator.ErrorCount
	return nil
}
