package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/config"
	"github.com/ocfl-archive/rocfl/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	ExitOK          = 0
	ExitErrors      = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// all persistent flags of the command tree go here
var persistentFlagConfigFile string
var persistentFlagRepoName string
var persistentFlagRoot string
var persistentFlagStagingRoot string
var persistentFlagBucket string
var persistentFlagRegion string
var persistentFlagEndpoint string
var persistentFlagProfile string
var persistentFlagLogLevel string
var persistentFlagLogFile string

var conf *config.Config
var logger zerolog.Logger

// recoverableErrors counts per-object failures during bulk operations; a
// nonzero count turns into exit code 1 without aborting the run.
var recoverableErrors int

var interrupted bool

var rootCmd = &cobra.Command{
	Use:   "rocfl",
	Short: "rocfl is a command-line tool for working with OCFL repositories",
	Long: fmt.Sprintf(`A command-line tool for creating, inspecting, updating and
validating repositories that follow the Oxford Common File Layout.
Version %s`, version.Version),
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func initConfig() {
	configFile := persistentFlagConfigFile
	if configFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configFile = home + "/.rocfl.toml"
		}
	}
	var err error
	conf, err = config.LoadFile(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config file %s: %v\n", configFile, err)
		os.Exit(ExitUsage)
	}

	level, err := zerolog.ParseLevel(persistentFlagLogLevel)
	if err != nil {
		level = zerolog.ErrorLevel
	}
	var out *os.File = os.Stderr
	if persistentFlagLogFile != "" {
		if fp, err := os.OpenFile(persistentFlagLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644); err == nil {
			out = fp
		}
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(level).With().Timestamp().Logger()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&persistentFlagConfigFile, "config", "", "config file (default is $HOME/.rocfl.toml)")
	rootCmd.PersistentFlags().StringVarP(&persistentFlagRepoName, "repo", "R", "", "named repository from the config file")
	rootCmd.PersistentFlags().StringVar(&persistentFlagRoot, "root", "", "storage root path, or key prefix for S3 repositories")
	rootCmd.PersistentFlags().StringVar(&persistentFlagStagingRoot, "staging-root", "", "local directory for staged versions of remote repositories")
	rootCmd.PersistentFlags().StringVar(&persistentFlagBucket, "bucket", "", "S3 bucket holding the storage root")
	rootCmd.PersistentFlags().StringVar(&persistentFlagRegion, "region", "", "S3 region")
	rootCmd.PersistentFlags().StringVar(&persistentFlagEndpoint, "endpoint", "", "S3 endpoint")
	rootCmd.PersistentFlags().StringVar(&persistentFlagProfile, "profile", "", "AWS credentials profile")
	rootCmd.PersistentFlags().StringVar(&persistentFlagLogLevel, "log-level", "error", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&persistentFlagLogFile, "log-file", "", "log output file (default is stderr)")

	initLs()
	initLog()
	initShow()
	initDiff()
	initCat()
	initStatus()
	initInit()
	initNew()
	initCp()
	initMv()
	initRm()
	initReset()
	initCommit()
	initPurge()
	initValidate()
	initInfo()
	initUpgrade()
	initConfigCmd()
}

// Execute runs the command tree and returns the process exit code. SIGINT
// cancels the run context so long scans stop between objects and deferred
// lock releases run before the process exits.
func Execute() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		interrupted = true
		cancel()
	}()
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	switch {
	case interrupted:
		return ExitInterrupted
	case err != nil:
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errUsage) || isCobraUsageError(err) {
			return ExitUsage
		}
		return ExitErrors
	case recoverableErrors > 0:
		return ExitErrors
	}
	return ExitOK
}

// isCobraUsageError matches the errors cobra produces before a command runs
// (unknown commands or flags, wrong argument counts).
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires ", "required flag"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
