package cmd

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/config"
	"github.com/ocfl-archive/rocfl/pkg/ocfl"
	"github.com/ocfl-archive/rocfl/pkg/storage"
	"github.com/spf13/cobra"
)

var errUsage = errors.New("usage error")

func usagef(format string, a ...any) error {
	return errors.WithMessagef(errUsage, format, a...)
}

func getFlagString(cmd *cobra.Command, flag string) string {
	str, err := cmd.Flags().GetString(flag)
	if err != nil {
		cobra.CheckErr(errors.Errorf("cannot get flag %s: %v", flag, err))
	}
	return str
}

func getFlagBool(cmd *cobra.Command, flag string) bool {
	b, err := cmd.Flags().GetBool(flag)
	if err != nil {
		cobra.CheckErr(errors.Errorf("cannot get flag %s: %v", flag, err))
	}
	return b
}

func getFlagInt(cmd *cobra.Command, flag string) int {
	i, err := cmd.Flags().GetInt(flag)
	if err != nil {
		cobra.CheckErr(errors.Errorf("cannot get flag %s: %v", flag, err))
	}
	return i
}

// resolveRepoConfig merges flag overrides onto the named repository table
// (or [global]); command line wins.
func resolveRepoConfig() (*config.RepoConfig, error) {
	repoConf, err := conf.Resolve(persistentFlagRepoName)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if persistentFlagRoot != "" {
		repoConf.Root = persistentFlagRoot
	}
	if persistentFlagStagingRoot != "" {
		repoConf.StagingRoot = persistentFlagStagingRoot
	}
	if persistentFlagBucket != "" {
		repoConf.Bucket = persistentFlagBucket
	}
	if persistentFlagRegion != "" {
		repoConf.Region = persistentFlagRegion
	}
	if persistentFlagEndpoint != "" {
		repoConf.Endpoint = persistentFlagEndpoint
	}
	if persistentFlagProfile != "" {
		repoConf.Profile = persistentFlagProfile
	}
	return repoConf, nil
}

func buildProvider(repoConf *config.RepoConfig) (storage.Provider, error) {
	if repoConf.Bucket != "" {
		return storage.NewS3Provider(&storage.S3Config{
			Endpoint:  repoConf.Endpoint,
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Region:    repoConf.Region,
			Bucket:    repoConf.Bucket,
			Prefix:    repoConf.Root,
			UseSSL:    true,
		})
	}
	root := repoConf.Root
	if root == "" {
		root = "."
	}
	return storage.NewLocalProvider(root)
}

// stagingBase picks where staged versions live. Local repositories stage
// inside their own storage root; remote repositories stage in a per-repo
// directory keyed by a hash of endpoint, bucket and root.
func stagingBase(repoConf *config.RepoConfig) (string, error) {
	if repoConf.Bucket == "" {
		return "", nil
	}
	base := repoConf.StagingRoot
	if base == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return "", errors.Wrap(err, "cannot determine cache directory; set staging_root")
		}
		base = filepath.Join(cacheDir, "rocfl")
	}
	key := sha256.Sum256([]byte(repoConf.Endpoint + "/" + repoConf.Bucket + "/" + repoConf.Root))
	return filepath.Join(base, fmt.Sprintf("%x", key[:8])), nil
}

func openRepository(cmd *cobra.Command) (*ocfl.Repository, error) {
	repoConf, err := resolveRepoConfig()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	provider, err := buildProvider(repoConf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	staging, err := stagingBase(repoConf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	repo, err := ocfl.OpenRepository(cmd.Context(), provider, &ocfl.Options{
		Logger:      logger,
		StagingBase: staging,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return repo, nil
}

func parseVersionArg(arg string) (ocfl.VersionNum, error) {
	if arg == "" {
		return ocfl.VersionNum{}, nil
	}
	num, err := ocfl.ParseVersionNum(arg)
	if err != nil {
		return ocfl.VersionNum{}, usagef("invalid version '%s'", arg)
	}
	return num, nil
}

func commitMetaFromFlags(cmd *cobra.Command, repoConf *config.RepoConfig) *ocfl.CommitMeta {
	meta := &ocfl.CommitMeta{
		Message:     getFlagString(cmd, "message"),
		UserName:    repoConf.AuthorName,
		UserAddress: repoConf.AuthorAddress,
	}
	if name := getFlagString(cmd, "user-name"); name != "" {
		meta.UserName = name
	}
	if address := getFlagString(cmd, "user-address"); address != "" {
		meta.UserAddress = address
	}
	return meta
}
