package config

import (
	"os"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
)

// RepoConfig is one repository entry of the config file. The same keys are
// accepted in the [global] table; a named table overrides global values and
// command-line flags override both.
type RepoConfig struct {
	AuthorName    string `toml:"author_name"`
	AuthorAddress string `toml:"author_address"`
	Root          string `toml:"root"`
	StagingRoot   string `toml:"staging_root"`
	Region        string `toml:"region"`
	Profile       string `toml:"profile"`
	Endpoint      string `toml:"endpoint"`
	Bucket        string `toml:"bucket"`
}

// Config is the parsed configuration file: a [global] table plus arbitrary
// named repository tables.
type Config struct {
	Global *RepoConfig
	Repos  map[string]*RepoConfig
}

// Load parses a TOML config document.
func Load(data string) (*Config, error) {
	var raw map[string]toml.Primitive
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	conf := &Config{
		Global: &RepoConfig{},
		Repos:  map[string]*RepoConfig{},
	}
	for name, primitive := range raw {
		repo := &RepoConfig{}
		if err := meta.PrimitiveDecode(primitive, repo); err != nil {
			return nil, errors.Wrapf(err, "cannot parse config table '%s'", name)
		}
		if name == "global" {
			conf.Global = repo
		} else {
			conf.Repos[name] = repo
		}
	}
	return conf, nil
}

// LoadFile reads and parses a config file; a missing file yields an empty
// configuration, not an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Global: &RepoConfig{}, Repos: map[string]*RepoConfig{}}, nil
		}
		return nil, errors.Wrapf(err, "cannot read config file '%s'", path)
	}
	return Load(string(data))
}

// Resolve merges the global table with a named repository table. An unknown
// name is an error; the empty name resolves to global alone.
func (conf *Config) Resolve(name string) (*RepoConfig, error) {
	resolved := *conf.Global
	if name == "" {
		return &resolved, nil
	}
	repo, ok := conf.Repos[name]
	if !ok {
		return nil, errors.Errorf("no repository '%s' in config", name)
	}
	merge(&resolved, repo)
	return &resolved, nil
}

// Names returns the configured repository names.
func (conf *Config) Names() []string {
	names := make([]string, 0, len(conf.Repos))
	for name := range conf.Repos {
		names = append(names, name)
	}
	return names
}

func merge(dst, src *RepoConfig) {
	if src.AuthorName != "" {
		dst.AuthorName = src.AuthorName
	}
	if src.AuthorAddress != "" {
		dst.AuthorAddress = src.AuthorAddress
	}
	if src.Root != "" {
		dst.Root = src.Root
	}
	if src.StagingRoot != "" {
		dst.StagingRoot = src.StagingRoot
	}
	if src.Region != "" {
		dst.Region = src.Region
	}
	if src.Profile != "" {
		dst.Profile = src.Profile
	}
	if src.Endpoint != "" {
		dst.Endpoint = src.Endpoint
	}
	if src.Bucket != "" {
		dst.Bucket = src.Bucket
	}
}
