package extension

import (
	"strings"

	"emperror.dev/errors"
)

const FlatOmitPrefixStorageLayoutName = "0006-flat-omit-prefix-storage-layout"
const FlatOmitPrefixStorageLayoutDescription = "removes prefix after last occurrence of delimiter"

type FlatOmitPrefixStorageLayoutConfig struct {
	*ExtensionConfig
	Delimiter string `json:"delimiter"`
}

type FlatOmitPrefixStorageLayout struct {
	*FlatOmitPrefixStorageLayoutConfig
}

func NewFlatOmitPrefixStorageLayout(config *FlatOmitPrefixStorageLayoutConfig) (*FlatOmitPrefixStorageLayout, error) {
	if config.ExtensionConfig == nil {
		config.ExtensionConfig = &ExtensionConfig{ExtensionName: FlatOmitPrefixStorageLayoutName}
	}
	sl := &FlatOmitPrefixStorageLayout{FlatOmitPrefixStorageLayoutConfig: config}
	if config.ExtensionName != sl.Name() {
		return nil, errors.Errorf("invalid extension name '%s' for extension %s", config.ExtensionName, sl.Name())
	}
	if config.Delimiter == "" {
		return nil, errors.New("flat omit prefix layout requires a non-empty delimiter")
	}
	return sl, nil
}

func (sl *FlatOmitPrefixStorageLayout) Name() string { return FlatOmitPrefixStorageLayoutName }
func (sl *FlatOmitPrefixStorageLayout) Description() string {
	return FlatOmitPrefixStorageLayoutDescription
}
func (sl *FlatOmitPrefixStorageLayout) Config() any { return sl.FlatOmitPrefixStorageLayoutConfig }

// BuildObjectPath strips everything through the last occurrence of the
// delimiter. Matching is case-insensitive; the remainder keeps its case.
func (sl *FlatOmitPrefixStorageLayout) BuildObjectPath(id string) (string, error) {
	last := strings.LastIndex(strings.ToLower(id), strings.ToLower(sl.Delimiter))
	if last < 0 {
		return id, nil
	}
	rest := id[last+len(sl.Delimiter):]
	if rest == "" {
		return "", errors.Errorf("id '%s' is empty after removing prefix", id)
	}
	return rest, nil
}

var _ Layout = &FlatOmitPrefixStorageLayout{}
