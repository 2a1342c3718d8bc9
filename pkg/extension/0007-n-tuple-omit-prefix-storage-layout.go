package extension

import (
	"strings"

	"emperror.dev/errors"
)

const NTupleOmitPrefixStorageLayoutName = "0007-n-tuple-omit-prefix-storage-layout"
const NTupleOmitPrefixStorageLayoutDescription = "pairtree-like root directory structure derived from prefix-omitted object identifiers"

type NTupleOmitPrefixStorageLayoutConfig struct {
	*ExtensionConfig
	Delimiter         string `json:"delimiter"`
	TupleSize         int    `json:"tupleSize"`
	NumberOfTuples    int    `json:"numberOfTuples"`
	ZeroPadding       string `json:"zeroPadding"`
	ReverseObjectRoot bool   `json:"reverseObjectRoot"`
}

type NTupleOmitPrefixStorageLayout struct {
	*NTupleOmitPrefixStorageLayoutConfig
}

func NewNTupleOmitPrefixStorageLayout(config *NTupleOmitPrefixStorageLayoutConfig) (*NTupleOmitPrefixStorageLayout, error) {
	if config.ExtensionConfig == nil {
		config.ExtensionConfig = &ExtensionConfig{ExtensionName: NTupleOmitPrefixStorageLayoutName}
	}
	if config.TupleSize == 0 {
		config.TupleSize = 3
	}
	if config.NumberOfTuples == 0 {
		config.NumberOfTuples = 3
	}
	if config.ZeroPadding == "" {
		config.ZeroPadding = "left"
	}
	sl := &NTupleOmitPrefixStorageLayout{NTupleOmitPrefixStorageLayoutConfig: config}
	if config.ExtensionName != sl.Name() {
		return nil, errors.Errorf("invalid extension name '%s' for extension %s", config.ExtensionName, sl.Name())
	}
	if config.Delimiter == "" {
		return nil, errors.New("n-tuple omit prefix layout requires a non-empty delimiter")
	}
	if config.ZeroPadding != "left" && config.ZeroPadding != "right" {
		return nil, errors.Errorf("invalid zeroPadding '%s', must be 'left' or 'right'", config.ZeroPadding)
	}
	return sl, nil
}

func (sl *NTupleOmitPrefixStorageLayout) Name() string { return NTupleOmitPrefixStorageLayoutName }
func (sl *NTupleOmitPrefixStorageLayout) Description() string {
	return NTupleOmitPrefixStorageLayoutDescription
}
func (sl *NTupleOmitPrefixStorageLayout) Config() any {
	return sl.NTupleOmitPrefixStorageLayoutConfig
}

// BuildObjectPath strips the delimiter-bounded prefix, zero-pads the
// remainder to tupleSize*numberOfTuples characters, slices the tuples off the
// padded form, and encapsulates in the unpadded remainder (optionally
// reversed).
func (sl *NTupleOmitPrefixStorageLayout) BuildObjectPath(id string) (string, error) {
	last := strings.LastIndex(strings.ToLower(id), strings.ToLower(sl.Delimiter))
	base := id
	if last >= 0 {
		base = id[last+len(sl.Delimiter):]
	}
	if base == "" {
		return "", errors.Errorf("id '%s' is empty after removing prefix", id)
	}
	padded := base
	minLen := sl.TupleSize * sl.NumberOfTuples
	if len(padded) < minLen {
		padding := strings.Repeat("0", minLen-len(padded))
		if sl.ZeroPadding == "left" {
			padded = padding + padded
		} else {
			padded = padded + padding
		}
	}
	dirparts := []string{}
	for i := 0; i < sl.NumberOfTuples; i++ {
		dirparts = append(dirparts, padded[i*sl.TupleSize:(i+1)*sl.TupleSize])
	}
	if sl.ReverseObjectRoot {
		dirparts = append(dirparts, reverse(base))
	} else {
		dirparts = append(dirparts, base)
	}
	return strings.Join(dirparts, "/"), nil
}

var _ Layout = &NTupleOmitPrefixStorageLayout{}
