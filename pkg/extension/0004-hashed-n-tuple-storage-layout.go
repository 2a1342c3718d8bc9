package extension

import (
	"fmt"
	"hash"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
)

const StorageLayoutHashedNTupleName = "0004-hashed-n-tuple-storage-layout"
const StorageLayoutHashedNTupleDescription = "Hashed N-tuple Storage Layout"

type StorageLayoutHashedNTupleConfig struct {
	*ExtensionConfig
	DigestAlgorithm string `json:"digestAlgorithm"`
	TupleSize       int    `json:"tupleSize"`
	NumberOfTuples  int    `json:"numberOfTuples"`
	ShortObjectRoot bool   `json:"shortObjectRoot"`
}

type StorageLayoutHashedNTuple struct {
	*StorageLayoutHashedNTupleConfig
	hash hash.Hash
}

func NewStorageLayoutHashedNTuple(config *StorageLayoutHashedNTupleConfig) (*StorageLayoutHashedNTuple, error) {
	var err error
	if config.ExtensionConfig == nil {
		config.ExtensionConfig = &ExtensionConfig{ExtensionName: StorageLayoutHashedNTupleName}
	}
	if config.DigestAlgorithm == "" {
		config.DigestAlgorithm = string(checksum.DigestSHA256)
	}
	if config.NumberOfTuples > 32 {
		config.NumberOfTuples = 32
	}
	if config.TupleSize > 32 {
		config.TupleSize = 32
	}
	if config.TupleSize == 0 || config.NumberOfTuples == 0 {
		config.NumberOfTuples = 0
		config.TupleSize = 0
	}
	sl := &StorageLayoutHashedNTuple{StorageLayoutHashedNTupleConfig: config}
	if sl.hash, err = checksum.GetHash(checksum.DigestAlgorithm(config.DigestAlgorithm)); err != nil {
		return nil, errors.Wrapf(err, "invalid hash %s", config.DigestAlgorithm)
	}
	if config.ExtensionName != sl.Name() {
		return nil, errors.Errorf("invalid extension name '%s' for extension %s", config.ExtensionName, sl.Name())
	}
	return sl, nil
}

func (sl *StorageLayoutHashedNTuple) Name() string        { return StorageLayoutHashedNTupleName }
func (sl *StorageLayoutHashedNTuple) Description() string { return StorageLayoutHashedNTupleDescription }
func (sl *StorageLayoutHashedNTuple) Config() any         { return sl.StorageLayoutHashedNTupleConfig }

func (sl *StorageLayoutHashedNTuple) BuildObjectPath(id string) (string, error) {
	sl.hash.Reset()
	if _, err := sl.hash.Write([]byte(id)); err != nil {
		return "", errors.Wrapf(err, "cannot hash %s", id)
	}
	digest := fmt.Sprintf("%x", sl.hash.Sum(nil))
	if len(digest) < sl.TupleSize*sl.NumberOfTuples {
		return "", errors.Errorf("digest %s too short for %v tuples of %v chars", sl.DigestAlgorithm, sl.NumberOfTuples, sl.TupleSize)
	}
	dirparts := []string{}
	for i := 0; i < sl.NumberOfTuples; i++ {
		dirparts = append(dirparts, digest[i*sl.TupleSize:(i+1)*sl.TupleSize])
	}
	if sl.ShortObjectRoot {
		dirparts = append(dirparts, digest[sl.NumberOfTuples*sl.TupleSize:])
	} else {
		dirparts = append(dirparts, digest)
	}
	return strings.Join(dirparts, "/"), nil
}

var _ Layout = &StorageLayoutHashedNTuple{}
