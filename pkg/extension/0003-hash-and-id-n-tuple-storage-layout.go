package extension

import (
	"fmt"
	"hash"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
)

const StorageLayoutHashAndIdNTupleName = "0003-hash-and-id-n-tuple-storage-layout"
const StorageLayoutHashAndIdNTupleDescription = "Hashed Truncated N-tuple Trees with Object ID Encapsulating Directory for OCFL Storage Hierarchies"

const maxEncapsulationLength = 100

type StorageLayoutHashAndIdNTupleConfig struct {
	*ExtensionConfig
	DigestAlgorithm string `json:"digestAlgorithm"`
	TupleSize       int    `json:"tupleSize"`
	NumberOfTuples  int    `json:"numberOfTuples"`
}

type StorageLayoutHashAndIdNTuple struct {
	*StorageLayoutHashAndIdNTupleConfig
	hash hash.Hash
}

func NewStorageLayoutHashAndIdNTuple(config *StorageLayoutHashAndIdNTupleConfig) (*StorageLayoutHashAndIdNTuple, error) {
	var err error
	if config.ExtensionConfig == nil {
		config.ExtensionConfig = &ExtensionConfig{ExtensionName: StorageLayoutHashAndIdNTupleName}
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
	sl := &StorageLayoutHashAndIdNTuple{StorageLayoutHashAndIdNTupleConfig: config}
	if sl.hash, err = checksum.GetHash(checksum.DigestAlgorithm(config.DigestAlgorithm)); err != nil {
		return nil, errors.Wrapf(err, "invalid hash %s", config.DigestAlgorithm)
	}
	if config.ExtensionName != sl.Name() {
		return nil, errors.Errorf("invalid extension name '%s' for extension %s", config.ExtensionName, sl.Name())
	}
	return sl, nil
}

func (sl *StorageLayoutHashAndIdNTuple) Name() string { return StorageLayoutHashAndIdNTupleName }
func (sl *StorageLayoutHashAndIdNTuple) Description() string {
	return StorageLayoutHashAndIdNTupleDescription
}
func (sl *StorageLayoutHashAndIdNTuple) Config() any { return sl.StorageLayoutHashAndIdNTupleConfig }

func (sl *StorageLayoutHashAndIdNTuple) BuildObjectPath(id string) (string, error) {
	path := escape(id)
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
	// long encapsulation directories are truncated and disambiguated by digest
	if len(path) > maxEncapsulationLength {
		path = path[0:maxEncapsulationLength] + "-" + digest
	}
	dirparts = append(dirparts, path)
	return strings.Join(dirparts, "/"), nil
}

var _ Layout = &StorageLayoutHashAndIdNTuple{}
