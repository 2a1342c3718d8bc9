package extension

import (
	"emperror.dev/errors"
)

const StorageLayoutFlatDirectName = "0002-flat-direct-storage-layout"
const StorageLayoutFlatDirectDescription = "one to one mapping without changes"

type StorageLayoutFlatDirectConfig struct {
	*ExtensionConfig
}

type StorageLayoutFlatDirect struct {
	*StorageLayoutFlatDirectConfig
}

func NewStorageLayoutFlatDirect(config *StorageLayoutFlatDirectConfig) (*StorageLayoutFlatDirect, error) {
	sl := &StorageLayoutFlatDirect{StorageLayoutFlatDirectConfig: config}
	if config.ExtensionConfig == nil {
		config.ExtensionConfig = &ExtensionConfig{ExtensionName: StorageLayoutFlatDirectName}
	}
	if config.ExtensionName != sl.Name() {
		return nil, errors.Errorf("invalid extension name '%s' for extension %s", config.ExtensionName, sl.Name())
	}
	return sl, nil
}

func (sl *StorageLayoutFlatDirect) Name() string        { return StorageLayoutFlatDirectName }
func (sl *StorageLayoutFlatDirect) Description() string { return StorageLayoutFlatDirectDescription }
func (sl *StorageLayoutFlatDirect) Config() any         { return sl.StorageLayoutFlatDirectConfig }

// BuildObjectPath encodes the id into a single path segment. Ids whose
// encoding would be empty are rejected.
func (sl *StorageLayoutFlatDirect) BuildObjectPath(id string) (string, error) {
	if id == "" {
		return "", errors.New("cannot map empty object id")
	}
	return escape(id), nil
}

var _ Layout = &StorageLayoutFlatDirect{}
