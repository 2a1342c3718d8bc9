package extension

import (
	"encoding/json"

	"emperror.dev/errors"
)

// ExtensionConfig is the common part of every extension's config.json.
type ExtensionConfig struct {
	ExtensionName string `json:"extensionName"`
}

// Layout maps an object id to the object's root path relative to the storage
// root. Implementations are small tagged variants behind a registry; there is
// no inheritance hierarchy.
type Layout interface {
	Name() string
	Description() string
	BuildObjectPath(id string) (string, error)
	Config() any
}

type layoutFactory func(configJSON []byte) (Layout, error)

var registry = map[string]layoutFactory{
	StorageLayoutFlatDirectName: func(data []byte) (Layout, error) {
		config := &StorageLayoutFlatDirectConfig{}
		if err := unmarshalConfig(data, config, StorageLayoutFlatDirectName); err != nil {
			return nil, errors.WithStack(err)
		}
		return NewStorageLayoutFlatDirect(config)
	},
	StorageLayoutHashAndIdNTupleName: func(data []byte) (Layout, error) {
		config := &StorageLayoutHashAndIdNTupleConfig{}
		if err := unmarshalConfig(data, config, StorageLayoutHashAndIdNTupleName); err != nil {
			return nil, errors.WithStack(err)
		}
		return NewStorageLayoutHashAndIdNTuple(config)
	},
	StorageLayoutHashedNTupleName: func(data []byte) (Layout, error) {
		config := &StorageLayoutHashedNTupleConfig{}
		if err := unmarshalConfig(data, config, StorageLayoutHashedNTupleName); err != nil {
			return nil, errors.WithStack(err)
		}
		return NewStorageLayoutHashedNTuple(config)
	},
	FlatOmitPrefixStorageLayoutName: func(data []byte) (Layout, error) {
		config := &FlatOmitPrefixStorageLayoutConfig{}
		if err := unmarshalConfig(data, config, FlatOmitPrefixStorageLayoutName); err != nil {
			return nil, errors.WithStack(err)
		}
		return NewFlatOmitPrefixStorageLayout(config)
	},
	NTupleOmitPrefixStorageLayoutName: func(data []byte) (Layout, error) {
		config := &NTupleOmitPrefixStorageLayoutConfig{}
		if err := unmarshalConfig(data, config, NTupleOmitPrefixStorageLayoutName); err != nil {
			return nil, errors.WithStack(err)
		}
		return NewNTupleOmitPrefixStorageLayout(config)
	},
}

func unmarshalConfig(data []byte, config any, name string) error {
	if len(data) == 0 {
		data = []byte(`{"extensionName":"` + name + `"}`)
	}
	if err := json.Unmarshal(data, config); err != nil {
		return errors.Wrapf(err, "cannot unmarshal config '%s'", string(data))
	}
	return nil
}

// IsKnown reports whether a layout extension id has a registered factory.
func IsKnown(name string) bool {
	_, ok := registry[name]
	return ok
}

// NewLayout resolves a layout extension by id and configures it from its
// config.json bytes. Empty configJSON uses the extension's defaults.
func NewLayout(name string, configJSON []byte) (Layout, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown storage layout extension '%s'", name)
	}
	return factory(configJSON)
}
