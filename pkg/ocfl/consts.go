package ocfl

import "fmt"

type OCFLVersion string

const (
	Version1_0 OCFLVersion = "1.0"
	Version1_1 OCFLVersion = "1.1"
)

const (
	InventoryFile       = "inventory.json"
	LayoutFile          = "ocfl_layout.json"
	ExtensionsDir       = "extensions"
	ExtensionConfigFile = "config.json"
	DefaultContentDir   = "content"

	StagingExtensionDir = "extensions/rocfl-staging"
	LocksExtensionDir   = "extensions/rocfl-locks"
)

func RootNamasteFile(version OCFLVersion) string {
	return fmt.Sprintf("0=ocfl_%s", version)
}

func RootNamasteContent(version OCFLVersion) string {
	return fmt.Sprintf("ocfl_%s\n", version)
}

func ObjectNamasteFile(version OCFLVersion) string {
	return fmt.Sprintf("0=ocfl_object_%s", version)
}

func ObjectNamasteContent(version OCFLVersion) string {
	return fmt.Sprintf("ocfl_object_%s\n", version)
}

func InventoryType(version OCFLVersion) string {
	return fmt.Sprintf("https://ocfl.io/%s/spec/#inventory", version)
}

// VersionFromInventoryType recovers the spec version from an inventory's
// type URI; unknown URIs return an empty version.
func VersionFromInventoryType(typeURI string) OCFLVersion {
	switch typeURI {
	case "https://ocfl.io/1.0/spec/#inventory":
		return Version1_0
	case "https://ocfl.io/1.1/spec/#inventory":
		return Version1_1
	}
	return ""
}
