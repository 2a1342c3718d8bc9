package ocfl

import (
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
)

func testInventory(t *testing.T) *Inventory {
	t.Helper()
	inventory, err := NewInventory("urn:test:inv", Version1_1, checksum.DigestSHA256, "", 0)
	if err != nil {
		t.Fatalf("NewInventory() - %v", err)
	}
	if err := inventory.NewVersion(time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC), "first", &User{Name: "tester"}); err != nil {
		t.Fatalf("NewVersion() - %v", err)
	}
	return inventory
}

func TestNewInventoryRejectsWeakPrimary(t *testing.T) {
	if _, err := NewInventory("urn:x", Version1_1, checksum.DigestMD5, "", 0); err == nil {
		t.Error("md5 must not be accepted as primary algorithm")
	}
	if _, err := NewInventory("urn:x", Version1_1, checksum.DigestSHA1, "", 0); err == nil {
		t.Error("sha1 must not be accepted as primary algorithm")
	}
}

func TestAddFileToStateConflicts(t *testing.T) {
	inventory := testInventory(t)
	inventory.AddManifestEntry("aa11", "v1/content/dir/file")
	if err := inventory.AddFileToState("aa11", "dir/file"); err != nil {
		t.Fatalf("AddFileToState() - %v", err)
	}
	// a path must not be both a file and a directory
	if err := inventory.AddFileToState("aa11", "dir/file/nested"); err == nil {
		t.Error("expected conflict error for dir/file/nested")
	}
	if err := inventory.AddFileToState("aa11", "dir"); err == nil {
		t.Error("expected conflict error for dir")
	}
}

func TestStateRebind(t *testing.T) {
	inventory := testInventory(t)
	inventory.AddManifestEntry("aa11", "v1/content/f")
	inventory.AddManifestEntry("bb22", "v1/content/g")
	if err := inventory.AddFileToState("aa11", "f"); err != nil {
		t.Fatalf("AddFileToState() - %v", err)
	}
	if err := inventory.AddFileToState("bb22", "f"); err != nil {
		t.Fatalf("AddFileToState() rebind - %v", err)
	}
	digest, err := inventory.DigestForLogicalPath(inventory.Head, "f")
	if err != nil {
		t.Fatalf("DigestForLogicalPath() - %v", err)
	}
	if digest != "bb22" {
		t.Errorf("digest = %s, want bb22", digest)
	}
	if len(inventory.HeadState()) != 1 {
		t.Errorf("state = %+v, old binding not removed", inventory.HeadState())
	}
}

func TestCheckUnusedManifestEntry(t *testing.T) {
	inventory := testInventory(t)
	inventory.AddManifestEntry("aa11", "v1/content/f")
	if err := inventory.Check(); err == nil {
		t.Error("expected error for manifest entry referenced by no state")
	}
	if err := inventory.AddFileToState("aa11", "f"); err != nil {
		t.Fatalf("AddFileToState() - %v", err)
	}
	if err := inventory.Check(); err != nil {
		t.Errorf("Check() - %v", err)
	}
}

func TestCheckStateDigestMissingFromManifest(t *testing.T) {
	inventory := testInventory(t)
	inventory.HeadState()["cc33"] = []string{"ghost"}
	err := inventory.Check()
	if err == nil {
		t.Fatal("expected error for state digest missing from manifest")
	}
	if !errors.Is(err, ErrCorruptInventory) {
		t.Errorf("error should be ErrCorruptInventory, got %v", err)
	}
}

func TestCheckVersionContiguity(t *testing.T) {
	inventory := testInventory(t)
	inventory.Versions["v3"] = &Version{Created: time.Now(), State: map[string][]string{}}
	inventory.Head = VersionNum{Num: 3}
	if err := inventory.Check(); err == nil {
		t.Error("expected error for gap in version sequence")
	}
}

func TestCheckContentPathShape(t *testing.T) {
	inventory := testInventory(t)
	inventory.AddManifestEntry("aa11", "elsewhere/f")
	_ = inventory.AddFileToState("aa11", "f")
	if err := inventory.Check(); err == nil {
		t.Error("expected error for content path outside v{N}/content/")
	}
}

func TestManifestInverse(t *testing.T) {
	inventory := testInventory(t)
	inventory.AddManifestEntry("aa11", "v1/content/f")
	digest, ok := inventory.DigestForContentPath("v1/content/f")
	if !ok || digest != "aa11" {
		t.Errorf("inverse lookup = %s, %v", digest, ok)
	}
	// the inverse must follow manifest mutations
	inventory.RemoveManifestEntry("aa11", "v1/content/f")
	if _, ok := inventory.DigestForContentPath("v1/content/f"); ok {
		t.Error("inverse lookup survived manifest removal")
	}
}

func TestNewVersionCopiesState(t *testing.T) {
	inventory := testInventory(t)
	inventory.AddManifestEntry("aa11", "v1/content/f")
	_ = inventory.AddFileToState("aa11", "f")
	if err := inventory.NewVersion(time.Now(), "second", nil); err != nil {
		t.Fatalf("NewVersion() - %v", err)
	}
	if inventory.Head.String() != "v2" {
		t.Errorf("head = %s", inventory.Head)
	}
	if _, err := inventory.DigestForLogicalPath(VersionNum{Num: 2}, "f"); err != nil {
		t.Errorf("state not copied into v2: %v", err)
	}
	// mutating v2 state must not affect v1
	inventory.RemoveFileFromState("f")
	if _, err := inventory.DigestForLogicalPath(VersionNum{Num: 1}, "f"); err != nil {
		t.Errorf("v1 state affected by v2 mutation: %v", err)
	}
}
