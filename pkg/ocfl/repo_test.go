package ocfl

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
	"github.com/ocfl-archive/rocfl/pkg/extension"
	"github.com/ocfl-archive/rocfl/pkg/storage"
	"github.com/rs/zerolog"
)

const greetDigest = "98ea6e4f216f2fb4b69fff9b3a44842c38686ca685f3f55dc48c5d3fb1107be4"

func newTestRepo(t *testing.T, layoutName string) (*Repository, *storage.LocalProvider) {
	t.Helper()
	provider, err := storage.NewLocalProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvider() - %v", err)
	}
	var layout extension.Layout
	if layoutName != "" {
		if layout, err = extension.NewLayout(layoutName, nil); err != nil {
			t.Fatalf("NewLayout(%s) - %v", layoutName, err)
		}
	}
	repo, err := InitRepository(context.Background(), provider, Version1_1, layout, &Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("InitRepository() - %v", err)
	}
	return repo, provider
}

func layoutObjectPath(t *testing.T, id string) string {
	t.Helper()
	layout, err := extension.NewLayout(extension.StorageLayoutHashedNTupleName, nil)
	if err != nil {
		t.Fatalf("NewLayout() - %v", err)
	}
	path, err := layout.BuildObjectPath(id)
	if err != nil {
		t.Fatalf("BuildObjectPath(%s) - %v", id, err)
	}
	return path
}

func stageAdd(t *testing.T, stage *Stage, content, logicalPath string) {
	t.Helper()
	if err := stage.Add(context.Background(), strings.NewReader(content), logicalPath); err != nil {
		t.Fatalf("Add(%s) - %v", logicalPath, err)
	}
}

func commitVersion(t *testing.T, repo *Repository, id, message string, setup func(stage *Stage)) {
	t.Helper()
	stage, err := repo.Stage(context.Background(), id)
	if err != nil {
		t.Fatalf("Stage(%s) - %v", id, err)
	}
	defer stage.Close()
	setup(stage)
	if err := stage.Commit(context.Background(), &CommitMeta{Message: message, UserName: "tester", UserAddress: "mailto:tester@example.org"}); err != nil {
		t.Fatalf("Commit(%s) - %v", id, err)
	}
}

func readLogical(t *testing.T, repo *Repository, id, logicalPath string) string {
	t.Helper()
	object, err := repo.GetObject(context.Background(), id, VersionNum{})
	if err != nil {
		t.Fatalf("GetObject(%s) - %v", id, err)
	}
	fp, err := object.OpenFile(context.Background(), logicalPath, true)
	if err != nil {
		t.Fatalf("OpenFile(%s) - %v", logicalPath, err)
	}
	defer fp.Close()
	data, err := io.ReadAll(fp)
	if err != nil {
		t.Fatalf("ReadAll(%s) - %v", logicalPath, err)
	}
	return string(data)
}

// Scenario: create a new object with a padded version number, add one file,
// commit, and check the physical layout.
func TestCreateAndCommit(t *testing.T) {
	repo, provider := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 4)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	defer stage.Close()
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "initial", UserName: "tester"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	if object.Head().String() != "v0001" {
		t.Errorf("head = %s, want v0001", object.Head())
	}
	digest, err := object.Inventory().DigestForLogicalPath(object.Head(), "greet.txt")
	if err != nil {
		t.Fatalf("DigestForLogicalPath() - %v", err)
	}
	if digest != greetDigest {
		t.Errorf("digest = %s", digest)
	}
	contentPath, err := object.Inventory().ContentPathForDigest(digest)
	if err != nil {
		t.Fatalf("ContentPathForDigest() - %v", err)
	}
	if contentPath != "v0001/content/greet.txt" {
		t.Errorf("content path = %s", contentPath)
	}
	// the object must live at the layout-computed path
	layoutPath := layoutObjectPath(t, "urn:test:a")
	data, err := os.ReadFile(filepath.Join(provider.Base(), filepath.FromSlash(layoutPath), "v0001", "content", "greet.txt"))
	if err != nil {
		t.Fatalf("content file missing on disk - %v", err)
	}
	if string(data) != "hi\n" {
		t.Errorf("content = %q", string(data))
	}
	if got := readLogical(t, repo, "urn:test:a", "greet.txt"); got != "hi\n" {
		t.Errorf("streamed content = %q", got)
	}
}

// Scenario: adding identical bytes under a second logical path must not grow
// the manifest; both paths share one content file.
func TestDeduplication(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 4)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	commitVersion(t, repo, "urn:test:a", "v2", func(stage *Stage) {
		stageAdd(t, stage, "hi\n", "greet2.txt")
	})

	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	inventory := object.Inventory()
	if len(inventory.Manifest) != 1 {
		t.Fatalf("manifest = %+v, want single digest", inventory.Manifest)
	}
	if paths := inventory.Manifest[greetDigest]; len(paths) != 1 || paths[0] != "v0001/content/greet.txt" {
		t.Errorf("manifest entry = %v, want only the v0001 copy", paths)
	}
	state := inventory.HeadState()
	if len(state[greetDigest]) != 2 {
		t.Errorf("head state = %v, want both logical paths", state[greetDigest])
	}

	changes, err := object.Diff(VersionNum{Num: 1}, VersionNum{Num: 2})
	if err != nil {
		t.Fatalf("Diff() - %v", err)
	}
	if len(changes.Added) != 1 || changes.Added[0] != "greet2.txt" {
		t.Errorf("added = %v", changes.Added)
	}
	if len(changes.Removed) != 0 || len(changes.Modified) != 0 {
		t.Errorf("removed = %v, modified = %v", changes.Removed, changes.Modified)
	}
}

// Scenario: removing a logical path keeps the content of prior versions on
// disk untouched.
func TestRemoveKeepsHistory(t *testing.T) {
	repo, provider := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 4)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}
	commitVersion(t, repo, "urn:test:a", "v2", func(stage *Stage) {
		stageAdd(t, stage, "hi\n", "greet2.txt")
	})
	commitVersion(t, repo, "urn:test:a", "v3", func(stage *Stage) {
		if err := stage.Remove(ctx, "greet.txt"); err != nil {
			t.Fatalf("Remove() - %v", err)
		}
	})

	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	state := object.Inventory().HeadState()
	if paths := state[greetDigest]; len(paths) != 1 || paths[0] != "greet2.txt" {
		t.Errorf("v3 state = %v, want only greet2.txt", paths)
	}
	layoutPath := layoutObjectPath(t, "urn:test:a")
	if _, err := os.Stat(filepath.Join(provider.Base(), filepath.FromSlash(layoutPath), "v0001", "content", "greet.txt")); err != nil {
		t.Errorf("original content file missing after remove - %v", err)
	}

	// the v3 change set shows the removal
	changes, err := object.Show(VersionNum{Num: 3})
	if err != nil {
		t.Fatalf("Show() - %v", err)
	}
	if len(changes.Removed) != 1 || changes.Removed[0] != "greet.txt" {
		t.Errorf("show v3 removed = %v", changes.Removed)
	}
}

// Resetting a never-committed object must leave nothing behind in staging.
func TestResetNewObjectClearsStaging(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:b", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	defer stage.Close()
	stageAdd(t, stage, "data", "f.txt")
	if err := stage.Reset(ctx); err != nil {
		t.Fatalf("Reset() - %v", err)
	}
	stagedDir := filepath.Join(repo.staging.base, filepath.FromSlash(stage.stagingRoot))
	if _, err := os.Stat(stagedDir); !os.IsNotExist(err) {
		t.Errorf("staging area for reset object still exists at %s", stagedDir)
	}
}

// Reset on a staged update restores the committed head state and deletes
// only staged content.
func TestResetRestoresHead(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	stage, err = repo.Stage(ctx, "urn:test:a")
	if err != nil {
		t.Fatalf("Stage() - %v", err)
	}
	defer stage.Close()
	stageAdd(t, stage, "other", "new.txt")
	if err := stage.Remove(ctx, "greet.txt"); err != nil {
		t.Fatalf("Remove() - %v", err)
	}
	if err := stage.Reset(ctx); err != nil {
		t.Fatalf("Reset() - %v", err)
	}
	changes, err := stage.DiffAgainstBase()
	if err != nil {
		t.Fatalf("DiffAgainstBase() - %v", err)
	}
	if len(changes.Added)+len(changes.Removed)+len(changes.Modified) != 0 {
		t.Errorf("changes after reset: %+v", changes)
	}
	if len(stage.inventory.Manifest) != 1 {
		t.Errorf("manifest after reset = %+v", stage.inventory.Manifest)
	}
}

func TestInternalCopyAndMove(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "a.txt")
	if err := stage.CopyInternal(ctx, VersionNum{}, "a.txt", "b.txt"); err != nil {
		t.Fatalf("CopyInternal() - %v", err)
	}
	if err := stage.MoveInternal(ctx, "a.txt", "c.txt"); err != nil {
		t.Fatalf("MoveInternal() - %v", err)
	}
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}
	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	state := object.Inventory().HeadState()
	paths := state[greetDigest]
	if len(paths) != 2 {
		t.Fatalf("state = %v", paths)
	}
	if len(object.Inventory().Manifest) != 1 {
		t.Errorf("manifest = %+v, internal copies must not add content", object.Inventory().Manifest)
	}
}

func TestStagedChangesInvisibleToReaders(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	stage, err = repo.Stage(ctx, "urn:test:a")
	if err != nil {
		t.Fatalf("Stage() - %v", err)
	}
	defer stage.Close()
	stageAdd(t, stage, "draft", "draft.txt")

	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	if object.Head().String() != "v1" {
		t.Errorf("reader sees head %s, want v1", object.Head())
	}
	if _, err := object.Inventory().DigestForLogicalPath(object.Head(), "draft.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("staged file visible to reader: %v", err)
	}
	ids, err := repo.StagedIds(ctx)
	if err != nil {
		t.Fatalf("StagedIds() - %v", err)
	}
	if len(ids) != 1 || ids[0] != "urn:test:a" {
		t.Errorf("staged ids = %v", ids)
	}
	changes, head, err := repo.Status(ctx, "urn:test:a")
	if err != nil {
		t.Fatalf("Status() - %v", err)
	}
	if head.String() != "v2" {
		t.Errorf("staged head = %s", head)
	}
	if len(changes.Added) != 1 || changes.Added[0] != "draft.txt" {
		t.Errorf("staged changes = %+v", changes)
	}
	if _, _, err := repo.Status(ctx, "urn:test:unstaged"); !errors.Is(err, ErrNotFound) {
		t.Errorf("status of unstaged object: %v", err)
	}
}

func TestLocking(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	if _, err := repo.Stage(ctx, "urn:test:a"); !errors.Is(err, ErrLockHeld) {
		t.Errorf("second stage should fail with ErrLockHeld, got %v", err)
	}
	stage.Close()
	stage2, err := repo.Stage(ctx, "urn:test:a")
	if err != nil {
		t.Fatalf("Stage() after Close - %v", err)
	}
	stage2.Close()
}

func TestScanModeAndListing(t *testing.T) {
	repo, _ := newTestRepo(t, "")
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:scan", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	// scan-mode repositories need an explicit destination
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err == nil {
		t.Fatal("commit without object root should fail in scan mode")
	}
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1", ObjectRoot: "objects/scan-test"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	object, err := repo.GetObject(ctx, "urn:test:scan", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() via scan - %v", err)
	}
	if object.Root() != "objects/scan-test" {
		t.Errorf("object root = %s", object.Root())
	}
	cursor, err := repo.ListObjectIds(ctx, nil)
	if err != nil {
		t.Fatalf("ListObjectIds() - %v", err)
	}
	defer cursor.Close()
	found := false
	for {
		pair, err := cursor.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() - %v", err)
		}
		if pair.Id == "urn:test:scan" {
			found = true
		}
	}
	if !found {
		t.Error("scan did not yield the committed object")
	}
}

func TestListFilesAndHistory(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "one", "dir/file1.txt")
	stageAdd(t, stage, "ten", "dir/file10.txt")
	stageAdd(t, stage, "two", "dir/file2.txt")
	stageAdd(t, stage, "top", "top.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}
	commitVersion(t, repo, "urn:test:a", "v2", func(stage *Stage) {
		stageAdd(t, stage, "two changed", "dir/file2.txt")
	})

	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	details, err := object.ListFiles("", false, SortName)
	if err != nil {
		t.Fatalf("ListFiles() - %v", err)
	}
	var names []string
	for _, detail := range details {
		names = append(names, detail.LogicalPath)
	}
	want := []string{"dir/file1.txt", "dir/file2.txt", "dir/file10.txt", "top.txt"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("listing order %v, want %v", names, want)
		}
	}
	for _, detail := range details {
		switch detail.LogicalPath {
		case "dir/file2.txt":
			if detail.Updated.Num != 2 {
				t.Errorf("file2 updated in %s, want v2", detail.Updated)
			}
		case "top.txt":
			if detail.Updated.Num != 1 {
				t.Errorf("top updated in %s, want v1", detail.Updated)
			}
		}
	}

	dirs, err := object.ListFiles("", true, SortName)
	if err != nil {
		t.Fatalf("ListFiles(dirs) - %v", err)
	}
	if len(dirs) != 2 || dirs[0].LogicalPath != "dir" || !dirs[0].IsDir || dirs[1].LogicalPath != "top.txt" {
		t.Errorf("directory listing = %+v", dirs)
	}

	globbed, err := object.ListFiles("dir/*1*", false, SortName)
	if err != nil {
		t.Fatalf("ListFiles(glob) - %v", err)
	}
	if len(globbed) != 2 {
		t.Errorf("glob matched %d entries", len(globbed))
	}

	history, err := object.VersionHistory("dir/file2.txt")
	if err != nil {
		t.Fatalf("VersionHistory() - %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history touched %d versions, want 2", len(history))
	}
	full, err := object.VersionHistory("")
	if err != nil {
		t.Fatalf("VersionHistory(all) - %v", err)
	}
	if len(full) != 2 || full[0].Num.Num != 1 || full[1].Num.Num != 2 {
		t.Errorf("full history = %+v", full)
	}
	if _, err := object.VersionHistory("nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("history of unknown path: %v", err)
	}
}

func TestOpenFileVerifyDetectsCorruption(t *testing.T) {
	repo, provider := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}
	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	contentFile := filepath.Join(provider.Base(), filepath.FromSlash(object.Root()), "v1", "content", "greet.txt")
	if err := os.WriteFile(contentFile, []byte("tampered"), 0644); err != nil {
		t.Fatalf("WriteFile() - %v", err)
	}
	fp, err := object.OpenFile(ctx, "greet.txt", true)
	if err != nil {
		t.Fatalf("OpenFile() - %v", err)
	}
	defer fp.Close()
	_, err = io.ReadAll(fp)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("expected ErrDigestMismatch, got %v", err)
	}
}

// Scenario: a sidecar that does not match the inventory bytes yields exactly
// one E060 and nothing else.
func TestValidateSidecarMismatch(t *testing.T) {
	repo, provider := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA512, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1", UserName: "tester"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}
	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	sidecar := filepath.Join(provider.Base(), filepath.FromSlash(object.Root()), "inventory.json.sha512")
	bogus := strings.Repeat("ab", 64) + "  inventory.json\n"
	if err := os.WriteFile(sidecar, []byte(bogus), 0644); err != nil {
		t.Fatalf("WriteFile() - %v", err)
	}

	var issues []*Issue
	validator := repo.NewValidator(func(issue *Issue) { issues = append(issues, issue) })
	if err := validator.ValidateObject(ctx, "urn:test:a"); err != nil {
		t.Fatalf("ValidateObject() - %v", err)
	}
	var errorIssues []*Issue
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			errorIssues = append(errorIssues, issue)
		}
	}
	if len(errorIssues) != 1 || errorIssues[0].Code != E060 {
		t.Errorf("error issues = %+v, want exactly one E060", errorIssues)
	}
}

func TestValidateCleanRepository(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA512, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1", UserName: "tester"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	validator := repo.NewValidator(nil)
	if err := validator.ValidateRepository(ctx); err != nil {
		t.Fatalf("ValidateRepository() - %v", err)
	}
	if validator.ErrorCount != 0 {
		t.Errorf("clean repository produced %d errors", validator.ErrorCount)
	}
}

func TestValidateSuppression(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 4)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	validator := repo.NewValidator(nil)
	if err := validator.ValidateObject(ctx, "urn:test:a"); err != nil {
		t.Fatalf("ValidateObject() - %v", err)
	}
	// padded versions, sha256, missing user: warnings expected
	if validator.WarningCount == 0 {
		t.Fatal("expected warnings for padded versions and sha256")
	}
	suppressed := repo.NewValidator(nil)
	suppressed.Suppress[W001] = true
	suppressed.Suppress[W004] = true
	suppressed.Suppress[W007] = true
	if err := suppressed.ValidateObject(ctx, "urn:test:a"); err != nil {
		t.Fatalf("ValidateObject() - %v", err)
	}
	if suppressed.WarningCount >= validator.WarningCount {
		t.Errorf("suppression did not reduce warnings: %d >= %d", suppressed.WarningCount, validator.WarningCount)
	}
}

func TestPurge(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	declined := false
	if err := repo.Purge(ctx, "urn:test:a", func(string) (bool, error) { declined = true; return false, nil }); err != nil {
		t.Fatalf("Purge(decline) - %v", err)
	}
	if !declined {
		t.Error("confirmation callback not invoked")
	}
	if _, err := repo.GetObject(ctx, "urn:test:a", VersionNum{}); err != nil {
		t.Fatalf("object gone after declined purge - %v", err)
	}

	if err := repo.Purge(ctx, "urn:test:a", func(string) (bool, error) { return true, nil }); err != nil {
		t.Fatalf("Purge() - %v", err)
	}
	if _, err := repo.GetObject(ctx, "urn:test:a", VersionNum{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after purge, got %v", err)
	}
	if err := repo.Purge(ctx, "urn:test:a", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("purging a purged object: %v", err)
	}
}

func TestUpgrade(t *testing.T) {
	provider, err := storage.NewLocalProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalProvider() - %v", err)
	}
	ctx := context.Background()
	layout, err := extension.NewLayout(extension.StorageLayoutHashedNTupleName, nil)
	if err != nil {
		t.Fatalf("NewLayout() - %v", err)
	}
	repo, err := InitRepository(ctx, provider, Version1_0, layout, &Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("InitRepository() - %v", err)
	}
	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA512, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "hi\n", "greet.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}

	if err := repo.Upgrade(ctx); err != nil {
		t.Fatalf("Upgrade() - %v", err)
	}
	if err := repo.Upgrade(ctx); err == nil {
		t.Error("second upgrade should fail")
	}
	reopened, err := OpenRepository(ctx, provider, &Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("OpenRepository() - %v", err)
	}
	if reopened.SpecVersion() != Version1_1 {
		t.Errorf("spec = %s after upgrade", reopened.SpecVersion())
	}

	if err := reopened.UpgradeObject(ctx, "urn:test:a"); err != nil {
		t.Fatalf("UpgradeObject() - %v", err)
	}
	object, err := reopened.GetObject(ctx, "urn:test:a", VersionNum{})
	if err != nil {
		t.Fatalf("GetObject() - %v", err)
	}
	if object.Spec() != Version1_1 {
		t.Errorf("object spec = %s after upgrade", object.Spec())
	}
	if err := reopened.UpgradeObject(ctx, "urn:test:a"); err == nil {
		t.Error("second object upgrade should fail")
	}
}

func TestPinnedVersionReads(t *testing.T) {
	repo, _ := newTestRepo(t, extension.StorageLayoutHashedNTupleName)
	ctx := context.Background()

	stage, err := repo.StageNew(ctx, "urn:test:a", checksum.DigestSHA256, "content", 0)
	if err != nil {
		t.Fatalf("StageNew() - %v", err)
	}
	stageAdd(t, stage, "first", "f.txt")
	if err := stage.Commit(ctx, &CommitMeta{Message: "v1"}); err != nil {
		t.Fatalf("Commit() - %v", err)
	}
	commitVersion(t, repo, "urn:test:a", "v2", func(stage *Stage) {
		stageAdd(t, stage, "second", "f.txt")
	})

	object, err := repo.GetObject(ctx, "urn:test:a", VersionNum{Num: 1})
	if err != nil {
		t.Fatalf("GetObject(v1) - %v", err)
	}
	fp, err := object.OpenFile(ctx, "f.txt", true)
	if err != nil {
		t.Fatalf("OpenFile() - %v", err)
	}
	defer fp.Close()
	data, _ := io.ReadAll(fp)
	if string(data) != "first" {
		t.Errorf("pinned read = %q, want 'first'", string(data))
	}
	if _, err := repo.GetObject(ctx, "urn:test:a", VersionNum{Num: 9}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing version, got %v", err)
	}
}
