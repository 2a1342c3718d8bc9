package ocfl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
	"golang.org/x/exp/slices"
)

// zeroTime marks a staged version's created field until commit finalizes it.
func zeroTime() time.Time {
	return time.Time{}
}

// Stage is a writable handle on an object's in-progress next version. It
// holds the object's staging lock from creation until Close; every mutation
// persists the staged inventory so that interrupted sessions survive.
type Stage struct {
	repo *Repository
	id   string
	// inventory is the staged inventory; its head is the uncommitted version
	inventory *Inventory
	// base is the committed inventory this stage grew from, nil for new objects
	base *Inventory
	// objectRoot is the object's path in the main repository, empty until
	// the object is first committed in scan mode
	objectRoot  string
	stagingRoot string
	lock        *objectLock
	closed      bool
}

// Stage opens a mutable handle on an existing object, resuming a staged
// version if one exists.
func (repo *Repository) Stage(ctx context.Context, id string) (*Stage, error) {
	if repo.staging == nil {
		return nil, invalidf("repository has no staging area; configure a staging root")
	}
	lock, err := repo.staging.acquireLock(id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stage, err := repo.openStage(ctx, id, lock)
	if err != nil {
		lock.release()
		return nil, errors.WithStack(err)
	}
	return stage, nil
}

func (repo *Repository) openStage(ctx context.Context, id string, lock *objectLock) (*Stage, error) {
	staged, stagingRoot, err := repo.staging.readStagedInventory(ctx, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stage := &Stage{repo: repo, id: id, stagingRoot: stagingRoot, lock: lock}
	objectRoot, err := repo.ResolveObjectPath(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, errors.WithStack(err)
	}
	if err == nil {
		if ok, err := repo.provider.Exists(ctx, objectRoot+"/"+InventoryFile); err == nil && ok {
			stage.objectRoot = objectRoot
			object, err := repo.GetObjectAt(ctx, id, objectRoot, VersionNum{})
			if err != nil {
				return nil, errors.WithStack(err)
			}
			stage.base = object.inventory
		}
	}
	if staged != nil {
		stage.inventory = staged
		return stage, nil
	}
	if stage.base == nil {
		return nil, notFoundf("object '%s' not found; use new to create it", id)
	}
	stage.inventory = stage.base.Clone()
	if err := stage.inventory.NewVersion(zeroTime(), "", nil); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := stage.save(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return stage, nil
}

// StageNew creates an empty staged object. The digest algorithm, content
// directory and version padding are fixed here for the object's lifetime.
func (repo *Repository) StageNew(ctx context.Context, id string, digestAlg checksum.DigestAlgorithm, contentDir string, padding int) (*Stage, error) {
	if repo.staging == nil {
		return nil, invalidf("repository has no staging area; configure a staging root")
	}
	if id == "" {
		return nil, invalidf("object id must not be empty")
	}
	lock, err := repo.staging.acquireLock(id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stage, err := repo.newStage(ctx, id, digestAlg, contentDir, padding, lock)
	if err != nil {
		lock.release()
		return nil, errors.WithStack(err)
	}
	return stage, nil
}

func (repo *Repository) newStage(ctx context.Context, id string, digestAlg checksum.DigestAlgorithm, contentDir string, padding int, lock *objectLock) (*Stage, error) {
	staged, stagingRoot, err := repo.staging.readStagedInventory(ctx, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if staged != nil {
		return nil, invalidf("object '%s' already has a staged version", id)
	}
	if repo.layout != nil {
		objectRoot, err := repo.ResolveObjectPath(ctx, id)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if ok, err := repo.provider.Exists(ctx, objectRoot+"/"+InventoryFile); err == nil && ok {
			return nil, invalidf("object '%s' already exists", id)
		}
	}
	inventory, err := NewInventory(id, repo.spec, digestAlg, contentDir, padding)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := inventory.NewVersion(zeroTime(), "", nil); err != nil {
		return nil, errors.WithStack(err)
	}
	stage := &Stage{repo: repo, id: id, inventory: inventory, stagingRoot: stagingRoot, lock: lock}
	if err := stage.save(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return stage, nil
}

func (s *Stage) Id() string            { return s.id }
func (s *Stage) Inventory() *Inventory { return s.inventory }
func (s *Stage) Head() VersionNum      { return s.inventory.Head }

// BaseInventory returns the committed inventory the stage grew from, nil
// for new objects.
func (s *Stage) BaseInventory() *Inventory { return s.base }

// Close releases the staging lock. Staged content stays on disk for a later
// session unless Reset or Commit removed it.
func (s *Stage) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.lock.release()
}

// save persists the staged inventory and object declaration.
func (s *Stage) save(ctx context.Context) error {
	provider, err := s.repo.staging.open()
	if err != nil {
		return errors.WithStack(err)
	}
	namaste := ObjectNamasteFile(s.repo.spec)
	if ok, err := provider.Exists(ctx, s.stagingRoot+"/"+namaste); err == nil && !ok {
		if err := writeFile(ctx, provider, s.stagingRoot+"/"+namaste, []byte(ObjectNamasteContent(s.repo.spec))); err != nil {
			return errors.WithStack(err)
		}
	}
	var buf bytes.Buffer
	if err := EncodeInventory(&buf, s.inventory); err != nil {
		return errors.WithStack(err)
	}
	if err := writeFile(ctx, provider, s.stagingRoot+"/"+InventoryFile, buf.Bytes()); err != nil {
		return errors.WithStack(err)
	}
	digest, err := checksum.Checksum(bytes.NewReader(buf.Bytes()), s.inventory.DigestAlgorithm)
	if err != nil {
		return errors.WithStack(err)
	}
	sidecarPath := fmt.Sprintf("%s/%s.%s", s.stagingRoot, InventoryFile, s.inventory.DigestAlgorithm)
	sidecar := fmt.Sprintf("%s  %s\n", digest, InventoryFile)
	return errors.WithStack(writeFile(ctx, provider, sidecarPath, []byte(sidecar)))
}

// headPrefix is the content path prefix of the staged version.
func (s *Stage) headPrefix() string {
	return s.inventory.Head.String() + "/"
}

// Add streams a file into the staged version under the given logical path.
// The content lands in a temporary name first so that its digest is known
// before anything moves: bytes whose digest already exists in the manifest
// are discarded and only the state gains the new logical path.
func (s *Stage) Add(ctx context.Context, src io.Reader, logicalPath string) error {
	if err := ValidateLogicalPath(logicalPath); err != nil {
		return errors.WithStack(err)
	}
	provider, err := s.repo.staging.open()
	if err != nil {
		return errors.WithStack(err)
	}
	tempPath := s.stagingRoot + "/tmp/" + uuid.NewString()
	w, err := provider.Create(ctx, tempPath)
	if err != nil {
		return errors.WithStack(err)
	}
	cw, err := checksum.NewChecksumWriter(w, s.inventory.DigestAlgorithm)
	if err != nil {
		_ = w.Close()
		return errors.WithStack(err)
	}
	if _, err := io.Copy(cw, src); err != nil {
		_ = w.Close()
		_ = provider.Delete(ctx, tempPath)
		return errors.Wrapf(err, "cannot stage '%s'", logicalPath)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "cannot stage '%s'", logicalPath)
	}
	digest, err := cw.Sum(s.inventory.DigestAlgorithm)
	if err != nil {
		return errors.WithStack(err)
	}
	oldDigest, lookupErr := s.inventory.DigestForLogicalPath(s.inventory.Head, logicalPath)
	if lookupErr != nil {
		oldDigest = ""
	}
	if oldDigest != "" && checksum.Equal(oldDigest, digest) {
		return errors.WithStack(provider.Delete(ctx, tempPath))
	}
	if oldDigest != "" {
		s.inventory.RemoveFileFromState(logicalPath)
	}
	if s.inventory.ManifestHasDigest(digest) {
		// deduplicate: the bytes are already stored, reuse that content path
		if err := provider.Delete(ctx, tempPath); err != nil {
			return errors.WithStack(err)
		}
	} else {
		contentPath := s.inventory.ContentPathInVersion(s.inventory.Head, logicalPath)
		if oldDigest != "" {
			if err := s.vacate(ctx, oldDigest, contentPath); err != nil {
				return errors.WithStack(err)
			}
		}
		if err := provider.Move(ctx, tempPath, s.stagingRoot+"/"+contentPath); err != nil {
			return errors.WithStack(err)
		}
		s.inventory.AddManifestEntry(digest, contentPath)
	}
	if err := s.inventory.AddFileToState(digest, logicalPath); err != nil {
		return errors.WithStack(err)
	}
	if oldDigest != "" {
		if err := s.gc(ctx, oldDigest); err != nil {
			return errors.WithStack(err)
		}
	}
	return s.save(ctx)
}

// vacate frees a staged content path owned by another digest before new
// content moves in. An unreferenced owner is deleted outright; an owner
// still bound to other logical paths is relocated to one of their content
// paths.
func (s *Stage) vacate(ctx context.Context, digest, target string) error {
	digest = strings.ToLower(digest)
	if !slices.Contains(s.inventory.Manifest[digest], target) {
		return nil
	}
	provider, err := s.repo.staging.open()
	if err != nil {
		return errors.WithStack(err)
	}
	if !s.inventory.StateReferencesDigest(digest) {
		if err := provider.Delete(ctx, s.stagingRoot+"/"+target); err != nil {
			return errors.WithStack(err)
		}
		s.inventory.RemoveManifestEntry(digest, target)
		return nil
	}
	var other string
	for _, logicalPath := range s.inventory.HeadState()[digest] {
		other = logicalPath
		break
	}
	if other == "" {
		return corruptf("staged digest %s of '%s' is referenced but has no head binding", digest, s.id)
	}
	newPath := s.inventory.ContentPathInVersion(s.inventory.Head, other)
	if err := provider.Move(ctx, s.stagingRoot+"/"+target, s.stagingRoot+"/"+newPath); err != nil {
		return errors.WithStack(err)
	}
	s.inventory.RemoveManifestEntry(digest, target)
	s.inventory.AddManifestEntry(digest, newPath)
	return nil
}

// CopyInternal binds an existing logical path's content to another logical
// path; no content moves.
func (s *Stage) CopyInternal(ctx context.Context, from VersionNum, srcLogical, dstLogical string) error {
	if from.IsZero() {
		from = s.inventory.Head
	} else {
		from.Padding = s.inventory.Head.Padding
	}
	digest, err := s.inventory.DigestForLogicalPath(from, srcLogical)
	if err != nil {
		return errors.WithStack(err)
	}
	oldDigest, lookupErr := s.inventory.DigestForLogicalPath(s.inventory.Head, dstLogical)
	if lookupErr != nil {
		oldDigest = ""
	}
	if err := s.inventory.AddFileToState(digest, dstLogical); err != nil {
		return errors.WithStack(err)
	}
	if oldDigest != "" && !checksum.Equal(oldDigest, digest) {
		if err := s.gc(ctx, oldDigest); err != nil {
			return errors.WithStack(err)
		}
	}
	return s.save(ctx)
}

// MoveInternal renames a logical path within the staged version.
func (s *Stage) MoveInternal(ctx context.Context, srcLogical, dstLogical string) error {
	if err := s.CopyInternal(ctx, VersionNum{}, srcLogical, dstLogical); err != nil {
		return errors.WithStack(err)
	}
	return s.Remove(ctx, srcLogical)
}

// Remove drops a logical path from the staged state. Content staged for
// this version is deleted when nothing else references it; content of
// committed versions is never touched.
func (s *Stage) Remove(ctx context.Context, logicalPath string) error {
	digest := s.inventory.RemoveFileFromState(logicalPath)
	if digest == "" {
		return notFoundf("logical path '%s' not found in staged version of '%s'", logicalPath, s.id)
	}
	if err := s.gc(ctx, digest); err != nil {
		return errors.WithStack(err)
	}
	return s.save(ctx)
}

// RemovePrefix removes a whole logical directory; returns the removed paths.
func (s *Stage) RemovePrefix(ctx context.Context, logicalDir string) ([]string, error) {
	prefix := strings.TrimSuffix(logicalDir, "/") + "/"
	var removed []string
	for _, paths := range s.inventory.HeadState() {
		for _, logicalPath := range paths {
			if strings.HasPrefix(logicalPath, prefix) {
				removed = append(removed, logicalPath)
			}
		}
	}
	if len(removed) == 0 {
		return nil, notFoundf("no logical paths under '%s' in staged version of '%s'", logicalDir, s.id)
	}
	slices.Sort(removed)
	for _, logicalPath := range removed {
		if err := s.Remove(ctx, logicalPath); err != nil {
			return removed, errors.WithStack(err)
		}
	}
	return removed, nil
}

// gc deletes staged content for a digest that no state references anymore.
// Only files under the staged version's own content directory are
// candidates; committed content stays where it is.
func (s *Stage) gc(ctx context.Context, digest string) error {
	if s.inventory.StateReferencesDigest(digest) {
		return nil
	}
	provider, err := s.repo.staging.open()
	if err != nil {
		return errors.WithStack(err)
	}
	digest = strings.ToLower(digest)
	for _, contentPath := range slices.Clone(s.inventory.Manifest[digest]) {
		if !strings.HasPrefix(contentPath, s.headPrefix()) {
			continue
		}
		if err := provider.Delete(ctx, s.stagingRoot+"/"+contentPath); err != nil {
			return errors.WithStack(err)
		}
		s.inventory.RemoveManifestEntry(digest, contentPath)
	}
	// entries whose only content lives in committed versions keep their
	// manifest entry while unreferenced only transiently; Check() rejects
	// them at commit, so drop the key as well
	if paths, ok := s.inventory.Manifest[digest]; ok && len(paths) > 0 && !s.inventory.StateReferencesDigest(digest) {
		onlyCommitted := true
		for _, contentPath := range paths {
			if strings.HasPrefix(contentPath, s.headPrefix()) {
				onlyCommitted = false
			}
		}
		if onlyCommitted && s.base != nil && !s.base.ManifestHasDigest(digest) {
			delete(s.inventory.Manifest, digest)
		}
	}
	return nil
}

// Reset rolls the staged version back to the state of the committed head:
// net additions are removed (and their staged content deleted), removals
// and changes restored. Resetting a never-committed object clears its
// staging area entirely.
func (s *Stage) Reset(ctx context.Context) error {
	provider, err := s.repo.staging.open()
	if err != nil {
		return errors.WithStack(err)
	}
	if s.base == nil {
		if err := provider.DeleteDir(ctx, s.stagingRoot); err != nil {
			return errors.WithStack(err)
		}
		inventory, err := NewInventory(s.id, s.repo.spec, s.inventory.DigestAlgorithm, s.inventory.ContentDirectory, s.inventory.Head.Padding)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := inventory.NewVersion(zeroTime(), "", nil); err != nil {
			return errors.WithStack(err)
		}
		s.inventory = inventory
		return nil
	}
	// restore the head state from the committed head
	stagedDigests := []string{}
	for digest, paths := range s.inventory.Manifest {
		for _, contentPath := range paths {
			if strings.HasPrefix(contentPath, s.headPrefix()) {
				stagedDigests = append(stagedDigests, digest)
				break
			}
		}
	}
	state := map[string][]string{}
	for digest, paths := range s.base.HeadState() {
		state[digest] = slices.Clone(paths)
	}
	s.inventory.HeadVersion().State = state
	for _, digest := range stagedDigests {
		if err := s.gc(ctx, digest); err != nil {
			return errors.WithStack(err)
		}
	}
	return s.save(ctx)
}

// DiffAgainstBase reports the staged changes as a change set against the
// committed head, for status output.
func (s *Stage) DiffAgainstBase() (*ChangeSet, error) {
	object := &Object{inventory: s.inventory, version: s.inventory.Head}
	if s.base == nil {
		return object.Show(s.inventory.Head)
	}
	return object.Diff(s.base.Head, s.inventory.Head)
}
