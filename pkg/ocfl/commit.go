package ocfl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
	"github.com/ocfl-archive/rocfl/pkg/storage"
)

// CommitMeta carries the metadata of the version being committed.
type CommitMeta struct {
	Message     string
	UserName    string
	UserAddress string
	// Created defaults to the current time in UTC.
	Created time.Time
	// ObjectRoot overrides the destination path for repositories without a
	// configured layout; ignored for objects that already exist.
	ObjectRoot string
}

// Commit finalizes the staged version and writes it into the main
// repository. The protocol has four phases, each safe to retry: finalize
// the inventory, resolve the destination, write content, then write the
// inventories with the root inventory last as the atomicity pivot. A reader
// sees either the old root inventory or the new one, never a torn state.
func (s *Stage) Commit(ctx context.Context, meta *CommitMeta) error {
	if s.closed {
		return invalidf("stage for '%s' is closed", s.id)
	}
	if meta == nil {
		meta = &CommitMeta{}
	}

	// phase 1: finalize the staged inventory
	created := meta.Created
	if created.IsZero() {
		created = time.Now().UTC().Truncate(time.Second)
	}
	head := s.inventory.HeadVersion()
	head.Created = created
	head.Message = meta.Message
	if meta.UserName != "" || meta.UserAddress != "" {
		head.User = &User{Name: meta.UserName, Address: meta.UserAddress}
	}
	if err := s.inventory.Check(); err != nil {
		return errors.WithStack(err)
	}
	var buf bytes.Buffer
	if err := EncodeInventory(&buf, s.inventory); err != nil {
		return errors.WithStack(err)
	}
	inventoryDigest, err := checksum.Checksum(bytes.NewReader(buf.Bytes()), s.inventory.DigestAlgorithm)
	if err != nil {
		return errors.WithStack(err)
	}

	// phase 2: resolve the destination object root
	destRoot := s.objectRoot
	if destRoot == "" {
		if meta.ObjectRoot != "" {
			destRoot = meta.ObjectRoot
		} else if s.repo.layout != nil {
			if destRoot, err = s.repo.layout.BuildObjectPath(s.id); err != nil {
				return errors.WithStack(err)
			}
		} else {
			return invalidf("repository has no layout; commit of '%s' needs an explicit object path", s.id)
		}
	}

	// the main root is externally mutable: re-read it and refuse to commit
	// over a version we did not stage from
	if ok, err := s.repo.provider.Exists(ctx, destRoot+"/"+InventoryFile); err == nil && ok {
		current, err := s.repo.readInventory(ctx, destRoot+"/"+InventoryFile)
		if err != nil {
			return errors.WithStack(err)
		}
		if current.Head.Num != s.inventory.Head.Num-1 {
			return invalidf("object '%s' changed since staging: committed head is %s, staged version is %s", s.id, current.Head, s.inventory.Head)
		}
	} else if s.inventory.Head.Num != 1 {
		return invalidf("object '%s' disappeared from the repository since staging", s.id)
	}

	// phase 3: write the object declaration and new content files
	if s.inventory.Head.Num == 1 {
		namaste := ObjectNamasteFile(s.repo.spec)
		if err := writeFile(ctx, s.repo.provider, destRoot+"/"+namaste, []byte(ObjectNamasteContent(s.repo.spec))); err != nil {
			return errors.WithStack(err)
		}
	}
	stagingProvider, err := s.repo.staging.open()
	if err != nil {
		return errors.WithStack(err)
	}
	for digest, paths := range s.inventory.Manifest {
		for _, contentPath := range paths {
			if !strings.HasPrefix(contentPath, s.headPrefix()) {
				continue
			}
			if err := s.copyContent(ctx, stagingProvider, contentPath, destRoot, digest); err != nil {
				return errors.WithStack(err)
			}
		}
	}

	// phase 4: version inventory, then root inventory last
	sidecarName := fmt.Sprintf("%s.%s", InventoryFile, s.inventory.DigestAlgorithm)
	sidecar := []byte(fmt.Sprintf("%s  %s\n", inventoryDigest, InventoryFile))
	versionDir := destRoot + "/" + s.inventory.Head.String()
	if err := writeFile(ctx, s.repo.provider, versionDir+"/"+InventoryFile, buf.Bytes()); err != nil {
		return errors.WithStack(err)
	}
	if err := writeFile(ctx, s.repo.provider, versionDir+"/"+sidecarName, sidecar); err != nil {
		return errors.WithStack(err)
	}
	if err := writeFile(ctx, s.repo.provider, destRoot+"/"+InventoryFile, buf.Bytes()); err != nil {
		return errors.WithStack(err)
	}
	if err := writeFile(ctx, s.repo.provider, destRoot+"/"+sidecarName, sidecar); err != nil {
		return errors.WithStack(err)
	}

	// the commit is durable; clear the staged shadow
	if err := stagingProvider.DeleteDir(ctx, s.stagingRoot); err != nil {
		s.repo.logger.Warn().Str("object", s.id).Err(err).Msg("committed but could not clear staging area")
	}
	s.objectRoot = destRoot
	s.base = s.inventory
	s.repo.logger.Info().Str("object", s.id).Str("version", s.inventory.Head.String()).Msg("committed")
	s.Close()
	return nil
}

func (s *Stage) copyContent(ctx context.Context, stagingProvider storageProvider, contentPath, destRoot, wantDigest string) error {
	src, err := stagingProvider.Open(ctx, s.stagingRoot+"/"+contentPath)
	if err != nil {
		return errors.Wrapf(err, "cannot open staged content '%s'", contentPath)
	}
	defer src.Close()
	dst, err := s.repo.provider.Create(ctx, destRoot+"/"+contentPath)
	if err != nil {
		return errors.Wrapf(err, "cannot create '%s'", contentPath)
	}
	cw, err := checksum.NewChecksumWriter(dst, s.inventory.DigestAlgorithm)
	if err != nil {
		_ = dst.Close()
		return errors.WithStack(err)
	}
	if _, err := io.Copy(cw, src); err != nil {
		_ = dst.Close()
		return errors.Wrapf(err, "cannot copy '%s'", contentPath)
	}
	if err := dst.Close(); err != nil {
		return errors.Wrapf(err, "cannot finish '%s'", contentPath)
	}
	got, err := cw.Sum(s.inventory.DigestAlgorithm)
	if err != nil {
		return errors.WithStack(err)
	}
	if !checksum.Equal(got, wantDigest) {
		return errors.WithMessagef(ErrDigestMismatch, "staged content '%s': expected %s, got %s", contentPath, wantDigest, got)
	}
	return nil
}

// storageProvider is the subset of the provider contract copyContent needs;
// it keeps the staging provider swappable in tests.
type storageProvider interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Purge irrevocably deletes an object from the repository along with any
// staged shadow. The confirm callback receives the object's root path and
// must return true for the deletion to proceed.
func (repo *Repository) Purge(ctx context.Context, id string, confirm func(objectRoot string) (bool, error)) error {
	objectRoot, err := repo.ResolveObjectPath(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return errors.WithStack(err)
	}
	exists := false
	if err == nil {
		if exists, err = repo.provider.Exists(ctx, objectRoot+"/"+InventoryFile); err != nil {
			return errors.WithStack(err)
		}
	}
	var stagedRoot string
	var stagingProvider *storage.LocalProvider
	if repo.staging != nil {
		staged, root, err := repo.staging.readStagedInventory(ctx, id)
		if err == nil && staged != nil {
			stagedRoot = root
			if stagingProvider, err = repo.staging.open(); err != nil {
				return errors.WithStack(err)
			}
		}
	}
	if !exists && stagedRoot == "" {
		return notFoundf("object '%s' not found", id)
	}
	if confirm != nil {
		ok, err := confirm(objectRoot)
		if err != nil {
			return errors.WithStack(err)
		}
		if !ok {
			return nil
		}
	}
	if exists {
		if err := repo.provider.DeleteDir(ctx, objectRoot); err != nil {
			return errors.WithStack(err)
		}
	}
	if stagedRoot != "" {
		if err := stagingProvider.DeleteDir(ctx, stagedRoot); err != nil {
			return errors.WithStack(err)
		}
	}
	repo.logger.Info().Str("object", id).Msg("purged")
	return nil
}
