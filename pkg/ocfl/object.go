package ocfl

import (
	"context"
	"fmt"
	"hash"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
	"golang.org/x/exp/slices"
)

// Object is a read view of one object, pinned to a version.
type Object struct {
	repo      *Repository
	root      string
	inventory *Inventory
	version   VersionNum
}

func (o *Object) Id() string             { return o.inventory.Id }
func (o *Object) Root() string           { return o.root }
func (o *Object) Version() VersionNum    { return o.version }
func (o *Object) Head() VersionNum       { return o.inventory.Head }
func (o *Object) Inventory() *Inventory  { return o.inventory }
func (o *Object) Spec() OCFLVersion      { return o.inventory.SpecVersion() }
func (o *Object) Algorithm() checksum.DigestAlgorithm {
	return o.inventory.DigestAlgorithm
}

// FileDetails describes one logical path of a version.
type FileDetails struct {
	LogicalPath string
	Digest      string
	ContentPath string
	// Updated is the version in which this path last changed content.
	Updated     VersionNum
	UpdatedTime time.Time
	IsDir       bool
}

// SortField selects the listing order.
type SortField int

const (
	SortNone SortField = iota
	SortName
	SortVersion
	SortUpdated
)

// ListFiles returns the logical paths of the pinned version, optionally
// filtered by glob and collapsed under synthetic directories.
func (o *Object) ListFiles(glob string, asDirectories bool, sortBy SortField) ([]*FileDetails, error) {
	version, err := o.inventory.GetVersion(o.version)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var details []*FileDetails
	for digest, paths := range version.State {
		for _, logicalPath := range paths {
			detail, err := o.fileDetails(logicalPath, digest)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			details = append(details, detail)
		}
	}
	if asDirectories {
		details = collapseDirectories(details)
	}
	if glob != "" {
		filtered := details[:0]
		for _, detail := range details {
			matched, err := path.Match(glob, detail.LogicalPath)
			if err != nil {
				return nil, invalidf("invalid glob '%s'", glob)
			}
			if matched {
				filtered = append(filtered, detail)
			}
		}
		details = filtered
	}
	switch sortBy {
	case SortName:
		sort.Slice(details, func(a, b int) bool {
			return NaturalLess(details[a].LogicalPath, details[b].LogicalPath)
		})
	case SortVersion:
		sort.Slice(details, func(a, b int) bool {
			return details[a].Updated.Num < details[b].Updated.Num
		})
	case SortUpdated:
		sort.Slice(details, func(a, b int) bool {
			return details[a].UpdatedTime.Before(details[b].UpdatedTime)
		})
	}
	return details, nil
}

func (o *Object) fileDetails(logicalPath, digest string) (*FileDetails, error) {
	contentPath, err := o.inventory.ContentPathForDigest(digest)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	updated, err := o.lastUpdated(logicalPath, digest)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	updatedVersion, err := o.inventory.GetVersion(updated)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &FileDetails{
		LogicalPath: logicalPath,
		Digest:      digest,
		ContentPath: contentPath,
		Updated:     updated,
		UpdatedTime: updatedVersion.Created,
	}, nil
}

// lastUpdated walks back from the pinned version to find the version that
// introduced the path's current content.
func (o *Object) lastUpdated(logicalPath, digest string) (VersionNum, error) {
	updated := o.version
	for num := o.version; num.Num > 1; num = num.Previous() {
		prevDigest, err := o.inventory.DigestForLogicalPath(num.Previous(), logicalPath)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
			}
			return VersionNum{}, errors.WithStack(err)
		}
		if !checksum.Equal(prevDigest, digest) {
			break
		}
		updated = num.Previous()
	}
	return updated, nil
}

func collapseDirectories(details []*FileDetails) []*FileDetails {
	var result []*FileDetails
	dirsSeen := map[string]bool{}
	for _, detail := range details {
		slash := strings.Index(detail.LogicalPath, "/")
		if slash < 0 {
			result = append(result, detail)
			continue
		}
		dir := detail.LogicalPath[:slash]
		if !dirsSeen[dir] {
			dirsSeen[dir] = true
			result = append(result, &FileDetails{LogicalPath: dir, IsDir: true})
		}
	}
	return result
}

// OpenFile streams a logical path of the pinned version. With verify, the
// stream's digest is checked against the manifest on EOF and a mismatch is
// returned as ErrDigestMismatch.
func (o *Object) OpenFile(ctx context.Context, logicalPath string, verify bool) (io.ReadCloser, error) {
	digest, err := o.inventory.DigestForLogicalPath(o.version, logicalPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	contentPath, err := o.inventory.ContentPathForDigest(digest)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fp, err := o.repo.provider.Open(ctx, o.root+"/"+contentPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open content of '%s'", logicalPath)
	}
	if !verify {
		return fp, nil
	}
	sink, err := checksum.GetHash(o.inventory.DigestAlgorithm)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &verifyingReader{source: fp, sink: sink, want: digest, path: logicalPath}, nil
}

// OpenFileRange streams part of a logical path; range reads skip digest
// verification by nature.
func (o *Object) OpenFileRange(ctx context.Context, logicalPath string, offset, length int64) (io.ReadCloser, error) {
	digest, err := o.inventory.DigestForLogicalPath(o.version, logicalPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	contentPath, err := o.inventory.ContentPathForDigest(digest)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return o.repo.provider.OpenRange(ctx, o.root+"/"+contentPath, offset, length)
}

type verifyingReader struct {
	source   io.ReadCloser
	sink     hash.Hash
	want     string
	path     string
	verified bool
}

func (r *verifyingReader) Read(p []byte) (int, error) {
	n, err := r.source.Read(p)
	if n > 0 {
		_, _ = r.sink.Write(p[:n])
	}
	if err == io.EOF && !r.verified {
		r.verified = true
		got := fmt.Sprintf("%x", r.sink.Sum(nil))
		if !checksum.Equal(got, r.want) {
			return n, errors.WithMessagef(ErrDigestMismatch, "content of '%s': expected %s, got %s", r.path, r.want, got)
		}
	}
	return n, err
}

func (r *verifyingReader) Close() error { return r.source.Close() }

// VersionDetails is one entry of an object's change log.
type VersionDetails struct {
	Num     VersionNum
	Created time.Time
	Message string
	User    *User
}

// VersionHistory returns the versions of the object in ascending order.
// A non-empty logicalPath filters to versions that added, changed, or
// removed that path.
func (o *Object) VersionHistory(logicalPath string) ([]*VersionDetails, error) {
	nums, err := o.inventory.VersionNums()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var result []*VersionDetails
	prevDigest := ""
	found := false
	for _, num := range nums {
		version, err := o.inventory.GetVersion(num)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		include := logicalPath == ""
		if !include {
			digest, err := o.inventory.DigestForLogicalPath(num, logicalPath)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, errors.WithStack(err)
			}
			if digest != prevDigest {
				include = true
			}
			if digest != "" {
				found = true
			}
			prevDigest = digest
		}
		if include {
			result = append(result, &VersionDetails{
				Num:     num,
				Created: version.Created,
				Message: version.Message,
				User:    version.User,
			})
		}
	}
	if logicalPath != "" && !found {
		return nil, notFoundf("logical path '%s' not found in any version of object '%s'", logicalPath, o.Id())
	}
	return result, nil
}

// ChangeSet is the logical-path difference between two versions. A rename
// appears as one removal plus one addition.
type ChangeSet struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Diff compares two versions of the object by logical path.
func (o *Object) Diff(a, b VersionNum) (*ChangeSet, error) {
	stateA, err := o.logicalState(a)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	stateB, err := o.logicalState(b)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	changes := &ChangeSet{}
	for logicalPath, digestB := range stateB {
		digestA, ok := stateA[logicalPath]
		switch {
		case !ok:
			changes.Added = append(changes.Added, logicalPath)
		case !checksum.Equal(digestA, digestB):
			changes.Modified = append(changes.Modified, logicalPath)
		}
	}
	for logicalPath := range stateA {
		if _, ok := stateB[logicalPath]; !ok {
			changes.Removed = append(changes.Removed, logicalPath)
		}
	}
	slices.SortFunc(changes.Added, naturalCompare)
	slices.SortFunc(changes.Removed, naturalCompare)
	slices.SortFunc(changes.Modified, naturalCompare)
	return changes, nil
}

// Show is the change set a version introduced: its diff against the
// previous version, or pure additions for v1.
func (o *Object) Show(num VersionNum) (*ChangeSet, error) {
	if num.IsZero() {
		num = o.inventory.Head
	}
	if num.Num == 1 {
		state, err := o.logicalState(num)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		changes := &ChangeSet{}
		for logicalPath := range state {
			changes.Added = append(changes.Added, logicalPath)
		}
		slices.SortFunc(changes.Added, naturalCompare)
		return changes, nil
	}
	return o.Diff(num.Previous(), num)
}

func (o *Object) logicalState(num VersionNum) (map[string]string, error) {
	num.Padding = o.inventory.Head.Padding
	version, err := o.inventory.GetVersion(num)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	state := map[string]string{}
	for digest, paths := range version.State {
		for _, logicalPath := range paths {
			state[logicalPath] = digest
		}
	}
	return state, nil
}

func naturalCompare(a, b string) int {
	switch {
	case a == b:
		return 0
	case NaturalLess(a, b):
		return -1
	default:
		return 1
	}
}
