package ocfl

import (
	"fmt"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
	"golang.org/x/exp/slices"
)

type User struct {
	Name    string
	Address string
}

// Version is one entry of an inventory's versions block. State maps a content
// digest to the logical paths bound to it in this version.
type Version struct {
	Created time.Time
	Message string
	User    *User
	State   map[string][]string
}

// Inventory is the in-memory form of an object's inventory.json. The manifest
// maps lowercase hex digests to content paths; the path->digest inverse is
// built lazily and never serialized.
type Inventory struct {
	Id               string
	Type             string
	DigestAlgorithm  checksum.DigestAlgorithm
	Head             VersionNum
	ContentDirectory string
	Manifest         map[string][]string
	Versions         map[string]*Version
	Fixity           map[checksum.DigestAlgorithm]map[string][]string

	pathToDigest map[string]string
}

// NewInventory creates an empty inventory with no versions (head is v0);
// callers add the first version via NewVersion.
func NewInventory(id string, spec OCFLVersion, digestAlg checksum.DigestAlgorithm, contentDir string, padding int) (*Inventory, error) {
	if !checksum.IsPrimary(digestAlg) {
		return nil, invalidf("digest algorithm '%s' cannot be used as primary algorithm", digestAlg)
	}
	if contentDir != "" && strings.Contains(contentDir, "/") {
		return nil, invalidf("content directory '%s' must not contain '/'", contentDir)
	}
	return &Inventory{
		Id:               id,
		Type:             InventoryType(spec),
		DigestAlgorithm:  digestAlg,
		Head:             VersionNum{Num: 0, Padding: padding},
		ContentDirectory: contentDir,
		Manifest:         map[string][]string{},
		Versions:         map[string]*Version{},
	}, nil
}

func (i *Inventory) SpecVersion() OCFLVersion {
	return VersionFromInventoryType(i.Type)
}

func (i *Inventory) ContentDir() string {
	if i.ContentDirectory == "" {
		return DefaultContentDir
	}
	return i.ContentDirectory
}

// VersionNums returns the version numbers in ascending order.
func (i *Inventory) VersionNums() ([]VersionNum, error) {
	nums := make([]VersionNum, 0, len(i.Versions))
	for name := range i.Versions {
		num, err := ParseVersionNum(name)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		nums = append(nums, num)
	}
	slices.SortFunc(nums, func(a, b VersionNum) int { return a.Num - b.Num })
	return nums, nil
}

func (i *Inventory) GetVersion(num VersionNum) (*Version, error) {
	version, ok := i.Versions[num.String()]
	if !ok {
		return nil, notFoundf("object '%s' has no version %s", i.Id, num)
	}
	return version, nil
}

func (i *Inventory) HeadVersion() *Version {
	return i.Versions[i.Head.String()]
}

// DigestForLogicalPath resolves a logical path within one version's state.
func (i *Inventory) DigestForLogicalPath(num VersionNum, logicalPath string) (string, error) {
	version, err := i.GetVersion(num)
	if err != nil {
		return "", errors.WithStack(err)
	}
	for digest, paths := range version.State {
		if slices.Contains(paths, logicalPath) {
			return digest, nil
		}
	}
	return "", notFoundf("logical path '%s' not found in %s of object '%s'", logicalPath, num, i.Id)
}

// ContentPathForDigest returns the first content path recorded for a digest.
func (i *Inventory) ContentPathForDigest(digest string) (string, error) {
	paths, ok := i.Manifest[strings.ToLower(digest)]
	if !ok || len(paths) == 0 {
		return "", notFoundf("digest '%s' not in manifest of object '%s'", digest, i.Id)
	}
	return paths[0], nil
}

// DigestForContentPath consults the lazily built manifest inverse.
func (i *Inventory) DigestForContentPath(contentPath string) (string, bool) {
	if i.pathToDigest == nil {
		i.pathToDigest = map[string]string{}
		for digest, paths := range i.Manifest {
			for _, path := range paths {
				i.pathToDigest[path] = digest
			}
		}
	}
	digest, ok := i.pathToDigest[contentPath]
	return digest, ok
}

func (i *Inventory) invalidateInverse() {
	i.pathToDigest = nil
}

// NewVersion appends the next version, copying the previous state.
func (i *Inventory) NewVersion(created time.Time, message string, user *User) error {
	next := i.Head.Next()
	if _, ok := i.Versions[next.String()]; ok {
		return invalidf("version %s already exists in object '%s'", next, i.Id)
	}
	version := &Version{
		Created: created,
		Message: message,
		User:    user,
		State:   map[string][]string{},
	}
	if !i.Head.IsZero() {
		for digest, paths := range i.HeadVersion().State {
			version.State[digest] = slices.Clone(paths)
		}
	}
	i.Versions[next.String()] = version
	i.Head = next
	return nil
}

// ManifestHasDigest reports whether content with this digest is already
// stored; used for deduplication on ingest.
func (i *Inventory) ManifestHasDigest(digest string) bool {
	_, ok := i.Manifest[strings.ToLower(digest)]
	return ok
}

// AddManifestEntry binds a content path to a digest in the manifest.
func (i *Inventory) AddManifestEntry(digest, contentPath string) {
	digest = strings.ToLower(digest)
	if !slices.Contains(i.Manifest[digest], contentPath) {
		i.Manifest[digest] = append(i.Manifest[digest], contentPath)
	}
	i.invalidateInverse()
}

// RemoveManifestEntry removes a single content path; the digest key is
// dropped when its path list empties.
func (i *Inventory) RemoveManifestEntry(digest, contentPath string) {
	digest = strings.ToLower(digest)
	paths := slices.DeleteFunc(i.Manifest[digest], func(p string) bool { return p == contentPath })
	if len(paths) == 0 {
		delete(i.Manifest, digest)
	} else {
		i.Manifest[digest] = paths
	}
	i.invalidateInverse()
}

// HeadState returns the state block of the head version.
func (i *Inventory) HeadState() map[string][]string {
	if version := i.HeadVersion(); version != nil {
		return version.State
	}
	return nil
}

// AddFileToState binds a logical path to a digest in the head state,
// replacing any previous binding of that path.
func (i *Inventory) AddFileToState(digest, logicalPath string) error {
	if err := ValidateLogicalPath(logicalPath); err != nil {
		return errors.WithStack(err)
	}
	digest = strings.ToLower(digest)
	state := i.HeadState()
	if state == nil {
		return invalidf("object '%s' has no writable version", i.Id)
	}
	for _, paths := range state {
		for _, path := range paths {
			if path != logicalPath && pathConflicts(path, logicalPath) {
				return invalidf("logical path '%s' conflicts with existing path '%s'", logicalPath, path)
			}
		}
	}
	i.RemoveFileFromState(logicalPath)
	state[digest] = append(state[digest], logicalPath)
	return nil
}

// RemoveFileFromState drops a logical path from the head state and returns
// the digest it was bound to, or empty if absent.
func (i *Inventory) RemoveFileFromState(logicalPath string) string {
	state := i.HeadState()
	for digest, paths := range state {
		if slices.Contains(paths, logicalPath) {
			paths = slices.DeleteFunc(paths, func(p string) bool { return p == logicalPath })
			if len(paths) == 0 {
				delete(state, digest)
			} else {
				state[digest] = paths
			}
			return digest
		}
	}
	return ""
}

// StateReferencesDigest reports whether any version's state references the
// digest.
func (i *Inventory) StateReferencesDigest(digest string) bool {
	digest = strings.ToLower(digest)
	for _, version := range i.Versions {
		if _, ok := version.State[digest]; ok {
			return true
		}
	}
	return false
}

// ContentPathInVersion builds the content path for a logical path stored in
// the given version: v{N}/{contentDirectory}/{logicalPath}.
func (i *Inventory) ContentPathInVersion(num VersionNum, logicalPath string) string {
	return fmt.Sprintf("%s/%s/%s", num, i.ContentDir(), logicalPath)
}

// Check verifies the structural invariants of the inventory.
func (i *Inventory) Check() error {
	var multiErr = []error{}
	if i.Id == "" || i.Type == "" || i.DigestAlgorithm == "" || i.Head.IsZero() {
		multiErr = append(multiErr, corruptf("object '%s': missing required inventory field", i.Id))
	}
	if !checksum.IsPrimary(i.DigestAlgorithm) {
		multiErr = append(multiErr, corruptf("object '%s': digest algorithm '%s' not allowed as primary", i.Id, i.DigestAlgorithm))
	}
	nums, err := i.VersionNums()
	if err != nil {
		multiErr = append(multiErr, corruptf("object '%s': %v", i.Id, err))
		return errors.Combine(multiErr...)
	}
	if len(nums) == 0 {
		multiErr = append(multiErr, corruptf("object '%s': no versions", i.Id))
	}
	for idx, num := range nums {
		if num.Num != idx+1 {
			multiErr = append(multiErr, corruptf("object '%s': version numbers not contiguous at %s", i.Id, num))
			break
		}
		if num.Padding != i.Head.Padding {
			multiErr = append(multiErr, corruptf("object '%s': inconsistent version padding at %s", i.Id, num))
			break
		}
	}
	if len(nums) > 0 && nums[len(nums)-1].Num != i.Head.Num {
		multiErr = append(multiErr, corruptf("object '%s': head %s is not the highest version", i.Id, i.Head))
	}
	for digest := range i.Manifest {
		if digest != strings.ToLower(digest) {
			multiErr = append(multiErr, corruptf("object '%s': manifest digest '%s' not lowercase", i.Id, digest))
		}
		if !i.StateReferencesDigest(digest) {
			multiErr = append(multiErr, corruptf("object '%s': manifest digest '%s' not referenced by any version state", i.Id, digest))
		}
	}
	contentPathSeen := map[string]bool{}
	for _, paths := range i.Manifest {
		for _, contentPath := range paths {
			if contentPathSeen[contentPath] {
				multiErr = append(multiErr, corruptf("object '%s': content path '%s' appears more than once in manifest", i.Id, contentPath))
			}
			contentPathSeen[contentPath] = true
			parts := strings.SplitN(contentPath, "/", 3)
			if len(parts) < 3 || parts[1] != i.ContentDir() {
				multiErr = append(multiErr, corruptf("object '%s': content path '%s' not under v{N}/%s/", i.Id, contentPath, i.ContentDir()))
				continue
			}
			num, err := ParseVersionNum(parts[0])
			if err != nil || num.Num > i.Head.Num {
				multiErr = append(multiErr, corruptf("object '%s': content path '%s' references an invalid version", i.Id, contentPath))
			}
		}
	}
	for name, version := range i.Versions {
		logicalSeen := []string{}
		for digest, paths := range version.State {
			if _, ok := i.Manifest[strings.ToLower(digest)]; !ok {
				multiErr = append(multiErr, corruptf("object '%s': state digest '%s' in %s not in manifest", i.Id, digest, name))
			}
			for _, logicalPath := range paths {
				if err := ValidateLogicalPath(logicalPath); err != nil {
					multiErr = append(multiErr, corruptf("object '%s': %v", i.Id, err))
					continue
				}
				for _, seen := range logicalSeen {
					if pathConflicts(seen, logicalPath) {
						multiErr = append(multiErr, corruptf("object '%s': logical path '%s' conflicts with '%s' in %s", i.Id, logicalPath, seen, name))
					}
				}
				logicalSeen = append(logicalSeen, logicalPath)
			}
		}
	}
	for fixityAlg, entries := range i.Fixity {
		if !checksum.HashExists(fixityAlg) {
			multiErr = append(multiErr, corruptf("object '%s': unknown fixity algorithm '%s'", i.Id, fixityAlg))
		}
		for _, paths := range entries {
			for _, contentPath := range paths {
				if _, ok := i.DigestForContentPath(contentPath); !ok {
					multiErr = append(multiErr, corruptf("object '%s': fixity content path '%s' not in manifest", i.Id, contentPath))
				}
			}
		}
	}
	return errors.Combine(multiErr...)
}

// Clone returns a deep copy, used when staging a new version of a committed
// inventory.
func (i *Inventory) Clone() *Inventory {
	clone := &Inventory{
		Id:               i.Id,
		Type:             i.Type,
		DigestAlgorithm:  i.DigestAlgorithm,
		Head:             i.Head,
		ContentDirectory: i.ContentDirectory,
		Manifest:         map[string][]string{},
		Versions:         map[string]*Version{},
	}
	for digest, paths := range i.Manifest {
		clone.Manifest[digest] = slices.Clone(paths)
	}
	for name, version := range i.Versions {
		cloneVersion := &Version{
			Created: version.Created,
			Message: version.Message,
			State:   map[string][]string{},
		}
		if version.User != nil {
			cloneVersion.User = &User{Name: version.User.Name, Address: version.User.Address}
		}
		for digest, paths := range version.State {
			cloneVersion.State[digest] = slices.Clone(paths)
		}
		clone.Versions[name] = cloneVersion
	}
	if i.Fixity != nil {
		clone.Fixity = map[checksum.DigestAlgorithm]map[string][]string{}
		for alg, entries := range i.Fixity {
			clone.Fixity[alg] = map[string][]string{}
			for digest, paths := range entries {
				clone.Fixity[alg][digest] = slices.Clone(paths)
			}
		}
	}
	return clone
}
