package ocfl

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
	"github.com/ocfl-archive/rocfl/pkg/storage"
	"golang.org/x/exp/slices"
)

// Validator streams coded issues to a callback while walking a repository
// or object. Bulk validation accumulates per-object failures and keeps
// going; memory stays bounded by the largest single inventory.
type Validator struct {
	repo *Repository
	// OnIssue receives every unsuppressed issue as it arises.
	OnIssue func(issue *Issue)
	// Suppress drops issues by code.
	Suppress map[ValidationErrorCode]bool
	// NoFixity skips content digest verification, which reads every byte
	// of every object.
	NoFixity bool

	ErrorCount   int
	WarningCount int
}

func (repo *Repository) NewValidator(onIssue func(issue *Issue)) *Validator {
	return &Validator{repo: repo, OnIssue: onIssue, Suppress: map[ValidationErrorCode]bool{}}
}

func (v *Validator) issue(code ValidationErrorCode, severity Severity, objectID, version, path, format string, a ...any) {
	if v.Suppress[code] {
		return
	}
	switch severity {
	case SeverityError:
		v.ErrorCount++
	case SeverityWarning:
		v.WarningCount++
	}
	if v.OnIssue == nil {
		return
	}
	verr := GetValidationError(v.repo.spec, code)
	v.OnIssue(&Issue{
		Code:     code,
		Severity: severity,
		ObjectID: objectID,
		Version:  version,
		Path:     path,
		Message:  strings.TrimSpace(fmt.Sprintf(format, a...) + " (" + verr.Description + ")"),
	})
}

// ValidateRepository validates the storage root and every object in it.
func (v *Validator) ValidateRepository(ctx context.Context) error {
	if err := v.validateRoot(ctx); err != nil {
		return errors.WithStack(err)
	}
	scanner := v.repo.ScanObjects(ctx)
	defer scanner.Close()
	var objectErrs []error
	for {
		objectRoot, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if err := v.ValidateObjectAt(ctx, objectRoot); err != nil {
			objectErrs = append(objectErrs, errors.Wrapf(err, "cannot validate object at '%s'", objectRoot))
		}
	}
	return errors.Combine(objectErrs...)
}

func (v *Validator) validateRoot(ctx context.Context) error {
	listing, err := v.repo.provider.ListDir(ctx, "")
	if err != nil {
		return errors.WithStack(err)
	}
	defer listing.Close()
	namastes := []string{}
	for {
		entry, err := listing.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if !entry.IsDir && strings.HasPrefix(entry.Path, "0=") {
			namastes = append(namastes, entry.Path)
		}
	}
	if len(namastes) != 1 {
		v.issue(E003, SeverityError, "", "", "", "storage root has %d version declarations", len(namastes))
	}
	for _, namaste := range namastes {
		content, err := v.readSmall(ctx, v.repo.provider, namaste)
		if err != nil {
			return errors.WithStack(err)
		}
		if content != strings.TrimPrefix(namaste, "0=")+"\n" {
			v.issue(E004, SeverityError, "", "", namaste, "version declaration content does not match its name")
		}
	}
	return nil
}

// ValidateObject validates one object addressed by id.
func (v *Validator) ValidateObject(ctx context.Context, id string) error {
	objectRoot, err := v.repo.ResolveObjectPath(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	return v.ValidateObjectAt(ctx, objectRoot)
}

var sidecarRegexp = regexp.MustCompile(`^([a-fA-F0-9]+)\s+(\S+)\s*$`)

// ValidateObjectAt validates the object at a root path.
func (v *Validator) ValidateObjectAt(ctx context.Context, objectRoot string) error {
	provider := v.repo.provider
	entries, err := v.listDir(ctx, objectRoot)
	if err != nil {
		return errors.WithStack(err)
	}
	var namastes, rootFiles, dirs []string
	for _, entry := range entries {
		name := baseName(entry.Path)
		if entry.IsDir {
			dirs = append(dirs, name)
		} else if strings.HasPrefix(name, "0=") {
			namastes = append(namastes, name)
		} else {
			rootFiles = append(rootFiles, name)
		}
	}
	objectID := ""
	if len(namastes) != 1 {
		v.issue(E003, SeverityError, objectID, "", objectRoot, "object root has %d version declarations", len(namastes))
	} else {
		name := namastes[0]
		if content, err := v.readSmall(ctx, provider, objectRoot+"/"+name); err == nil {
			if content != strings.TrimPrefix(name, "0=")+"\n" {
				v.issue(E007, SeverityError, objectID, "", name, "object declaration content does not match its name")
			}
		}
	}

	if !slices.Contains(rootFiles, InventoryFile) {
		v.issue(E063, SeverityError, objectID, "", objectRoot, "object root has no inventory")
		return nil
	}
	fp, err := provider.Open(ctx, objectRoot+"/"+InventoryFile)
	if err != nil {
		return errors.WithStack(err)
	}
	inventory, decodeErr := DecodeInventory(fp)
	_ = fp.Close()
	if decodeErr != nil {
		v.issue(E033, SeverityError, objectID, "", objectRoot+"/"+InventoryFile, "cannot parse inventory: %v", errors.Cause(decodeErr))
		return nil
	}
	objectID = inventory.Id

	v.validateInventoryStructure(inventory, objectID, objectRoot)
	v.validateSidecar(ctx, objectRoot, inventory, objectID)

	// version directories on disk against the inventory
	nums, numsErr := inventory.VersionNums()
	if numsErr == nil {
		for _, num := range nums {
			if !slices.Contains(dirs, num.String()) {
				v.issue(E010, SeverityError, objectID, num.String(), objectRoot, "version directory missing on disk")
			}
		}
		for _, dir := range dirs {
			if dir == ExtensionsDir {
				continue
			}
			if _, err := ParseVersionNum(dir); err != nil {
				v.issue(E104, SeverityError, objectID, "", objectRoot+"/"+dir, "directory is not a valid version directory")
				continue
			}
			if _, ok := inventory.Versions[dir]; !ok {
				v.issue(E046, SeverityError, objectID, dir, objectRoot+"/"+dir, "version directory not listed in inventory")
			}
		}
	}

	v.validateContent(ctx, objectRoot, inventory, objectID)
	v.validateVersionInventories(ctx, objectRoot, inventory, objectID)
	v.validateWarnings(inventory, objectID)
	return nil
}

func (v *Validator) validateInventoryStructure(inventory *Inventory, objectID, objectRoot string) {
	if inventory.Id == "" || inventory.Type == "" || inventory.DigestAlgorithm == "" || inventory.Head.IsZero() {
		v.issue(E036, SeverityError, objectID, "", objectRoot, "inventory is missing a required field")
	}
	if inventory.SpecVersion() == "" {
		v.issue(E038, SeverityError, objectID, "", objectRoot, "unknown inventory type '%s'", inventory.Type)
	}
	if !checksum.IsPrimary(inventory.DigestAlgorithm) {
		v.issue(E025, SeverityError, objectID, "", objectRoot, "digest algorithm '%s' not allowed as primary", inventory.DigestAlgorithm)
	}
	if len(inventory.Versions) == 0 {
		v.issue(E008, SeverityError, objectID, "", objectRoot, "inventory has no versions")
		return
	}
	nums, err := inventory.VersionNums()
	if err != nil {
		v.issue(E104, SeverityError, objectID, "", objectRoot, "%v", errors.Cause(err))
		return
	}
	for idx, num := range nums {
		if num.Num != idx+1 {
			v.issue(E010, SeverityError, objectID, num.String(), objectRoot, "version sequence has a gap")
			break
		}
	}
	padding := nums[0].Padding
	for _, num := range nums {
		if num.Padding != padding {
			code := E012
			if (num.Padding == 0) != (padding == 0) {
				code = E013
			}
			v.issue(code, SeverityError, objectID, num.String(), objectRoot, "inconsistent version number padding")
			break
		}
	}
	if nums[len(nums)-1].Num != inventory.Head.Num {
		v.issue(E040, SeverityError, objectID, "", objectRoot, "head %s is not the highest version", inventory.Head)
	}
	for digest := range inventory.Manifest {
		if !inventory.StateReferencesDigest(digest) {
			v.issue(E107, SeverityError, objectID, "", objectRoot, "manifest digest %s is referenced by no version state", digest)
		}
	}
	for name, version := range inventory.Versions {
		seen := []string{}
		for digest, paths := range version.State {
			if _, ok := inventory.Manifest[strings.ToLower(digest)]; !ok {
				v.issue(E050, SeverityError, objectID, name, objectRoot, "state digest %s is not in the manifest", digest)
			}
			for _, logicalPath := range paths {
				if err := ValidateLogicalPath(logicalPath); err != nil {
					v.issue(E095, SeverityError, objectID, name, logicalPath, "invalid logical path")
					continue
				}
				for _, other := range seen {
					if pathConflicts(other, logicalPath) {
						v.issue(E095, SeverityError, objectID, name, logicalPath, "logical path conflicts with '%s'", other)
					}
				}
				seen = append(seen, logicalPath)
			}
		}
	}
	for alg, algEntries := range inventory.Fixity {
		if !checksum.HashExists(alg) {
			v.issue(E111, SeverityError, objectID, "", objectRoot, "unknown fixity algorithm '%s'", alg)
			continue
		}
		for _, paths := range algEntries {
			for _, contentPath := range paths {
				if _, ok := inventory.DigestForContentPath(contentPath); !ok {
					v.issue(E111, SeverityError, objectID, "", contentPath, "fixity content path is not in the manifest")
				}
			}
		}
	}
}

func (v *Validator) validateSidecar(ctx context.Context, objectRoot string, inventory *Inventory, objectID string) {
	sidecarPath := fmt.Sprintf("%s/%s.%s", objectRoot, InventoryFile, inventory.DigestAlgorithm)
	ok, err := v.repo.provider.Exists(ctx, sidecarPath)
	if err != nil || !ok {
		v.issue(E058, SeverityError, objectID, "", sidecarPath, "inventory sidecar is missing")
		return
	}
	content, err := v.readSmall(ctx, v.repo.provider, sidecarPath)
	if err != nil {
		v.issue(E058, SeverityError, objectID, "", sidecarPath, "cannot read inventory sidecar")
		return
	}
	matches := sidecarRegexp.FindStringSubmatch(strings.TrimRight(content, "\n"))
	if matches == nil || matches[2] != InventoryFile {
		v.issue(E061, SeverityError, objectID, "", sidecarPath, "malformed inventory sidecar")
		return
	}
	fp, err := v.repo.provider.Open(ctx, objectRoot+"/"+InventoryFile)
	if err != nil {
		return
	}
	defer fp.Close()
	actual, err := checksum.Checksum(fp, inventory.DigestAlgorithm)
	if err != nil {
		return
	}
	if !checksum.Equal(actual, matches[1]) {
		v.issue(E060, SeverityError, objectID, "", sidecarPath, "inventory digest %s does not match sidecar digest %s", actual, matches[1])
	}
}

// validateContent checks that manifest entries resolve to files on disk,
// that no stray files live in content directories, and, unless NoFixity is
// set, that content bytes match their digests.
func (v *Validator) validateContent(ctx context.Context, objectRoot string, inventory *Inventory, objectID string) {
	onDisk := map[string]bool{}
	nums, err := inventory.VersionNums()
	if err != nil {
		return
	}
	for _, num := range nums {
		listing, err := v.repo.provider.List(ctx, objectRoot+"/"+num.String()+"/"+inventory.ContentDir())
		if err != nil {
			continue
		}
		for {
			entry, err := listing.Next()
			if err != nil {
				break
			}
			if !entry.IsDir {
				onDisk[strings.TrimPrefix(entry.Path, objectRoot+"/")] = true
			}
		}
		_ = listing.Close()
	}
	for digest, paths := range inventory.Manifest {
		for _, contentPath := range paths {
			if !onDisk[contentPath] {
				v.issue(E092, SeverityError, objectID, "", contentPath, "manifest references a file that does not exist")
				continue
			}
			delete(onDisk, contentPath)
			if v.NoFixity {
				continue
			}
			fp, err := v.repo.provider.Open(ctx, objectRoot+"/"+contentPath)
			if err != nil {
				continue
			}
			actual, err := checksum.Checksum(fp, inventory.DigestAlgorithm)
			_ = fp.Close()
			if err != nil {
				continue
			}
			if !checksum.Equal(actual, digest) {
				v.issue(E092, SeverityError, objectID, "", contentPath, "content digest %s does not match manifest digest %s", actual, digest)
			}
		}
	}
	for stray := range onDisk {
		v.issue(E023, SeverityError, objectID, "", stray, "file in content directory is not referenced by the manifest")
	}
}

// validateVersionInventories cross-checks version directory inventories
// against the root inventory.
func (v *Validator) validateVersionInventories(ctx context.Context, objectRoot string, inventory *Inventory, objectID string) {
	nums, err := inventory.VersionNums()
	if err != nil {
		return
	}
	prevSpec := Version1_0
	for _, num := range nums {
		path := objectRoot + "/" + num.String() + "/" + InventoryFile
		ok, err := v.repo.provider.Exists(ctx, path)
		if err != nil || !ok {
			v.issue(W010, SeverityWarning, objectID, num.String(), path, "version directory has no inventory")
			continue
		}
		fp, err := v.repo.provider.Open(ctx, path)
		if err != nil {
			continue
		}
		versionInventory, decodeErr := DecodeInventory(fp)
		_ = fp.Close()
		if decodeErr != nil {
			v.issue(E033, SeverityError, objectID, num.String(), path, "cannot parse version inventory: %v", errors.Cause(decodeErr))
			continue
		}
		if versionInventory.Id != inventory.Id {
			v.issue(E110, SeverityError, objectID, num.String(), path, "version inventory id '%s' differs from root id '%s'", versionInventory.Id, inventory.Id)
		}
		spec := versionInventory.SpecVersion()
		if spec != "" {
			if spec < prevSpec {
				v.issue(E103, SeverityError, objectID, num.String(), path, "spec version %s is lower than an earlier version's %s", spec, prevSpec)
			}
			prevSpec = spec
		}
		if num.Num == inventory.Head.Num {
			rootVersion := inventory.Versions[num.String()]
			headVersion := versionInventory.Versions[num.String()]
			if headVersion == nil || !rootVersion.Created.Equal(headVersion.Created) || rootVersion.Message != headVersion.Message {
				v.issue(E064, SeverityError, objectID, num.String(), path, "head version inventory differs from root inventory")
			}
		}
	}
}

func (v *Validator) validateWarnings(inventory *Inventory, objectID string) {
	if inventory.Head.Padding > 0 {
		v.issue(W001, SeverityWarning, objectID, "", "", "version numbers are zero-padded")
	}
	if inventory.DigestAlgorithm != checksum.DigestSHA512 {
		v.issue(W004, SeverityWarning, objectID, "", "", "digest algorithm is %s", inventory.DigestAlgorithm)
	}
	if u, err := url.Parse(inventory.Id); err != nil || u.Scheme == "" {
		v.issue(W005, SeverityWarning, objectID, "", "", "object id is not a URI")
	}
	for name, version := range inventory.Versions {
		if version.Message == "" || version.User == nil {
			v.issue(W007, SeverityWarning, objectID, name, "", "version has no message or user")
		}
	}
}

func (v *Validator) listDir(ctx context.Context, dir string) ([]*storage.Entry, error) {
	listing, err := v.repo.provider.ListDir(ctx, dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer listing.Close()
	var entries []*storage.Entry
	for {
		entry, err := listing.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (v *Validator) readSmall(ctx context.Context, provider interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}, path string) (string, error) {
	fp, err := provider.Open(ctx, path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer fp.Close()
	data, err := io.ReadAll(io.LimitReader(fp, 4096))
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(data), nil
}

func baseName(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
