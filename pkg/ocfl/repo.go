package ocfl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"emperror.dev/errors"
	"github.com/ocfl-archive/rocfl/pkg/checksum"
	"github.com/ocfl-archive/rocfl/pkg/extension"
	"github.com/ocfl-archive/rocfl/pkg/storage"
	"github.com/rs/zerolog"
)

// Repository is a handle on an OCFL storage root. Inventories are never
// cached across operations: the root is externally mutable and every
// operation re-reads what it needs.
type Repository struct {
	provider storage.Provider
	spec     OCFLVersion
	layout   extension.Layout
	staging  *stagingStore
	logger   zerolog.Logger
}

// Options configures OpenRepository.
type Options struct {
	Logger zerolog.Logger
	// StagingBase is a local directory holding staged versions for
	// repositories on remote providers. Empty means staging lives inside
	// the storage root itself (local repositories only).
	StagingBase string
}

// OpenRepository opens an existing storage root: finds the namaste
// declaration and resolves the storage layout. A missing or unknown layout
// leaves the repository in scan mode.
func OpenRepository(ctx context.Context, provider storage.Provider, opts *Options) (*Repository, error) {
	if opts == nil {
		opts = &Options{}
	}
	repo := &Repository{provider: provider, logger: opts.Logger}
	for _, spec := range []OCFLVersion{Version1_1, Version1_0} {
		ok, err := provider.Exists(ctx, RootNamasteFile(spec))
		if err != nil {
			return nil, errors.Wrap(err, "cannot probe storage root declaration")
		}
		if ok {
			repo.spec = spec
			break
		}
	}
	if repo.spec == "" {
		return nil, notFoundf("no OCFL storage root declaration found")
	}
	if err := repo.loadLayout(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := repo.initStaging(opts.StagingBase); err != nil {
		return nil, errors.WithStack(err)
	}
	return repo, nil
}

func (repo *Repository) loadLayout(ctx context.Context) error {
	ok, err := repo.provider.Exists(ctx, LayoutFile)
	if err != nil {
		return errors.Wrap(err, "cannot probe ocfl_layout.json")
	}
	if !ok {
		repo.logger.Debug().Msg("no ocfl_layout.json, repository operates in scan mode")
		return nil
	}
	fp, err := repo.provider.Open(ctx, LayoutFile)
	if err != nil {
		return errors.Wrap(err, "cannot open ocfl_layout.json")
	}
	defer fp.Close()
	var layoutDecl struct {
		Extension   string `json:"extension"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(fp).Decode(&layoutDecl); err != nil {
		return errors.Wrap(err, "cannot decode ocfl_layout.json")
	}
	if !extension.IsKnown(layoutDecl.Extension) {
		repo.logger.Warn().Str("extension", layoutDecl.Extension).Msg("unknown storage layout extension, falling back to scan mode")
		return nil
	}
	var configJSON []byte
	configPath := fmt.Sprintf("%s/%s/%s", ExtensionsDir, layoutDecl.Extension, ExtensionConfigFile)
	if ok, err := repo.provider.Exists(ctx, configPath); err == nil && ok {
		fp, err := repo.provider.Open(ctx, configPath)
		if err != nil {
			return errors.Wrapf(err, "cannot open '%s'", configPath)
		}
		defer fp.Close()
		if configJSON, err = io.ReadAll(fp); err != nil {
			return errors.Wrapf(err, "cannot read '%s'", configPath)
		}
	}
	layout, err := extension.NewLayout(layoutDecl.Extension, configJSON)
	if err != nil {
		return errors.Wrapf(err, "cannot configure layout '%s'", layoutDecl.Extension)
	}
	repo.layout = layout
	return nil
}

// InitRepository lays down a new storage root: namaste, optional layout
// declaration, and the layout's extension config.
func InitRepository(ctx context.Context, provider storage.Provider, spec OCFLVersion, layout extension.Layout, opts *Options) (*Repository, error) {
	if opts == nil {
		opts = &Options{}
	}
	for _, existing := range []OCFLVersion{Version1_0, Version1_1} {
		ok, err := provider.Exists(ctx, RootNamasteFile(existing))
		if err != nil {
			return nil, errors.Wrap(err, "cannot probe storage root")
		}
		if ok {
			return nil, invalidf("storage root already contains an OCFL declaration")
		}
	}
	if err := writeFile(ctx, provider, RootNamasteFile(spec), []byte(RootNamasteContent(spec))); err != nil {
		return nil, errors.WithStack(err)
	}
	if layout != nil {
		layoutDecl, err := json.MarshalIndent(struct {
			Extension   string `json:"extension"`
			Description string `json:"description"`
		}{layout.Name(), layout.Description()}, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "cannot encode layout declaration")
		}
		if err := writeFile(ctx, provider, LayoutFile, append(layoutDecl, '\n')); err != nil {
			return nil, errors.WithStack(err)
		}
		configJSON, err := json.MarshalIndent(layout.Config(), "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "cannot encode layout config")
		}
		configPath := fmt.Sprintf("%s/%s/%s", ExtensionsDir, layout.Name(), ExtensionConfigFile)
		if err := writeFile(ctx, provider, configPath, append(configJSON, '\n')); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	repo := &Repository{provider: provider, spec: spec, layout: layout, logger: opts.Logger}
	if err := repo.initStaging(opts.StagingBase); err != nil {
		return nil, errors.WithStack(err)
	}
	repo.logger.Info().Str("spec", string(spec)).Msg("initialized storage root")
	return repo, nil
}

func writeFile(ctx context.Context, provider storage.Provider, path string, data []byte) error {
	w, err := provider.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "cannot create '%s'", path)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "cannot write '%s'", path)
	}
	return errors.Wrapf(w.Close(), "cannot close '%s'", path)
}

func (repo *Repository) SpecVersion() OCFLVersion {
	return repo.spec
}

// LayoutName returns the active layout extension id, or empty in scan mode.
func (repo *Repository) LayoutName() string {
	if repo.layout == nil {
		return ""
	}
	return repo.layout.Name()
}

// ResolveObjectPath maps an object id to its root path, via the layout when
// one is configured, otherwise by scanning.
func (repo *Repository) ResolveObjectPath(ctx context.Context, id string) (string, error) {
	if repo.layout != nil {
		path, err := repo.layout.BuildObjectPath(id)
		if err != nil {
			return "", errors.Wrapf(err, "cannot map object id '%s'", id)
		}
		return path, nil
	}
	scanner := repo.ScanObjects(ctx)
	defer scanner.Close()
	for {
		objectRoot, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.WithStack(err)
		}
		inventory, err := repo.readInventory(ctx, objectRoot+"/"+InventoryFile)
		if err != nil {
			repo.logger.Warn().Str("path", objectRoot).Err(err).Msg("skipping unreadable object during scan")
			continue
		}
		if inventory.Id == id {
			return objectRoot, nil
		}
	}
	return "", notFoundf("object '%s' not found", id)
}

// ObjectScanner walks the storage root lazily, yielding object root paths.
// Any directory containing a 0=ocfl_object_* namaste file is an object root;
// the scanner does not descend into object roots or the extensions dir.
type ObjectScanner struct {
	ctx      context.Context
	repo     *Repository
	dirs     []string
	pending  []string
	finished bool
}

func (repo *Repository) ScanObjects(ctx context.Context) *ObjectScanner {
	return &ObjectScanner{ctx: ctx, repo: repo, dirs: []string{""}}
}

func (s *ObjectScanner) Next() (string, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return "", errors.Wrap(err, "scan cancelled")
		}
		if len(s.pending) > 0 {
			objectRoot := s.pending[0]
			s.pending = s.pending[1:]
			return objectRoot, nil
		}
		if len(s.dirs) == 0 {
			return "", io.EOF
		}
		dir := s.dirs[len(s.dirs)-1]
		s.dirs = s.dirs[:len(s.dirs)-1]
		listing, err := s.repo.provider.ListDir(s.ctx, dir)
		if err != nil {
			return "", errors.WithStack(err)
		}
		var subdirs []string
		isObject := false
		for {
			entry, err := listing.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = listing.Close()
				return "", errors.WithStack(err)
			}
			name := entry.Path[strings.LastIndex(entry.Path, "/")+1:]
			if entry.IsDir {
				if dir == "" && name == ExtensionsDir {
					continue
				}
				subdirs = append(subdirs, entry.Path)
			} else if strings.HasPrefix(name, "0=ocfl_object_") {
				isObject = true
			}
		}
		_ = listing.Close()
		if isObject {
			s.pending = append(s.pending, dir)
		} else {
			s.dirs = append(s.dirs, subdirs...)
		}
	}
}

func (s *ObjectScanner) Close() error { return nil }

// ListObjectIds yields object ids as the scanner finds them; unreadable
// objects are reported through the callback and skipped.
func (repo *Repository) ListObjectIds(ctx context.Context, onError func(path string, err error)) (*ObjectIdCursor, error) {
	return &ObjectIdCursor{scanner: repo.ScanObjects(ctx), repo: repo, ctx: ctx, onError: onError}, nil
}

type ObjectIdCursor struct {
	ctx     context.Context
	repo    *Repository
	scanner *ObjectScanner
	onError func(path string, err error)
}

// IdAndPath pairs an object id with its root path.
type IdAndPath struct {
	Id   string
	Path string
}

func (c *ObjectIdCursor) Next() (*IdAndPath, error) {
	for {
		objectRoot, err := c.scanner.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}
		inventory, err := c.repo.readInventory(c.ctx, objectRoot+"/"+InventoryFile)
		if err != nil {
			if c.onError != nil {
				c.onError(objectRoot, err)
			}
			continue
		}
		return &IdAndPath{Id: inventory.Id, Path: objectRoot}, nil
	}
}

func (c *ObjectIdCursor) Close() error { return c.scanner.Close() }

func (repo *Repository) readInventory(ctx context.Context, path string) (*Inventory, error) {
	fp, err := repo.provider.Open(ctx, path)
	if err != nil {
		return nil, notFoundf("cannot open inventory '%s': %v", path, err)
	}
	defer fp.Close()
	inventory, err := DecodeInventory(fp)
	if err != nil {
		return nil, errors.Wrapf(err, "inventory '%s'", path)
	}
	return inventory, nil
}

// GetObject returns a read view of an object pinned to a version (zero
// VersionNum pins the head).
func (repo *Repository) GetObject(ctx context.Context, id string, num VersionNum) (*Object, error) {
	objectRoot, err := repo.ResolveObjectPath(ctx, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return repo.GetObjectAt(ctx, id, objectRoot, num)
}

// GetObjectAt opens an object at a known root path, bypassing the layout.
func (repo *Repository) GetObjectAt(ctx context.Context, id string, objectRoot string, num VersionNum) (*Object, error) {
	ok, err := repo.provider.Exists(ctx, objectRoot+"/"+InventoryFile)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !ok {
		return nil, notFoundf("object '%s' not found at '%s'", id, objectRoot)
	}
	inventory, err := repo.readInventory(ctx, objectRoot+"/"+InventoryFile)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := inventory.Check(); err != nil {
		return nil, errors.WithStack(err)
	}
	if id != "" && inventory.Id != id {
		return nil, corruptf("object at '%s' has id '%s', expected '%s'", objectRoot, inventory.Id, id)
	}
	if num.IsZero() {
		num = inventory.Head
	} else {
		num.Padding = inventory.Head.Padding
		if _, err := inventory.GetVersion(num); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return &Object{repo: repo, root: objectRoot, inventory: inventory, version: num}, nil
}

// Upgrade rewrites the storage root declaration from OCFL 1.0 to 1.1.
func (repo *Repository) Upgrade(ctx context.Context) error {
	if repo.spec == Version1_1 {
		return invalidf("storage root is already OCFL 1.1")
	}
	if err := writeFile(ctx, repo.provider, RootNamasteFile(Version1_1), []byte(RootNamasteContent(Version1_1))); err != nil {
		return errors.WithStack(err)
	}
	if err := repo.provider.Delete(ctx, RootNamasteFile(Version1_0)); err != nil {
		return errors.WithStack(err)
	}
	repo.spec = Version1_1
	repo.logger.Info().Msg("upgraded storage root to OCFL 1.1")
	return nil
}

// UpgradeObject rewrites an object's inventories from OCFL 1.0 to 1.1:
// the type URI changes, content is untouched.
func (repo *Repository) UpgradeObject(ctx context.Context, id string) error {
	object, err := repo.GetObject(ctx, id, VersionNum{})
	if err != nil {
		return errors.WithStack(err)
	}
	inventory := object.inventory
	spec := inventory.SpecVersion()
	if spec == Version1_1 {
		return invalidf("object '%s' is already OCFL 1.1", id)
	}
	inventory.Type = InventoryType(Version1_1)
	var buf bytes.Buffer
	if err := EncodeInventory(&buf, inventory); err != nil {
		return errors.WithStack(err)
	}
	digest, err := checksum.Checksum(bytes.NewReader(buf.Bytes()), inventory.DigestAlgorithm)
	if err != nil {
		return errors.WithStack(err)
	}
	sidecar := fmt.Sprintf("%s  %s\n", digest, InventoryFile)
	headDir := object.root + "/" + inventory.Head.String()
	for _, dir := range []string{headDir, object.root} {
		if err := writeFile(ctx, repo.provider, dir+"/"+InventoryFile, buf.Bytes()); err != nil {
			return errors.WithStack(err)
		}
		sidecarPath := fmt.Sprintf("%s/%s.%s", dir, InventoryFile, inventory.DigestAlgorithm)
		if err := writeFile(ctx, repo.provider, sidecarPath, []byte(sidecar)); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := writeFile(ctx, repo.provider, object.root+"/"+ObjectNamasteFile(Version1_1), []byte(ObjectNamasteContent(Version1_1))); err != nil {
		return errors.WithStack(err)
	}
	if err := repo.provider.Delete(ctx, object.root+"/"+ObjectNamasteFile(Version1_0)); err != nil {
		return errors.WithStack(err)
	}
	repo.logger.Info().Str("object", id).Msg("upgraded object to OCFL 1.1")
	return nil
}

// Info summarizes a repository without scanning it.
type RepositoryInfo struct {
	SpecVersion OCFLVersion
	Layout      string
}

func (repo *Repository) Info() *RepositoryInfo {
	info := &RepositoryInfo{SpecVersion: repo.spec}
	if repo.layout != nil {
		info.Layout = repo.layout.Name()
	}
	return info
}
