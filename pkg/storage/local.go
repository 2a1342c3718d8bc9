package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/google/uuid"
)

// LocalProvider implements Provider on a directory of the local filesystem.
// All paths are slash-separated and relative to the base directory.
type LocalProvider struct {
	base string
}

func NewLocalProvider(base string) (*LocalProvider, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve path '%s'", base)
	}
	return &LocalProvider{base: abs}, nil
}

func (p *LocalProvider) Base() string {
	return p.base
}

func (p *LocalProvider) abs(path string) string {
	return filepath.Join(p.base, filepath.FromSlash(path))
}

type localListing struct {
	provider *LocalProvider
	// stack of directories still to visit, relative to base
	dirs      []string
	pending   []*Entry
	recursive bool
}

func (l *localListing) Next() (*Entry, error) {
	for {
		if len(l.pending) > 0 {
			e := l.pending[0]
			l.pending = l.pending[1:]
			if e.IsDir && l.recursive {
				l.dirs = append(l.dirs, e.Path)
			}
			return e, nil
		}
		if len(l.dirs) == 0 {
			return nil, io.EOF
		}
		dir := l.dirs[len(l.dirs)-1]
		l.dirs = l.dirs[:len(l.dirs)-1]
		dirents, err := os.ReadDir(l.provider.abs(dir))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read directory '%s'", dir)
		}
		for _, dirent := range dirents {
			rel := dirent.Name()
			if dir != "" {
				rel = dir + "/" + dirent.Name()
			}
			l.pending = append(l.pending, &Entry{Path: rel, IsDir: dirent.IsDir()})
		}
	}
}

func (l *localListing) Close() error { return nil }

func (p *LocalProvider) list(prefix string, recursive bool) (Listing, error) {
	prefix = strings.Trim(prefix, "/")
	info, err := os.Stat(p.abs(prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return NewSliceListing(nil), nil
		}
		return nil, errors.Wrapf(err, "cannot stat '%s'", prefix)
	}
	if !info.IsDir() {
		return NewSliceListing([]*Entry{{Path: prefix, IsDir: false}}), nil
	}
	return &localListing{provider: p, dirs: []string{prefix}, recursive: recursive}, nil
}

func (p *LocalProvider) List(ctx context.Context, prefix string) (Listing, error) {
	return p.list(prefix, true)
}

func (p *LocalProvider) ListDir(ctx context.Context, prefix string) (Listing, error) {
	return p.list(prefix, false)
}

func (p *LocalProvider) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	fp, err := os.Open(p.abs(path))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open '%s'", path)
	}
	return fp, nil
}

type sectionReadCloser struct {
	io.Reader
	fp *os.File
}

func (r *sectionReadCloser) Close() error { return r.fp.Close() }

func (p *LocalProvider) OpenRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	fp, err := os.Open(p.abs(path))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open '%s'", path)
	}
	if _, err := fp.Seek(offset, io.SeekStart); err != nil {
		_ = fp.Close()
		return nil, errors.Wrapf(err, "cannot seek to %d in '%s'", offset, path)
	}
	if length < 0 {
		return fp, nil
	}
	return &sectionReadCloser{Reader: io.LimitReader(fp, length), fp: fp}, nil
}

type localWriteCloser struct {
	fp       *os.File
	tempName string
	name     string
	closed   bool
}

func (w *localWriteCloser) Write(data []byte) (int, error) {
	return w.fp.Write(data)
}

// Close syncs the temp file and renames it into place, making the write
// atomic with respect to concurrent readers.
func (w *localWriteCloser) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.fp.Sync(); err != nil {
		_ = w.fp.Close()
		_ = os.Remove(w.tempName)
		return errors.Wrapf(err, "cannot sync '%s'", w.tempName)
	}
	if err := w.fp.Close(); err != nil {
		_ = os.Remove(w.tempName)
		return errors.Wrapf(err, "cannot close '%s'", w.tempName)
	}
	if err := os.Rename(w.tempName, w.name); err != nil {
		_ = os.Remove(w.tempName)
		return errors.Wrapf(err, "cannot rename '%s' to '%s'", w.tempName, w.name)
	}
	return nil
}

func (p *LocalProvider) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	name := p.abs(path)
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return nil, errors.Wrapf(err, "cannot create directory for '%s'", path)
	}
	tempName := filepath.Join(filepath.Dir(name), "."+uuid.NewString()+".tmp")
	fp, err := os.OpenFile(tempName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create temp file for '%s'", path)
	}
	return &localWriteCloser{fp: fp, tempName: tempName, name: name}, nil
}

func (p *LocalProvider) Move(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(p.abs(dst)), 0755); err != nil {
		return errors.Wrapf(err, "cannot create directory for '%s'", dst)
	}
	if err := os.Rename(p.abs(src), p.abs(dst)); err != nil {
		return errors.Wrapf(err, "cannot move '%s' to '%s'", src, dst)
	}
	return nil
}

func (p *LocalProvider) Delete(ctx context.Context, path string) error {
	if err := os.Remove(p.abs(path)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "cannot delete '%s'", path)
	}
	return nil
}

func (p *LocalProvider) DeleteDir(ctx context.Context, path string) error {
	if err := os.RemoveAll(p.abs(path)); err != nil {
		return errors.Wrapf(err, "cannot delete directory '%s'", path)
	}
	return nil
}

func (p *LocalProvider) Exists(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(p.abs(path)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "cannot stat '%s'", path)
	}
	return true, nil
}

var _ Provider = &LocalProvider{}
