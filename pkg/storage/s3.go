package storage

import (
	"context"
	"io"
	"strings"

	"emperror.dev/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Provider implements Provider on an S3-compatible bucket. Keys containing
// '/' are treated as hierarchical; directories are purely synthetic. There is
// no atomic rename: Create writes straight to the final key, and the commit
// protocol compensates by ordering its writes.
type S3Provider struct {
	client *minio.Client
	bucket string
	prefix string
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	// Prefix roots the provider below the bucket root.
	Prefix string
	UseSSL bool
}

func NewS3Provider(conf *S3Config) (*S3Provider, error) {
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.UseSSL,
		Region: conf.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create s3 client instance")
	}
	return &S3Provider{
		client: client,
		bucket: conf.Bucket,
		prefix: strings.Trim(conf.Prefix, "/"),
	}, nil
}

func (p *S3Provider) key(path string) string {
	path = strings.Trim(path, "/")
	if p.prefix == "" {
		return path
	}
	if path == "" {
		return p.prefix
	}
	return p.prefix + "/" + path
}

func (p *S3Provider) rel(key string) string {
	if p.prefix == "" {
		return strings.Trim(key, "/")
	}
	return strings.Trim(strings.TrimPrefix(key, p.prefix), "/")
}

type s3Listing struct {
	provider *S3Provider
	objects  <-chan minio.ObjectInfo
	cancel   context.CancelFunc
}

func (l *s3Listing) Next() (*Entry, error) {
	objectInfo, ok := <-l.objects
	if !ok {
		return nil, io.EOF
	}
	if objectInfo.Err != nil {
		return nil, errors.Wrap(objectInfo.Err, "cannot list objects")
	}
	return &Entry{
		Path:  l.provider.rel(objectInfo.Key),
		IsDir: strings.HasSuffix(objectInfo.Key, "/"),
	}, nil
}

func (l *s3Listing) Close() error {
	l.cancel()
	return nil
}

func (p *S3Provider) list(ctx context.Context, prefix string, recursive bool) (Listing, error) {
	listCtx, cancel := context.WithCancel(ctx)
	key := p.key(prefix)
	if key != "" {
		key += "/"
	}
	objects := p.client.ListObjects(listCtx, p.bucket, minio.ListObjectsOptions{
		Prefix:    key,
		Recursive: recursive,
	})
	return &s3Listing{provider: p, objects: objects, cancel: cancel}, nil
}

func (p *S3Provider) List(ctx context.Context, prefix string) (Listing, error) {
	return p.list(ctx, prefix, true)
}

func (p *S3Provider) ListDir(ctx context.Context, prefix string) (Listing, error) {
	return p.list(ctx, prefix, false)
}

func (p *S3Provider) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	object, err := p.client.GetObject(ctx, p.bucket, p.key(path), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open '%s/%s'", p.bucket, p.key(path))
	}
	// GetObject is lazy; surface not-found on the first stat
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, errors.Wrapf(err, "cannot stat '%s/%s'", p.bucket, p.key(path))
	}
	return object, nil
}

func (p *S3Provider) OpenRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if length < 0 {
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, errors.Wrap(err, "cannot set range")
		}
	} else {
		if err := opts.SetRange(offset, offset+length-1); err != nil {
			return nil, errors.Wrap(err, "cannot set range")
		}
	}
	object, err := p.client.GetObject(ctx, p.bucket, p.key(path), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open '%s/%s'", p.bucket, p.key(path))
	}
	return object, nil
}

type s3WriteCloser struct {
	pipeWriter *io.PipeWriter
	done       chan error
	closed     bool
}

func (w *s3WriteCloser) Write(data []byte) (int, error) {
	return w.pipeWriter.Write(data)
}

func (w *s3WriteCloser) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.pipeWriter.Close(); err != nil {
		return errors.Wrap(err, "cannot close pipe")
	}
	return <-w.done
}

func (p *S3Provider) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	pipeReader, pipeWriter := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := p.client.PutObject(ctx, p.bucket, p.key(path), pipeReader, -1, minio.PutObjectOptions{})
		if err != nil {
			err = errors.Wrapf(err, "cannot write '%s/%s'", p.bucket, p.key(path))
			_ = pipeReader.CloseWithError(err)
		}
		done <- err
	}()
	return &s3WriteCloser{pipeWriter: pipeWriter, done: done}, nil
}

func (p *S3Provider) Move(ctx context.Context, src, dst string) error {
	if _, err := p.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: p.bucket, Object: p.key(dst)},
		minio.CopySrcOptions{Bucket: p.bucket, Object: p.key(src)},
	); err != nil {
		return errors.Wrapf(err, "cannot copy '%s' to '%s'", src, dst)
	}
	if err := p.client.RemoveObject(ctx, p.bucket, p.key(src), minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "cannot remove '%s'", src)
	}
	return nil
}

func (p *S3Provider) Delete(ctx context.Context, path string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, p.key(path), minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "cannot remove '%s'", path)
	}
	return nil
}

func (p *S3Provider) DeleteDir(ctx context.Context, path string) error {
	listing, err := p.List(ctx, path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer listing.Close()
	for {
		entry, err := listing.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if entry.IsDir {
			continue
		}
		if err := p.Delete(ctx, entry.Path); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (p *S3Provider) Exists(ctx context.Context, path string) (bool, error) {
	_, err := p.client.StatObject(ctx, p.bucket, p.key(path), minio.StatObjectOptions{})
	if err != nil {
		var errResponse minio.ErrorResponse
		if errors.As(err, &errResponse) && errResponse.Code == "NoSuchKey" {
			return false, nil
		}
		return false, errors.Wrapf(err, "cannot stat '%s/%s'", p.bucket, p.key(path))
	}
	return true, nil
}

var _ Provider = &S3Provider{}
