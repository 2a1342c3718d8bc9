package checksum

import (
	"fmt"
	"hash"
	"io"

	"emperror.dev/errors"
)

// ChecksumWriter hashes everything written to it with a set of algorithms
// while passing the bytes through to an underlying writer. It is the
// single-pass primitive behind content ingest: stream once, hash many.
type ChecksumWriter struct {
	dst    io.Writer
	hashes map[DigestAlgorithm]hash.Hash
	size   int64
}

func NewChecksumWriter(dst io.Writer, csTypes ...DigestAlgorithm) (*ChecksumWriter, error) {
	c := &ChecksumWriter{
		dst:    dst,
		hashes: map[DigestAlgorithm]hash.Hash{},
	}
	for _, csType := range csTypes {
		sink, err := GetHash(csType)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid hash function %s", csType)
		}
		c.hashes[csType] = sink
	}
	return c, nil
}

func (c *ChecksumWriter) Write(p []byte) (int, error) {
	for _, sink := range c.hashes {
		if _, err := sink.Write(p); err != nil {
			return 0, errors.Wrap(err, "cannot write to hash")
		}
	}
	n, err := c.dst.Write(p)
	c.size += int64(n)
	if err != nil {
		return n, errors.Wrap(err, "cannot write to destination")
	}
	return n, nil
}

func (c *ChecksumWriter) Size() int64 {
	return c.size
}

// Sum returns the lowercase hex digest for one of the configured algorithms.
func (c *ChecksumWriter) Sum(csType DigestAlgorithm) (string, error) {
	sink, ok := c.hashes[csType]
	if !ok {
		return "", errors.Errorf("no hash configured for %s", csType)
	}
	return fmt.Sprintf("%x", sink.Sum(nil)), nil
}

// Sums returns all configured digests keyed by algorithm.
func (c *ChecksumWriter) Sums() map[DigestAlgorithm]string {
	result := map[DigestAlgorithm]string{}
	for csType, sink := range c.hashes {
		result[csType] = fmt.Sprintf("%x", sink.Sum(nil))
	}
	return result
}

// ChecksumCopy streams src to dst and returns the digests of the copied bytes.
func ChecksumCopy(dst io.Writer, src io.Reader, csTypes []DigestAlgorithm) (map[DigestAlgorithm]string, error) {
	cw, err := NewChecksumWriter(dst, csTypes...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := io.Copy(cw, src); err != nil {
		return nil, errors.Wrap(err, "cannot copy to destination")
	}
	return cw.Sums(), nil
}

// Checksum digests src with a single algorithm, discarding the data.
func Checksum(src io.Reader, csType DigestAlgorithm) (string, error) {
	sink, err := GetHash(csType)
	if err != nil {
		return "", errors.Wrapf(err, "invalid checksum type %s", csType)
	}
	if _, err := io.Copy(sink, src); err != nil {
		return "", errors.Wrapf(err, "cannot create checksum %s", csType)
	}
	return fmt.Sprintf("%x", sink.Sum(nil)), nil
}
