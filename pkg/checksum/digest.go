package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/maps"
)

type DigestAlgorithm string

const (
	DigestMD5        DigestAlgorithm = "md5"
	DigestSHA1       DigestAlgorithm = "sha1"
	DigestSHA256     DigestAlgorithm = "sha256"
	DigestSHA512     DigestAlgorithm = "sha512"
	DigestBlake2b160 DigestAlgorithm = "blake2b-160"
	DigestBlake2b256 DigestAlgorithm = "blake2b-256"
	DigestBlake2b384 DigestAlgorithm = "blake2b-384"
	DigestBlake2b512 DigestAlgorithm = "blake2b-512"
)

var hashFunc = map[DigestAlgorithm]func() hash.Hash{
	DigestMD5:    md5.New,
	DigestSHA1:   sha1.New,
	DigestSHA256: sha256.New,
	DigestSHA512: sha512.New,
	DigestBlake2b160: func() hash.Hash {
		h, err := blake2b.New(20, nil)
		if err != nil {
			panic(err)
		}
		return h
	},
	DigestBlake2b256: func() hash.Hash {
		h, err := blake2b.New256(nil)
		if err != nil {
			panic(err)
		}
		return h
	},
	DigestBlake2b384: func() hash.Hash {
		h, err := blake2b.New384(nil)
		if err != nil {
			panic(err)
		}
		return h
	},
	DigestBlake2b512: func() hash.Hash {
		h, err := blake2b.New512(nil)
		if err != nil {
			panic(err)
		}
		return h
	},
}

var DigestNames = maps.Keys(hashFunc)

// Primary algorithms allowed for an inventory's digestAlgorithm field.
// All others may only appear in the fixity block.
var PrimaryAlgorithms = []DigestAlgorithm{DigestSHA512, DigestSHA256}

func HashExists(csType DigestAlgorithm) bool {
	_, ok := hashFunc[csType]
	return ok
}

func IsPrimary(csType DigestAlgorithm) bool {
	return csType == DigestSHA512 || csType == DigestSHA256
}

func GetHash(csType DigestAlgorithm) (hash.Hash, error) {
	f, ok := hashFunc[csType]
	if !ok {
		return nil, fmt.Errorf("unknown digest algorithm %s", csType)
	}
	return f(), nil
}

// Equal compares two hex digests case-insensitively in constant time.
func Equal(d1, d2 string) bool {
	if len(d1) != len(d2) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(d1)), []byte(strings.ToLower(d2))) == 1
}
