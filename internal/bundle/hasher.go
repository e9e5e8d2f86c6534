package bundle

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Hasher computes the cache-busting hash of built content.
type Hasher interface {
	Name() string
	Sum(content []byte) string
}

type hashFunc struct {
	name string
	sum  func([]byte) []byte
}

func (h hashFunc) Name() string { return h.name }

// Sum returns the upper-case hex digest of content.
func (h hashFunc) Sum(content []byte) string {
	return strings.ToUpper(hex.EncodeToString(h.sum(content)))
}

// MD5 is the default hasher.
func MD5() Hasher {
	return hashFunc{name: "md5", sum: func(b []byte) []byte { s := md5.Sum(b); return s[:] }}
}

// SHA256 returns a SHA-256 hasher.
func SHA256() Hasher {
	return hashFunc{name: "sha256", sum: func(b []byte) []byte { s := sha256.Sum256(b); return s[:] }}
}

// BLAKE3 returns a BLAKE3-256 hasher.
func BLAKE3() Hasher {
	return hashFunc{name: "blake3", sum: func(b []byte) []byte { s := blake3.Sum256(b); return s[:] }}
}

// NewHasher returns the hasher registered under name.
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(name) {
	case "md5", "":
		return MD5(), nil
	case "sha256":
		return SHA256(), nil
	case "blake3":
		return BLAKE3(), nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", name)
	}
}
