package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Hasher computes both digests recorded for a file in one pass.
type Hasher struct {
	h hash.Hash
	x *xxhash.Digest
	n int64
}

func NewHasher() *Hasher {
	return &Hasher{h: sha256.New(), x: xxhash.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	h.h.Write(p)
	h.x.Write(p)
	h.n += int64(len(p))
	return len(p), nil
}

// Sum returns the hex SHA-256 digest.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

func (h *Hasher) Fingerprint() Fingerprint {
	return Fingerprint{Size: h.n, SHA256: h.Sum(), XXH64: fmt.Sprintf("%016x", h.x.Sum64())}
}

// Fingerprint identifies file contents. XXH64 is a fast comparison key,
// SHA256 the one printed in reports.
type Fingerprint struct {
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	XXH64  string `json:"xxh64"`
}

func FingerprintOf(b []byte) Fingerprint {
	h := NewHasher()
	h.Write(b)
	return h.Fingerprint()
}

func Sha256OfFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := NewHasher()
	if _, err := io.Copy(h, f); err != nil {
		return "", 0, err
	}
	fp := h.Fingerprint()
	return fp.SHA256, fp.Size, nil
}
