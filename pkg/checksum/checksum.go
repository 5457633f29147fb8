// Package checksum computes the SHA-256/SHA-512 digest pair used to
// content-address artifacts. Every uploaded file is identified by this pair:
// the object store key is derived from the SHA-256, and the database enforces
// at-most-one artifact row per (sha256, sha512) combination. Keeping the
// hashing in one package keeps the digest encoding (lowercase hex) consistent
// across the ingest, storage, and download layers.
package checksum

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
)

// Pair holds the hex-encoded SHA-256 and SHA-512 digests of a byte stream.
type Pair struct {
	SHA256 string
	SHA512 string
}

// Compute reads the full stream and returns its digest pair and byte size.
// Both digests are computed in a single pass.
func Compute(reader io.Reader) (Pair, int64, error) {
	h256 := sha256.New()
	h512 := sha512.New()

	n, err := io.Copy(io.MultiWriter(h256, h512), reader)
	if err != nil {
		return Pair{}, 0, fmt.Errorf("failed to compute digests: %w", err)
	}

	return Pair{
		SHA256: hex.EncodeToString(h256.Sum(nil)),
		SHA512: hex.EncodeToString(h512.Sum(nil)),
	}, n, nil
}

// ComputeBytes returns the digest pair for an in-memory buffer.
func ComputeBytes(data []byte) Pair {
	s256 := sha256.Sum256(data)
	s512 := sha512.Sum512(data)
	return Pair{
		SHA256: hex.EncodeToString(s256[:]),
		SHA512: hex.EncodeToString(s512[:]),
	}
}

// VerifySHA256 checks the stream's SHA-256 against an expected hex digest.
func VerifySHA256(reader io.Reader, expected string) (bool, error) {
	h := sha256.New()
	if _, err := io.Copy(h, reader); err != nil {
		return false, fmt.Errorf("failed to compute digest: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)) == expected, nil
}
