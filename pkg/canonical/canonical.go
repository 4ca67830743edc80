// Package canonical provides RFC 8785 (JSON Canonicalization Scheme) compliant
// serialization feeding the content-addressed hashes used everywhere the
// engine records provenance.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Key features:
// 1. Map keys are sorted lexicographically by UTF-8 bytes, recursively.
// 2. HTML escaping is removed (unlike standard json.Marshal).
// 3. Number formatting follows ECMAScript ToString semantics.
func JCS(v interface{}) ([]byte, error) {
	// Standard marshal first so struct tags are respected, then transform
	// into canonical form.
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}

	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the SHA-256 digest of the canonical JSON representation of v,
// prefixed with the algorithm identifier.
func Hash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes as "sha256:<hex>".
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// IsHashRef reports whether s has the shape of a hash reference produced
// by this package: the "sha256:" prefix followed by 64 hex characters.
func IsHashRef(s string) bool {
	const prefix = "sha256:"
	if len(s) != len(prefix)+sha256.Size*2 || s[:len(prefix)] != prefix {
		return false
	}
	_, err := hex.DecodeString(s[len(prefix):])
	return err == nil
}
