// Package cert signs module archives with Ed25519 and verifies uploads
// against a set of trusted publisher keys. A signature covers the SHA-256
// digest of the archive bytes and travels next to the archive as hex.
package cert

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrUnsigned is returned when a signature is required but missing.
	ErrUnsigned = errors.New("archive is not signed")

	// ErrSignature is returned when no trusted key verifies a signature.
	ErrSignature = errors.New("archive signature is not valid")
)

// Digest returns the SHA-256 digest of everything read from r.
func Digest(r io.Reader) ([]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// FileDigest returns the SHA-256 digest of the file at path.
func FileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Digest(f)
}

// ParsePublicKey decodes a hex-encoded Ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid key size for %q: got %d, want %d", s, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// ParseSignature decodes a hex-encoded signature. Empty input yields a nil
// signature.
func ParseSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	sig, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex: %w", ErrSignature, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSignature, len(sig), ed25519.SignatureSize)
	}
	return sig, nil
}
