package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/flemzord/storemods/internal/state"
)

// Sign returns the Ed25519 signature of the archive at path.
func Sign(privateKey ed25519.PrivateKey, path string) ([]byte, error) {
	digest, err := FileDigest(path)
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}
	return ed25519.Sign(privateKey, digest), nil
}

// GenerateKey creates a key pair and writes the private key, hex-encoded,
// to path with owner-only permissions. It returns the hex public key.
func GenerateKey(path string) (string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	if err := state.WriteFileAtomic(path, []byte(hex.EncodeToString(priv)+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing private key: %w", err)
	}
	return hex.EncodeToString(pub), nil
}

// LoadPrivateKey reads a key written by GenerateKey.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding private key %s: %w", path, err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key %s: got %d bytes, want %d", path, len(key), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(key), nil
}

// PublicKey returns the hex public key of priv.
func PublicKey(priv ed25519.PrivateKey) string {
	return hex.EncodeToString(priv.Public().(ed25519.PublicKey))
}
