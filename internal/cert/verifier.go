package cert

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// VerifyConfig controls archive verification.
type VerifyConfig struct {
	// RequireSigned rejects archives without a valid signature.
	RequireSigned bool

	// TrustedKeys is a list of hex-encoded Ed25519 public keys.
	TrustedKeys []string
}

// Verifier checks archive signatures against trusted keys.
type Verifier struct {
	required bool
	keys     []ed25519.PublicKey
}

// NewVerifier creates a Verifier. Keys are parsed even when signatures are
// optional, so a signature that is supplied is still checked.
func NewVerifier(cfg VerifyConfig) (*Verifier, error) {
	keys := make([]ed25519.PublicKey, 0, len(cfg.TrustedKeys))
	for _, s := range cfg.TrustedKeys {
		k, err := ParsePublicKey(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if cfg.RequireSigned && len(keys) == 0 {
		return nil, errors.New("require_signed is true but no trusted keys provided")
	}
	return &Verifier{required: cfg.RequireSigned, keys: keys}, nil
}

// Required reports whether unsigned archives are rejected.
func (v *Verifier) Required() bool { return v != nil && v.required }

// VerifyFile checks sig against the archive at path. A missing signature
// is accepted unless signatures are required; a supplied one must verify
// whenever trusted keys are configured.
func (v *Verifier) VerifyFile(path string, sig []byte) error {
	if v == nil {
		return nil
	}
	if len(sig) == 0 {
		if v.required {
			return ErrUnsigned
		}
		return nil
	}
	if len(v.keys) == 0 {
		return nil
	}
	digest, err := FileDigest(path)
	if err != nil {
		return fmt.Errorf("computing digest: %w", err)
	}
	for _, key := range v.keys {
		if ed25519.Verify(key, digest, sig) {
			return nil
		}
	}
	return fmt.Errorf("%w: no trusted key matches", ErrSignature)
}
