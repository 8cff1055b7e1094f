package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acme_module.zip")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	return path
}

func TestSign_Roundtrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	path := writeArchive(t, "archive bytes")

	sig, err := Sign(priv, path)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	digest, err := Digest(strings.NewReader("archive bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if !ed25519.Verify(pub, digest, sig) {
		t.Error("signature does not verify with the signing key")
	}
	if _, err := Sign(priv, "/nonexistent/path"); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestGenerateAndLoadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")
	pubHex, err := GenerateKey(path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key mode = %v", info.Mode().Perm())
	}
	priv, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := PublicKey(priv); got != pubHex {
		t.Errorf("public key = %s, want %s", got, pubHex)
	}
	if _, err := ParsePublicKey(pubHex); err != nil {
		t.Errorf("ParsePublicKey: %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.key")
	_ = os.WriteFile(bad, []byte("abcd"), 0o600)
	if _, err := LoadPrivateKey(bad); err == nil {
		t.Error("short key accepted")
	}
}

func TestParseSignature(t *testing.T) {
	if sig, err := ParseSignature("  "); err != nil || sig != nil {
		t.Errorf("empty = %v, %v", sig, err)
	}
	if _, err := ParseSignature("zz"); !errors.Is(err, ErrSignature) {
		t.Errorf("non-hex: %v", err)
	}
	if _, err := ParseSignature("abcd"); !errors.Is(err, ErrSignature) {
		t.Errorf("short: %v", err)
	}
}

func TestNewVerifier(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	tests := []struct {
		name    string
		cfg     VerifyConfig
		wantErr bool
	}{
		{"optional without keys", VerifyConfig{}, false},
		{"required without keys", VerifyConfig{RequireSigned: true}, true},
		{"invalid hex", VerifyConfig{TrustedKeys: []string{"not-hex"}}, true},
		{"wrong size", VerifyConfig{TrustedKeys: []string{hex.EncodeToString([]byte("short"))}}, true},
		{"required with key", VerifyConfig{RequireSigned: true, TrustedKeys: []string{hex.EncodeToString(pub)}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVerifier(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifier_VerifyFile(t *testing.T) {
	pubA, privA, _ := ed25519.GenerateKey(rand.Reader)
	pubB, _, _ := ed25519.GenerateKey(rand.Reader)
	path := writeArchive(t, "module archive")
	sig, err := Sign(privA, path)
	if err != nil {
		t.Fatal(err)
	}

	trustA, _ := NewVerifier(VerifyConfig{RequireSigned: true, TrustedKeys: []string{hex.EncodeToString(pubA)}})
	trustB, _ := NewVerifier(VerifyConfig{RequireSigned: true, TrustedKeys: []string{hex.EncodeToString(pubB)}})
	optional, _ := NewVerifier(VerifyConfig{TrustedKeys: []string{hex.EncodeToString(pubA)}})
	var none *Verifier

	tests := []struct {
		name string
		v    *Verifier
		sig  []byte
		want error
	}{
		{"trusted signer", trustA, sig, nil},
		{"untrusted signer", trustB, sig, ErrSignature},
		{"missing when required", trustA, nil, ErrUnsigned},
		{"garbage", trustA, make([]byte, ed25519.SignatureSize), ErrSignature},
		{"missing when optional", optional, nil, nil},
		{"bad when optional", optional, make([]byte, ed25519.SignatureSize), ErrSignature},
		{"nil verifier", none, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.VerifyFile(path, tt.sig)
			if tt.want == nil && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if err := writeTamper(path); err != nil {
		t.Fatal(err)
	}
	if err := trustA.VerifyFile(path, sig); !errors.Is(err, ErrSignature) {
		t.Errorf("tampered archive: %v", err)
	}
}

func writeTamper(path string) error {
	return os.WriteFile(path, []byte("module archive, modified"), 0o644)
}
