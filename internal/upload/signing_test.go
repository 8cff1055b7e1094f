package upload

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/storemods/internal/cert"
)

func TestUploadSigned(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{AutoInstall: true}, nil)
	ctx := context.Background()

	keyPath := filepath.Join(t.TempDir(), "signing.key")
	pub, err := cert.GenerateKey(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	priv, err := cert.LoadPrivateKey(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	v, err := cert.NewVerifier(cert.VerifyConfig{RequireSigned: true, TrustedKeys: []string{pub}})
	if err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(f.mgr, f.pipeline.cfg, WithLogger(quiet), WithVerifier(v))

	data := zipBytes(t, "", paymentModule("acme_pay"))
	archive := filepath.Join(t.TempDir(), "acme_pay.zip")
	if err := os.WriteFile(archive, data, 0o644); err != nil {
		t.Fatal(err)
	}
	sig, err := cert.Sign(priv, archive)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Upload(ctx, "acme_pay.zip", bytes.NewReader(data)); !errors.Is(err, cert.ErrUnsigned) {
		t.Errorf("unsigned upload err = %v, want ErrUnsigned", err)
	}
	forged := bytes.Clone(sig)
	forged[0] ^= 0xff
	if _, err := p.UploadSigned(ctx, "acme_pay.zip", bytes.NewReader(data), forged); !errors.Is(err, cert.ErrSignature) {
		t.Errorf("forged upload err = %v, want ErrSignature", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "acme_pay")); !os.IsNotExist(err) {
		t.Fatal("rejected archive reached the modules root")
	}

	out, err := p.UploadSigned(ctx, "acme_pay.zip", bytes.NewReader(data), sig)
	if err != nil {
		t.Fatalf("signed upload: %v", err)
	}
	if !out.Installed {
		t.Errorf("outcome = %+v", out)
	}
	kept, err := os.ReadFile(p.SignaturePath("acme_pay"))
	if err != nil {
		t.Fatalf("signature not kept: %v", err)
	}
	if got, _ := cert.ParseSignature(string(kept)); !bytes.Equal(got, sig) {
		t.Errorf("kept signature = %s", kept)
	}

	// Reinstall verifies the kept signature again.
	if _, err := f.mgr.Uninstall(ctx, "acme_pay"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Reinstall(ctx, "acme_pay"); err != nil {
		t.Fatalf("Reinstall: %v", err)
	}
	if err := os.WriteFile(p.SignaturePath("acme_pay"), []byte(hex.EncodeToString(make([]byte, ed25519.SignatureSize))), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Reinstall(ctx, "acme_pay"); !errors.Is(err, cert.ErrSignature) {
		t.Errorf("reinstall with a bad signature: %v", err)
	}

	if _, err := f.mgr.Purge(ctx, "acme_pay"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p.SignaturePath("acme_pay")); !os.IsNotExist(err) {
		t.Error("purge left the signature behind")
	}
}
