// Package upload turns uploaded ZIP archives into module directories: it
// stages and extracts the archive, validates the module layout, copies the
// module into the modules root, keeps the archive for later reinstalls and
// hands the module to the manager.
package upload

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/flemzord/storemods/internal/cert"
	"github.com/flemzord/storemods/internal/manager"
	"github.com/flemzord/storemods/internal/security"
)

// DefaultMaxSize caps an uploaded archive.
const DefaultMaxSize = 50 << 20

// extractRatio bounds the uncompressed size relative to MaxSize.
const extractRatio = 10

var (
	// ErrConflict is returned when a module with the same name exists and
	// overwriting is disabled.
	ErrConflict = errors.New("module already exists")

	// ErrArchiveNotFound is returned when no preserved archive exists.
	ErrArchiveNotFound = errors.New("module archive not found")
)

// Config controls the pipeline.
type Config struct {
	// StagingDir holds one short-lived directory per upload.
	StagingDir string

	// MaxSize caps the uploaded archive in bytes. Zero means DefaultMaxSize.
	MaxSize int64

	// Overwrite replaces an existing module directory instead of failing.
	Overwrite bool

	// AutoInstall installs the module once it is loaded.
	AutoInstall bool
}

// Outcome describes a successful upload.
type Outcome struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Description  string `json:"description"`
	Type         string `json:"type"`
	Archive      string `json:"-"`
	Installed    bool   `json:"installed"`
	InstallError string `json:"install_error,omitempty"`
}

// Message is the human readable result shown to the uploader.
func (o *Outcome) Message() string {
	switch {
	case o.Installed:
		return fmt.Sprintf("Module %q uploaded and installed successfully!", o.Name)
	case o.InstallError != "":
		return fmt.Sprintf("Module %q uploaded successfully but installation failed: %s", o.Name, o.InstallError)
	default:
		return fmt.Sprintf("Module %q uploaded and loaded successfully!", o.Name)
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithAudit records an audit event per upload.
func WithAudit(a *security.AuditLogger) Option { return func(p *Pipeline) { p.audit = a } }

// WithVerifier checks archive signatures before extraction.
func WithVerifier(v *cert.Verifier) Option { return func(p *Pipeline) { p.verifier = v } }

// Pipeline runs uploads against a Manager. Uploads are serialized.
type Pipeline struct {
	mgr      *manager.Manager
	cfg      Config
	logger   *slog.Logger
	audit    *security.AuditLogger
	verifier *cert.Verifier
	mu       sync.Mutex
}

// NewPipeline creates a pipeline feeding m.
func NewPipeline(m *manager.Manager, cfg Config, opts ...Option) *Pipeline {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(os.TempDir(), "storemods-uploads")
	}
	p := &Pipeline{mgr: m, cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "upload")
	return p
}

// StagingDir returns the directory holding in-flight uploads.
func (p *Pipeline) StagingDir() string { return p.cfg.StagingDir }

// Upload validates the archive read from r and, if it holds a valid
// module, installs it into the modules root. filename must end in ".zip".
// A validation failure is reported as *ValidationFailure and leaves the
// modules root untouched.
func (p *Pipeline) Upload(ctx context.Context, filename string, r io.Reader) (*Outcome, error) {
	return p.UploadSigned(ctx, filename, r, nil)
}

// UploadSigned is Upload with a detached archive signature. The signature
// is checked before extraction and kept next to the preserved archive.
func (p *Pipeline) UploadSigned(ctx context.Context, filename string, r io.Reader, sig []byte) (out *Outcome, err error) {
	if !strings.EqualFold(filepath.Ext(filename), ".zip") {
		return nil, fmt.Errorf("%w: please upload a ZIP file containing the module", ErrNotZip)
	}
	defer func() { p.record(ctx, out, filename, err) }()
	return p.run(ctx, r, sig, p.cfg.Overwrite, p.cfg.AutoInstall)
}

// Reinstall runs the preserved archive of name through the pipeline again,
// replacing any existing directory and installing the module.
func (p *Pipeline) Reinstall(ctx context.Context, name string) (out *Outcome, err error) {
	f, err := p.OpenArchive(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer func() { p.record(ctx, out, filepath.Base(f.Name()), err) }()

	sig, err := p.readSignature(name)
	if err != nil {
		return nil, err
	}
	out, err = p.run(ctx, f, sig, true, true)
	if err == nil && out.Name != name {
		p.logger.Warn("archive holds a different module", "archive", name, "module", out.Name)
	}
	return out, err
}

// ArchivePath returns where the archive of name is preserved.
func (p *Pipeline) ArchivePath(name string) string {
	return p.mgr.ArchivePath(name)
}

// SignaturePath returns where the signature of name's archive is kept.
func (p *Pipeline) SignaturePath(name string) string {
	return p.mgr.ArchivePath(name) + ".sig"
}

func (p *Pipeline) readSignature(name string) ([]byte, error) {
	raw, err := os.ReadFile(p.SignaturePath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cert.ParseSignature(string(raw))
}

// OpenArchive opens the preserved archive of name for reading.
func (p *Pipeline) OpenArchive(name string) (*os.File, error) {
	f, err := os.Open(p.mgr.ArchivePath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, name)
	}
	return f, err
}

func (p *Pipeline) run(ctx context.Context, r io.Reader, sig []byte, overwrite, install bool) (*Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	staging := filepath.Join(p.cfg.StagingDir, uuid.NewString())
	if err := os.MkdirAll(staging, 0o700); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			p.logger.Warn("staging cleanup failed", "dir", staging, "error", err)
		}
	}()

	archive := filepath.Join(staging, "upload.zip")
	if err := p.stage(archive, r); err != nil {
		return nil, err
	}
	if err := p.verifier.VerifyFile(archive, sig); err != nil {
		return nil, err
	}
	extracted := filepath.Join(staging, "extract")
	if err := Extract(archive, extracted, p.cfg.MaxSize*extractRatio); err != nil {
		return nil, err
	}

	root := LocateRoot(extracted)
	res := validateStructure(root, p.logger)
	if !res.Valid {
		return nil, &ValidationFailure{Errors: res.Errors}
	}
	name, man := res.ModuleName, res.Manifest

	if isDir(p.mgr.ModuleDir(name)) {
		if !overwrite {
			return nil, fmt.Errorf("%w: module %q already exists, remove it first", ErrConflict, name)
		}
		p.logger.Info("overwriting existing module", "module", name)
	}
	if _, err := p.mgr.Adopt(ctx, name, func(dir string) error {
		if err := copyDir(root, dir); err != nil {
			return fmt.Errorf("copying module %s: %w", name, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// Only a module that loaded gets its archive kept for downloads and
	// reinstalls.
	kept := p.mgr.ArchivePath(name)
	if err := copyFile(archive, kept, 0o644); err != nil {
		p.logger.Warn("could not preserve module archive", "module", name, "error", err)
	} else if err := p.mgr.Ledger().Record(name, kept); err != nil {
		p.logger.Warn("could not record module archive", "module", name, "error", err)
	}
	p.keepSignature(name, sig)

	out := &Outcome{
		Name:        name,
		Version:     man.Version,
		Description: man.Description,
		Type:        string(man.Type),
		Archive:     kept,
	}
	if install {
		if err := p.mgr.Install(ctx, name); err != nil {
			out.InstallError = err.Error()
			p.logger.Warn("uploaded module failed to install", "module", name, "error", err)
		} else {
			out.Installed = true
		}
	}
	p.logger.Info("module uploaded", "module", name, "version", man.Version, "installed", out.Installed)
	return out, nil
}

// keepSignature stores sig beside the preserved archive so a reinstall
// can verify it again, and removes a stale one when sig is empty.
func (p *Pipeline) keepSignature(name string, sig []byte) {
	path := p.SignaturePath(name)
	if len(sig) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("could not remove stale signature", "module", name, "error", err)
		}
		return
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(sig)+"\n"), 0o644); err != nil {
		p.logger.Warn("could not keep archive signature", "module", name, "error", err)
		return
	}
	if err := p.mgr.Ledger().Record(name, path); err != nil {
		p.logger.Warn("could not record archive signature", "module", name, "error", err)
	}
}

func (p *Pipeline) stage(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(r, p.cfg.MaxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("receiving upload: %w", err)
	}
	if n > p.cfg.MaxSize {
		return fmt.Errorf("%w: uploads are limited to %s", ErrTooLarge, humanize.IBytes(uint64(p.cfg.MaxSize)))
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, out *Outcome, filename string, err error) {
	ev := security.AuditEvent{
		Type:     security.EventModuleUpload,
		Actor:    manager.ActorFromContext(ctx),
		Success:  err == nil,
		Metadata: map[string]string{"filename": filename},
	}
	if out != nil {
		ev.Module = out.Name
	}
	if err != nil {
		ev.Detail = err.Error()
	}
	p.audit.Log(ev)
}

// Sweep deletes staging directories older than age, left behind by
// uploads interrupted by a crash. It returns how many it removed.
func (p *Pipeline) Sweep(age time.Duration) (int, error) {
	entries, err := os.ReadDir(p.cfg.StagingDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-age)
	removed := 0
	var errs []error
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !e.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := uuid.Validate(e.Name()); err != nil {
			continue
		}
		if err := os.RemoveAll(filepath.Join(p.cfg.StagingDir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
