package scaffold

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/security"
)

// Zip packs the module directory dir into an archive at dest. Entries are
// relative to dir so the archive root is the module root. Hidden files and
// a compiled plugin are left out.
func Zip(dir, dest string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	destAbs, _ := filepath.Abs(dest)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || d.Name() == manifest.PluginFile {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == destAbs {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		_ = zw.Close()
		return fmt.Errorf("packing %s: %w", dir, walkErr)
	}
	return zw.Close()
}

// CompilePlugin builds the module in dir with -buildmode=plugin into
// dir/module.so. goPath defaults to "go".
func CompilePlugin(ctx context.Context, dir, goPath string, stdout, stderr io.Writer) error {
	if goPath == "" {
		goPath = "go"
	}
	run := func(args ...string) error {
		cmd := exec.CommandContext(ctx, goPath, args...)
		cmd.Dir = dir
		cmd.Env = security.SanitizedEnv()
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		return cmd.Run()
	}
	if err := run("mod", "tidy"); err != nil {
		return fmt.Errorf("go mod tidy failed: %w", err)
	}
	if err := run("build", "-buildmode=plugin", "-o", manifest.PluginFile, "."); err != nil {
		return fmt.Errorf("go build failed: %w", err)
	}
	return nil
}
