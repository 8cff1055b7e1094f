package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
)

var (
	// ErrNotZip is returned for uploads that are not ZIP archives.
	ErrNotZip = errors.New("not a zip archive")

	// ErrUnsafePath is returned for archive entries that would land outside
	// the extraction directory or are symbolic links.
	ErrUnsafePath = errors.New("unsafe path in archive")

	// ErrTooLarge is returned when an upload or its extracted content
	// exceeds the configured limit.
	ErrTooLarge = errors.New("archive too large")

	errBudget = errors.New("size budget exhausted")
)

// Extract unpacks the ZIP archive at src into dest. Absolute paths,
// entries escaping dest and symbolic links are rejected. limit caps the
// total uncompressed size; zero means no limit.
func Extract(src, dest string, limit int64) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotZip, err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	var total int64
	for _, f := range zr.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		if mode&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is a symbolic link", ErrUnsafePath, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !mode.IsRegular() && mode.Type() != 0 {
			return fmt.Errorf("%w: %s is not a regular file", ErrUnsafePath, f.Name)
		}

		n, err := extractFile(f, target, remaining(limit, total))
		total += n
		if errors.Is(err, errBudget) {
			return fmt.Errorf("%w: extracted content exceeds %s", ErrTooLarge, humanize.IBytes(uint64(limit)))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func remaining(limit, used int64) int64 {
	if limit <= 0 {
		return -1
	}
	return limit - used
}

func entryPath(root, name string) (string, error) {
	clean := filepath.FromSlash(name)
	if filepath.IsAbs(clean) || strings.HasPrefix(name, "/") || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %s is absolute", ErrUnsafePath, name)
	}
	target := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the archive root", ErrUnsafePath, name)
	}
	return target, nil
}

// extractFile writes one entry, reading at most budget bytes when budget
// is not negative.
func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	var r io.Reader = rc
	if budget >= 0 {
		r = io.LimitReader(rc, budget+1)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if budget >= 0 && n > budget {
		return n, errBudget
	}
	return n, nil
}
