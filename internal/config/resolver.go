package config

import (
	"path/filepath"
	"strings"

	"github.com/flemzord/storemods/internal/store"
)

// Resolve makes every configured path absolute. ProjectRoot is taken
// relative to base; the other directories relative to ProjectRoot.
func (c *Config) Resolve(base string) {
	c.Paths.ProjectRoot = absUnder(base, c.Paths.ProjectRoot)
	root := c.Paths.ProjectRoot
	for _, p := range []*string{
		&c.Paths.Modules,
		&c.Paths.Downloads,
		&c.Paths.Templates,
		&c.Paths.Static,
		&c.Paths.Media,
		&c.Paths.Staging,
		&c.Audit.Path,
	} {
		if *p != "" {
			*p = absUnder(root, *p)
		}
	}

	if (c.Database.Driver == "" || c.Database.Driver == string(store.SQLite)) && isFilePath(c.Database.DSN) {
		c.Database.DSN = absUnder(root, c.Database.DSN)
	}
}

func absUnder(base, p string) string {
	if p == "" {
		p = "."
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// isFilePath reports whether a SQLite DSN names a plain file.
func isFilePath(dsn string) bool {
	return dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}
