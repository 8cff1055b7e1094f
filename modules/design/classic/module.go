// Package classic is the default storefront theme.
package classic

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// Name is the module name.
const Name = "classic_theme"

//go:embed manifest.json module.go templates static
var files embed.FS

// ErrInvalidColor is returned by Enable when a color setting is not a hex
// color.
var ErrInvalidColor = errors.New("invalid color")

var (
	hexColor    = regexp.MustCompile(`^#(?:[0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)
	placeholder = regexp.MustCompile(`\{\{\s*(theme\.)?([A-Za-z0-9_]+)\s*\}\}`)
)

var colorKeys = []string{"primary_color", "secondary_color", "background_color", "text_color"}

func init() {
	core.RegisterModule(&Module{})
}

// Module implements core.DesignModule.
type Module struct {
	core.DesignModuleBase
}

var _ core.DesignModule = (*Module)(nil)

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:    Name,
		Type:  manifest.TypeDesign,
		New:   func() core.Module { return new(Module) },
		Files: files,
	}
}

// Presentation implements core.Module.
func (m *Module) Presentation() core.Presentation {
	p := m.DesignModuleBase.Presentation()
	p.DisplayName = "Classic"
	p.Color = "#0d6efd"
	return p
}

// Enable refuses to activate the theme with malformed colors.
func (m *Module) Enable(context.Context) error {
	settings := m.Settings()
	for _, k := range colorKeys {
		v, _ := settings[k].(string)
		if !hexColor.MatchString(v) {
			return fmt.Errorf("%w: %s = %q", ErrInvalidColor, k, v)
		}
	}
	return nil
}

// ThemeConfig implements core.DesignModule.
func (m *Module) ThemeConfig() core.ThemeConfig {
	cfg := core.ThemeConfig{
		Name:   Name,
		Colors: map[string]string{},
		Fonts:  map[string]string{},
		Stylesheets: []string{
			"/static/" + Name + "/classic.css",
			"/" + Name + "/theme.css",
		},
	}
	for k, v := range m.Settings() {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case strings.HasSuffix(k, "_color"):
			cfg.Colors[strings.TrimSuffix(k, "_color")] = s
		case strings.HasSuffix(k, "_font"):
			cfg.Fonts[strings.TrimSuffix(k, "_font")] = s
		}
	}
	return cfg
}

// ApplyTheme fills {{name}} placeholders from data and {{theme.key}}
// placeholders from the theme settings. Values are inserted verbatim and
// unknown placeholders are left as they are.
func (m *Module) ApplyTheme(template string, data map[string]any) string {
	settings := m.Settings()
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)
		src := data
		if parts[1] != "" {
			src = settings
		}
		v, ok := src[parts[2]]
		if !ok || v == nil {
			return match
		}
		return fmt.Sprint(v)
	})
}

// Stylesheet renders the settings as CSS custom properties.
func (m *Module) Stylesheet() string {
	cfg := m.ThemeConfig()
	var b strings.Builder
	b.WriteString(":root {\n")
	for _, k := range slices.Sorted(maps.Keys(cfg.Colors)) {
		fmt.Fprintf(&b, "  --color-%s: %s;\n", k, cfg.Colors[k])
	}
	for _, k := range slices.Sorted(maps.Keys(cfg.Fonts)) {
		fmt.Fprintf(&b, "  --font-%s: %s;\n", k, cfg.Fonts[k])
	}
	b.WriteString("}\n")
	b.WriteString("body.classic-theme { color: var(--color-text); font-family: var(--font-body); }\n")
	b.WriteString("body.classic-theme h1, body.classic-theme h2, body.classic-theme h3 { font-family: var(--font-heading); }\n")
	b.WriteString("body.classic-theme a { color: var(--color-primary); }\n")
	return b.String()
}
