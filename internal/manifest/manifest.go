// Package manifest parses and validates the manifest.json file that every
// storefront module ships with.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

// FileName is the manifest file expected at the root of a module directory.
const FileName = "manifest.json"

// ErrInvalidManifest is returned when a manifest cannot be decoded.
var ErrInvalidManifest = errors.New("invalid manifest")

// Type is the module capability family declared by a manifest.
type Type string

// Known module types.
const (
	TypePayment  Type = "payment"
	TypeShipping Type = "shipping"
	TypeDesign   Type = "design"
	TypeGeneral  Type = "general"
)

// Types lists every type a manifest may declare.
var Types = []Type{TypePayment, TypeShipping, TypeDesign, TypeGeneral}

// Valid reports whether t is one of the known module types.
func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

const (
	defaultVersion  = "1.0.0"
	defaultRequires = ">=3.8"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name is safe to use as a module identifier and
// directory name: letters, digits, underscore and hyphen only.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Manifest is the parsed content of a module's manifest.json.
// A Manifest is never modified after Parse returns it.
type Manifest struct {
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Description     string          `json:"description"`
	Author          string          `json:"author"`
	Type            Type            `json:"type"`
	Dependencies    []string        `json:"dependencies"`
	Requires        string          `json:"requires_python"`
	InstallRequires []string        `json:"install_requires"`
	Templates       []string        `json:"templates"`
	StaticFiles     []string        `json:"static_files"`
	AdminConfig     bool            `json:"admin_config"`
	Migrations      bool            `json:"migrations"`
	URLs            json.RawMessage `json:"urls,omitempty"`
	Settings        map[string]any  `json:"settings"`
}

// Parse decodes raw manifest JSON and fills defaults for absent optional
// fields. Missing required fields are not an error here; see Validate.
func Parse(raw []byte) (*Manifest, error) {
	m := &Manifest{
		Version:  defaultVersion,
		Type:     TypeGeneral,
		Requires: defaultRequires,
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	m.Name = strings.TrimSpace(m.Name)
	if m.Dependencies == nil {
		m.Dependencies = []string{}
	}
	if m.InstallRequires == nil {
		m.InstallRequires = []string{}
	}
	if m.Templates == nil {
		m.Templates = []string{}
	}
	if m.StaticFiles == nil {
		m.StaticFiles = []string{}
	}
	if m.Settings == nil {
		m.Settings = map[string]any{}
	}
	return m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate reports every violated required-field rule. An empty result
// means the manifest is valid.
func (m *Manifest) Validate() []ValidationError {
	var errs []ValidationError
	if m.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "Module name is required"})
	}
	if strings.TrimSpace(m.Version) == "" {
		errs = append(errs, ValidationError{Field: "version", Message: "Module version is required"})
	}
	if strings.TrimSpace(m.Description) == "" {
		errs = append(errs, ValidationError{Field: "description", Message: "Module description is required"})
	}
	switch {
	case m.Type == "":
		errs = append(errs, ValidationError{Field: "type", Message: "Module type is required"})
	case !m.Type.Valid():
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("Unknown module type %q", m.Type),
		})
	}
	return errs
}

// Lint returns non-fatal warnings about the manifest.
func (m *Manifest) Lint() []string {
	var warnings []string
	if m.Version != "" && !semver.IsValid("v"+strings.TrimPrefix(m.Version, "v")) {
		warnings = append(warnings, fmt.Sprintf("version %q is not a semantic version", m.Version))
	}
	if m.Name != "" && !ValidName(m.Name) {
		warnings = append(warnings, fmt.Sprintf("name %q contains characters outside [A-Za-z0-9_-]", m.Name))
	}
	for _, dep := range m.Dependencies {
		if !ValidName(dep) {
			warnings = append(warnings, fmt.Sprintf("dependency %q is not a valid module name", dep))
		}
	}
	return warnings
}

// CanonicalVersion returns the version in canonical semver form without the
// leading "v", or the raw version when it does not parse.
func (m *Manifest) CanonicalVersion() string {
	v := semver.Canonical("v" + strings.TrimPrefix(m.Version, "v"))
	if v == "" {
		return m.Version
	}
	return strings.TrimPrefix(v, "v")
}

// Requirements returns a copy of the third-party packages the module needs.
func (m *Manifest) Requirements() []string {
	return slices.Clone(m.InstallRequires)
}

// DefaultSettings returns a copy of the settings block.
func (m *Manifest) DefaultSettings() map[string]any {
	return maps.Clone(m.Settings)
}
