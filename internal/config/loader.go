package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the YAML file at path and returns it decoded over Default(),
// with paths made absolute relative to the file's directory.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Resolve(dir)
	return cfg, nil
}

// Parse decodes raw over Default(). Environment variables are expanded in
// scalar values only, so a comment mentioning ${VAR} is left alone and a
// substituted value cannot change the document's structure.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if doc.Kind == 0 {
		return cfg, nil
	}
	if missing := expandNode(&doc); len(missing) > 0 {
		return nil, fmt.Errorf("unresolved variables: %s", strings.Join(missing, ", "))
	}
	if err := doc.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return cfg, nil
}

// expandNode substitutes variables in every scalar under n and returns
// the names that had neither a value nor a default.
func expandNode(n *yaml.Node) []string {
	var missing []string
	if n.Kind == yaml.ScalarNode {
		v, unset := expand(n.Value)
		missing = unset
		if v != n.Value {
			n.Value = v
			// Let a plain scalar be typed by its new value, so that
			// "${PORT}" can fill an int.
			if n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
				n.Tag = ""
			}
		}
	}
	for _, c := range n.Content {
		missing = append(missing, expandNode(c)...)
	}
	return missing
}

func expand(s string) (string, []string) {
	var unset []string
	out := envPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(sub[1]); ok {
			return v
		}
		if strings.Contains(m, ":-") {
			return sub[2]
		}
		unset = append(unset, sub[1])
		return m
	})
	return out, unset
}
