package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every secret the Redactor finds.
const RedactPlaceholder = "***REDACTED***"

var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_key|private_key|webhook_key|credential)`)

// IsSecretKey reports whether a settings key or log attribute name looks
// like it holds a secret.
func IsSecretKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}

// Payment provider key formats that can show up in module settings and
// error messages.
var providerKeys = []*regexp.Regexp{
	regexp.MustCompile(`(sk|rk)_(live|test)_[a-zA-Z0-9]{16,}`), // Stripe secret and restricted keys
	regexp.MustCompile(`whsec_[a-zA-Z0-9]{16,}`),               // Stripe webhook secrets
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]{20,}=*`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`), // AWS access keys of S3-hosted media
}

// Redactor masks provider key formats and the literal secrets of the host
// configuration. It is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	literals []string
	replacer *strings.Replacer
}

// NewRedactor returns a Redactor knowing the provider key formats.
func NewRedactor() *Redactor {
	return &Redactor{replacer: strings.NewReplacer()}
}

// AddLiteral registers a secret to mask wherever it appears. Empty values
// are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.literals, secret) {
		return
	}
	r.literals = append(r.literals, secret)
	// Longest first, so a secret that contains another is masked whole.
	slices.SortFunc(r.literals, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	pairs := make([]string, 0, 2*len(r.literals))
	for _, l := range r.literals {
		pairs = append(pairs, l, RedactPlaceholder)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact returns s with every known secret masked.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	for _, p := range providerKeys {
		s = p.ReplaceAllLiteralString(s, RedactPlaceholder)
	}
	r.mu.RLock()
	rep := r.replacer
	r.mu.RUnlock()
	return rep.Replace(s)
}

// RedactMap returns a copy of a module configuration fit for display:
// non-empty values under secret-looking keys are masked and other strings
// go through Redact. Nested objects and lists are copied too.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && IsSecretKey(k) {
			out[k] = RedactPlaceholder
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]any:
		return r.RedactMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = r.redactValue(e)
		}
		return out
	default:
		return v
	}
}
