package security

import (
	"os"
	"strings"
)

// Payment provider and gateway credentials travel under these prefixes.
var credentialPrefixes = []string{
	"STRIPE_",
	"PAYPAL_",
	"PAYU_",
	"PRZELEWY24_",
	"STOREMODS_AUTH_",
	"STOREMODS_DB_",
}

// Any variable whose name contains one of these words is dropped.
var credentialWords = []string{
	"SECRET",
	"PASSWORD",
	"PASSWD",
	"PRIVATE_KEY",
	"API_KEY",
	"DATABASE_URL",
	"SESSION_TOKEN",
}

// SanitizedEnv is the environment handed to the go toolchain when it
// fetches dependencies or builds plugins: os.Environ without variables
// that look like credentials, with every secret of eight or more bytes
// replaced by RedactPlaceholder in what remains.
func SanitizedEnv(secrets ...string) []string {
	var out []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || credentialVar(name) {
			continue
		}
		for _, s := range secrets {
			if len(s) >= 8 {
				kv = strings.ReplaceAll(kv, s, RedactPlaceholder)
			}
		}
		out = append(out, kv)
	}
	return out
}

func credentialVar(name string) bool {
	name = strings.ToUpper(name)
	for _, p := range credentialPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	for _, w := range credentialWords {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}
