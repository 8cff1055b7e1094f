package gateway

import (
	"time"

	"github.com/flemzord/storemods/internal/security"
)

// Config is the gateway section of the host configuration.
type Config struct {
	Bind              string                   `yaml:"bind"`
	Auth              AuthConfig               `yaml:"auth"`
	RateLimit         security.RateLimitConfig `yaml:"rate_limit"`
	ReadHeaderTimeout time.Duration            `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration            `yaml:"read_timeout"`
	WriteTimeout      time.Duration            `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration            `yaml:"shutdown_timeout"`

	// MaxUploadSize comes from upload.max_size, not from this section.
	MaxUploadSize int64 `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	c.ReadHeaderTimeout = orDuration(c.ReadHeaderTimeout, 10*time.Second)
	c.ReadTimeout = orDuration(c.ReadTimeout, 30*time.Second)
	c.WriteTimeout = orDuration(c.WriteTimeout, time.Minute)
	c.ShutdownTimeout = orDuration(c.ShutdownTimeout, 5*time.Second)
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = 50 << 20
	}
	return c
}

func orDuration(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// AuthConfig holds the admin credentials. Either a bearer token or a
// basic-auth pair, or both, may be set.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// Enabled reports whether any admin credential is set. Without one the
// admin API is not mounted at all.
func (a AuthConfig) Enabled() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
