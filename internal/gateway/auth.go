package gateway

import (
	"crypto/subtle"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/storemods/internal/manager"
	"github.com/flemzord/storemods/internal/security"
)

// tokenActor is the audit actor for requests authenticated by bearer token.
const tokenActor = "api-token"

// authMiddleware validates Bearer token or Basic auth credentials using
// constant-time comparison and tags the request context with the actor
// for the audit trail. Clients with too many recent failures are turned
// away before their credentials are looked at.
func authMiddleware(cfg AuthConfig, rl *security.RateLimiter, auditLogger *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddr(r)
			if wait := rl.Wait(security.KindAuth, client); wait > 0 {
				auditLogger.Log(security.AuditEvent{
					Type:     security.EventRateLimit,
					Detail:   security.KindAuth,
					Metadata: map[string]string{"remote_addr": r.RemoteAddr, "path": r.URL.Path},
				})
				tooManyRequests(w, wait)
				return
			}
			fail := func(detail string) {
				emitAuthEvent(auditLogger, security.EventAuthFailure, r, "", detail)
				_, _ = rl.Allow(security.KindAuth, client)
				writeError(w, http.StatusUnauthorized, "unauthorized")
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				fail("missing authorization header")
				return
			}

			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(after, cfg.BearerToken) {
					emitAuthEvent(auditLogger, security.EventAuthSuccess, r, tokenActor, "bearer")
					next.ServeHTTP(w, r.WithContext(manager.WithActor(r.Context(), tokenActor)))
					return
				}
			}

			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
					emitAuthEvent(auditLogger, security.EventAuthSuccess, r, user, "basic")
					next.ServeHTTP(w, r.WithContext(manager.WithActor(r.Context(), user)))
					return
				}
			}

			fail("invalid credentials")
		})
	}
}

// clientAddr is the host part of the request's remote address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func tooManyRequests(w http.ResponseWriter, wait time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	writeError(w, http.StatusTooManyRequests, "too many requests")
}

// rateLimit throttles each authenticated actor separately and tells the
// client when to retry.
func rateLimit(rl *security.RateLimiter, kind string, auditLogger *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := manager.ActorFromContext(r.Context())
			wait, err := rl.Allow(kind, actor)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}
			auditLogger.Log(security.AuditEvent{
				Type:     security.EventRateLimit,
				Actor:    actor,
				Detail:   kind,
				Metadata: map[string]string{"path": r.URL.Path},
			})
			tooManyRequests(w, wait)
		})
	}
}

// emitAuthEvent logs an auth event to the audit logger if available.
func emitAuthEvent(logger *security.AuditLogger, eventType security.EventType, r *http.Request, actor, detail string) {
	logger.Log(security.AuditEvent{
		Type:    eventType,
		Actor:   actor,
		Success: eventType == security.EventAuthSuccess,
		Detail:  detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
