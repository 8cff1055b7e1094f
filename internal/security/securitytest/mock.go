// Package securitytest has in-memory stand-ins for the security package.
package securitytest

import (
	"slices"
	"sync"

	"github.com/flemzord/storemods/internal/security"
)

// Recorder collects audit events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []security.AuditEvent
}

func (r *Recorder) add(ev security.AuditEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of what was recorded so far.
func (r *Recorder) Events() []security.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// NewTestAuditLogger returns an AuditLogger feeding a Recorder, and the
// recorder's Events method.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	rec := new(Recorder)
	l := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: rec.add})
	return l, rec.Events
}
