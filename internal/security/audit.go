// Package security holds the audit trail, secret redaction and request
// throttling shared by the manager, the gateway and the CLI.
package security

import (
	"bufio"
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType names what an audit event records.
type EventType string

const (
	EventModuleUpload    EventType = "module_upload"
	EventModuleInstall   EventType = "module_install"
	EventModuleUninstall EventType = "module_uninstall"
	EventModuleEnable    EventType = "module_enable"
	EventModuleDisable   EventType = "module_disable"
	EventModulePurge     EventType = "module_purge"
	EventModuleConfig    EventType = "module_config"
	EventAuthSuccess     EventType = "auth_success"
	EventAuthFailure     EventType = "auth_failure"
	EventRateLimit       EventType = "rate_limit"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Module    string            `json:"module,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Success   bool              `json:"success"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures NewAuditLogger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per event. Nil keeps events in
	// process, handed only to OnEvent.
	Writer io.Writer

	// Redactor scrubs Detail and Metadata values before they leave the
	// process.
	Redactor *Redactor

	// OnEvent sees every event after redaction.
	OnEvent func(AuditEvent)

	// Now stamps events. Defaults to time.Now.
	Now func() time.Time
}

// AuditLogger appends lifecycle and login events to the audit trail.
// A nil *AuditLogger drops everything.
type AuditLogger struct {
	cfg AuditLoggerConfig
	enc *json.Encoder
	mu  sync.Mutex
}

// NewAuditLogger returns a logger writing to cfg.Writer.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &AuditLogger{cfg: cfg}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
	}
	return l
}

// Log stamps and records ev. The caller keeps ownership of ev.Metadata.
func (l *AuditLogger) Log(ev AuditEvent) {
	if l == nil {
		return
	}
	ev = l.scrub(ev)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(ev)
	}
	if l.enc != nil {
		_ = l.enc.Encode(ev)
	}
}

func (l *AuditLogger) scrub(ev AuditEvent) AuditEvent {
	ev.Timestamp = l.cfg.Now().UTC()
	ev.Metadata = maps.Clone(ev.Metadata)
	if r := l.cfg.Redactor; r != nil {
		ev.Detail = r.Redact(ev.Detail)
		for k, v := range ev.Metadata {
			ev.Metadata[k] = r.Redact(v)
		}
	}
	return ev
}

// AuditFilter selects events in ReadAuditLog. Zero fields match all.
type AuditFilter struct {
	Module string
	Since  time.Time
	Limit  int
}

func (f AuditFilter) match(ev AuditEvent) bool {
	if f.Module != "" && ev.Module != f.Module {
		return false
	}
	return f.Since.IsZero() || !ev.Timestamp.Before(f.Since)
}

// ReadAuditLog returns the events of an audit trail that match f, oldest
// first. With a Limit only the most recent events are kept. Lines that do
// not decode, such as one cut short by a crash, are counted in skipped.
func ReadAuditLog(r io.Reader, f AuditFilter) (events []AuditEvent, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev AuditEvent
		if json.Unmarshal(line, &ev) != nil {
			skipped++
			continue
		}
		if !f.match(ev) {
			continue
		}
		events = append(events, ev)
		if f.Limit > 0 && len(events) > f.Limit {
			events = events[1:]
		}
	}
	return events, skipped, sc.Err()
}
