package security

import "log/slog"

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook that keeps secrets
// out of the logs. The handler calls it for the message, for every record
// attribute and for attributes bound with Logger.With, descending into
// groups itself.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s != "" && a.Key != slog.MessageKey && IsSecretKey(a.Key) {
			return slog.String(a.Key, RedactPlaceholder)
		}
		if red := r.Redact(s); red != s {
			return slog.String(a.Key, red)
		}
	case slog.KindAny:
		// errors and fmt.Stringers, which may quote a DSN or a provider key
		s := a.Value.String()
		if red := r.Redact(s); red != s {
			return slog.String(a.Key, red)
		}
	}
	return a
}
