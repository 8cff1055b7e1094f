package manifest

import "strings"

// ValidationError describes one violated rule.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Messages flattens a list of validation errors to their messages.
func Messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}

// Join renders validation errors as a single "; " separated string.
func Join(errs []ValidationError) string {
	return strings.Join(Messages(errs), "; ")
}
