package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Step is one cleanup action of an uninstall or purge.
type Step struct {
	Name string
	Err  error
}

// Report lists what an uninstall or purge did. Steps never abort the
// sequence; their failures surface as warnings.
type Report struct {
	Module    string
	Operation string
	Steps     []Step
	Removed   []string
}

func newReport(module, op string) *Report {
	return &Report{Module: module, Operation: op}
}

func (r *Report) step(name string, err error) {
	r.Steps = append(r.Steps, Step{Name: name, Err: err})
}

func (r *Report) removed(paths ...string) {
	r.Removed = append(r.Removed, paths...)
}

// Warnings returns the errors of failed steps.
func (r *Report) Warnings() []error {
	var out []error
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return out
}

// HasWarnings reports whether any step failed.
func (r *Report) HasWarnings() bool {
	return len(r.Warnings()) > 0
}

// Err joins all step failures, or returns nil.
func (r *Report) Err() error {
	return errors.Join(r.Warnings()...)
}

// Summary is a one-line human readable outcome.
func (r *Report) Summary() string {
	verb := "uninstalled"
	if r.Operation == "purge" {
		verb = "purged"
	}
	w := r.Warnings()
	if len(w) == 0 {
		return fmt.Sprintf("Module %s %s", r.Module, verb)
	}
	msgs := make([]string, len(w))
	for i, e := range w {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("Module %s %s with warnings: %s", r.Module, verb, strings.Join(msgs, "; "))
}

// MarshalJSON renders the report for API responses.
func (r *Report) MarshalJSON() ([]byte, error) {
	warnings := []string{}
	for _, w := range r.Warnings() {
		warnings = append(warnings, w.Error())
	}
	removed := r.Removed
	if removed == nil {
		removed = []string{}
	}
	return json.Marshal(struct {
		Module    string   `json:"module"`
		Operation string   `json:"operation"`
		Removed   []string `json:"removed"`
		Warnings  []string `json:"warnings"`
	}{r.Module, r.Operation, removed, warnings})
}
