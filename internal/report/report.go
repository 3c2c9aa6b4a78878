// Package report records what a bootstrap run did so the operator can
// audit it afterwards.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Step is one recorded action of a run.
type Step struct {
	Name   string
	Detail string
	OK     bool
}

// Report accumulates steps for one bootstrap run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Steps     []Step
}

// New starts a report with a fresh run ID.
func New() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// Add records a step outcome.
func (r *Report) Add(name, detail string, ok bool) {
	r.Steps = append(r.Steps, Step{Name: name, Detail: detail, OK: ok})
}

// Failed reports whether any recorded step failed.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return true
		}
	}
	return false
}

// WriteFile appends the report to a text file under dir, named after the
// run ID, and returns the file path.
func (r *Report) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("setup-%s.txt", sanitize(r.RunID)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("opening report file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "run %s started %s\n", r.RunID, r.StartedAt.Format(time.RFC3339))
	for _, s := range r.Steps {
		status := "ok"
		if !s.OK {
			status = "FAILED"
		}
		if s.Detail != "" {
			fmt.Fprintf(f, "%-8s %s: %s\n", status, s.Name, s.Detail)
		} else {
			fmt.Fprintf(f, "%-8s %s\n", status, s.Name)
		}
	}
	fmt.Fprintln(f)

	return path, nil
}

// sanitize keeps report filenames to alphanumerics, dashes and
// underscores.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
