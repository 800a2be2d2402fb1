package report

import (
	"strings"

	"github.com/implicit-corpus/collector/errors"
)

// Status is the outcome recorded for one (project, phase)
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusError   Status = "ERROR"
	// StatusUncommitted marks a publish whose transaction was rolled back on
	// purpose. It is not a done state.
	StatusUncommitted Status = "UNCOMMITTED"
)

// Statuses lists every known status in display order
var Statuses = []Status{StatusSuccess, StatusPartial, StatusError, StatusUncommitted}

// ParseStatus parses the first whitespace-separated token of a status line
func ParseStatus(line string) (Status, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", errors.Wrap(errors.ErrMalformedReport, "empty status line")
	}
	s := Status(strings.ToUpper(fields[0]))
	if !s.Valid() {
		return "", errors.Wrapf(errors.ErrMalformedReport, "unknown status %q", fields[0])
	}
	return s, nil
}

// Valid reports whether s is a known status keyword
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusError, StatusUncommitted:
		return true
	}
	return false
}

// Done reports whether a phase with this status is skipped on resume
func (s Status) Done(partialCountsAsDone bool) bool {
	return s == StatusSuccess || (s == StatusPartial && partialCountsAsDone)
}

// Satisfies reports whether this status lets the successor phase run
func (s Status) Satisfies(partialSatisfiesDependency bool) bool {
	return s == StatusSuccess || (s == StatusPartial && partialSatisfiesDependency)
}

func (s Status) String() string {
	return string(s)
}
