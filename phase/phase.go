// Package phase drives one pipeline phase for one project: dependency
// check, checkpoint check, run, classify and persist.
package phase

import (
	"strings"

	"github.com/implicit-corpus/collector/errors"
)

// Phase is one step of the per-project pipeline
type Phase string

const (
	Import    Phase = "import"
	Compile   Phase = "compile"
	Extract   Phase = "extract"
	Normalize Phase = "normalize"
	Publish   Phase = "publish"
)

// All lists the phases in pipeline order
var All = []Phase{Import, Compile, Extract, Normalize, Publish}

var predecessors = map[Phase]Phase{
	Compile:   Import,
	Extract:   Compile,
	Normalize: Extract,
	Publish:   Normalize,
}

// Parse resolves a phase name, case-insensitively
func Parse(name string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range All {
		if p == known {
			return p, nil
		}
	}
	return "", errors.WithHintf(
		errors.NewInvalidRequestError("unknown phase %q", name),
		"phases are %s", strings.Join(Names(All), ", "))
}

// ParseAll resolves a list of phase names and returns them in pipeline order
func ParseAll(names []string) ([]Phase, error) {
	want := make(map[Phase]bool, len(names))
	for _, n := range names {
		p, err := Parse(n)
		if err != nil {
			return nil, err
		}
		want[p] = true
	}

	var phases []Phase
	for _, p := range All {
		if want[p] {
			phases = append(phases, p)
		}
	}
	return phases, nil
}

// Names returns the phase names
func Names(phases []Phase) []string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	return names
}

// Predecessor returns the phase that must succeed before p may run
func (p Phase) Predecessor() (Phase, bool) {
	pred, ok := predecessors[p]
	return pred, ok
}

func (p Phase) String() string {
	return string(p)
}
