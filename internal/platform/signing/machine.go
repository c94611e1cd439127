// Package signing holds the pieces shared by every signable clinical
// document: the status machines, the canonical signature payload, and the
// signer that binds frozen content to a tamper-evident hash plus an audit
// entry.
package signing

import (
	"github.com/clinika/clinika/internal/platform/apperr"
)

// Machine is a fixed adjacency table over document statuses. Transitions
// not listed are invalid and rejected naming the offending pair.
type Machine struct {
	name      string
	adjacency map[string][]string
}

func NewMachine(name string, adjacency map[string][]string) Machine {
	return Machine{name: name, adjacency: adjacency}
}

// Can reports whether from -> to is a listed transition.
func (m Machine) Can(from, to string) bool {
	for _, next := range m.adjacency[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate rejects an unlisted transition with a validation error that
// names the (from, to) pair.
func (m Machine) Validate(from, to string) error {
	if !m.Can(from, to) {
		return apperr.Newf(apperr.KindBadRequest,
			"%s: invalid status transition from %s to %s", m.name, from, to)
	}
	return nil
}

// Terminal reports whether no transition leaves the status.
func (m Machine) Terminal(status string) bool {
	return len(m.adjacency[status]) == 0
}

// MergeContent shallow-merges patch into existing: new keys overwrite,
// absent keys are preserved, so a partial save never drops previously
// entered sections. Neither input map is mutated.
func MergeContent(existing, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
