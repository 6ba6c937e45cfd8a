package storage

import (
	"fmt"
	"slices"

	"github.com/papercomputeco/frames/pkg/frame"
)

// Validate checks the query bounds and filters.
func (q MemberQuery) Validate() error {
	if q.Limit <= 0 || q.Limit > MaxMemberLimit {
		return fmt.Errorf("member query limit %d out of range 1..%d", q.Limit, MaxMemberLimit)
	}
	for _, a := range q.IncludeAgents {
		if slices.Contains(q.ExcludeAgents, a) {
			return fmt.Errorf("agent %q is both included and excluded", a)
		}
	}
	return nil
}

// Admits reports whether the query's agent filters admit agentID.
func (q MemberQuery) Admits(agentID string) bool {
	if len(q.IncludeAgents) > 0 && !slices.Contains(q.IncludeAgents, agentID) {
		return false
	}
	return !slices.Contains(q.ExcludeAgents, agentID)
}

// VerifyFrame returns IntegrityError when f's ID does not match its contents.
func VerifyFrame(f *frame.Frame) error {
	if computed, ok := f.Verify(); !ok {
		return IntegrityError{FrameID: f.ID, Computed: computed}
	}
	return nil
}
