package eventlog

import "github.com/duskfall/eventlog/pkg/idgen"

// newCommitID generates a time-sortable, globally-unique commit_id. A
// ULID gives commit_id both the uniqueness invariant (I1) and a
// monotonic-by-time ordering useful for debugging, independent of the
// store-assigned commit_number.
func newCommitID() string {
	return idgen.MustGenerateSortableID()
}
