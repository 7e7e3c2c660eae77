// Package idgen generates time-sortable globally-unique ids shared by
// pkg/eventlog's commit_id assignment.
package idgen

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// MustGenerateSortableID returns a new ULID string. It panics only if
// the system clock is so far in the future that ULID's millisecond
// timestamp overflows, which ulid.New reports as an error.
func MustGenerateSortableID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}
