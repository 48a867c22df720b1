package id

import (
	"github.com/oklog/ulid/v2"
)

// New returns a ULID string. ULIDs sort lexicographically by creation
// time, so signal and order ids double as a chronological index in the
// journal without a separate sequence column.
func New() string {
	return ulid.Make().String()
}
