package model

import "github.com/oklog/ulid/v2"

// NewID generates a unique job name. ULIDs sort by creation time, which
// keeps job listings readable in logs.
func NewID() string {
	return ulid.Make().String()
}
