package main

import (
	"context"
	"strconv"
)

// CounterDocID is the reserved identifier of the document holding the
// highest identifier ever handed out for a collection. It is never listed.
const CounterDocID = 0

// CounterDoc is the persisted form of a collection counter.
type CounterDoc struct {
	HighestObjectID int `json:"highest_object_id"`
}

// IDAllocator hands out identifiers strictly greater than any previously
// returned one, starting at 1, even across concurrent callers and
// processes sharing the same store.
type IDAllocator interface {
	Allocate(ctx context.Context) (int, error)
}

// ParseID converts the string form of a record identifier. The counter
// document identifier and negative values are rejected.
func ParseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= CounterDocID {
		return 0, ErrInvalidID
	}
	return id, nil
}

// FormatID returns the string form of a record identifier.
func FormatID(id int) string {
	return strconv.Itoa(id)
}
