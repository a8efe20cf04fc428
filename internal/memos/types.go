package memos

import (
	"errors"
	"fmt"
)

// ErrNotFound is the cause wrapped by every store lookup miss.
var ErrNotFound = errors.New("memo not found")

// Memo is a stored note.
type Memo struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Contents string `json:"contents"`
}

// IDPolicy selects how the store assigns identifiers to new memos.
type IDPolicy string

const (
	// PolicySequence hands out ids from a counter that only moves forward.
	PolicySequence IDPolicy = "sequence"

	// PolicyMaxPlusOne recomputes max(existing ids)+1 on every insert, so the
	// highest id is handed out again once it has been deleted.
	PolicyMaxPlusOne IDPolicy = "max_plus_one"
)

// ParseIDPolicy parses a policy name. Empty selects PolicySequence.
func ParseIDPolicy(s string) (IDPolicy, error) {
	switch IDPolicy(s) {
	case "", PolicySequence:
		return PolicySequence, nil
	case PolicyMaxPlusOne:
		return PolicyMaxPlusOne, nil
	default:
		return "", fmt.Errorf("unknown id policy %q (want %q or %q)", s, PolicySequence, PolicyMaxPlusOne)
	}
}
