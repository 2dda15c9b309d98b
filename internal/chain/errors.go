package chain

import (
	"errors"
	"fmt"
)

// Kinds of chain violations, matched with errors.Is.
var (
	ErrUnpostedPredecessor = errors.New("predecessor statement is not posted")
	ErrBalanceMismatch     = errors.New("ending balance does not match lines")
	ErrBrokenLink          = errors.New("starting balance does not match predecessor")
	ErrDuplicateDate       = errors.New("duplicate statement date")
)

// Violation describes a single balance chain violation.
type Violation struct {
	Kind        error
	Statement   string // statement name, or ID when unnamed
	Description string
}

func (e Violation) Error() string {
	return fmt.Sprintf("%v [%s]: %s", e.Kind, e.Statement, e.Description)
}

func (e Violation) Unwrap() error { return e.Kind }
