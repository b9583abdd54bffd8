package conversation

import (
	"errors"
	"fmt"
)

// Kind classifies flow failures for the single translation point in Router.
type Kind int

const (
	// KindUnknown marks an error no step classified.
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindPersistence
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindPersistence:
		return "persistence"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// Error is returned by flow steps. For validation failures Reprompt carries
// the reply that asks for the same input again.
type Error struct {
	Kind     Kind
	Op       string
	Err      error
	Reprompt Reply
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	errBadDate       = errors.New("malformed date")
	errEmpty         = errors.New("empty input")
	errTooLong       = errors.New("input too long")
	errUnknownSubj   = errors.New("unknown subject")
	errExpectSubject = errors.New("subject button expected")
	errNotAdmin      = errors.New("not an admin")
)

func invalid(op string, err error, reprompt Reply) error {
	return &Error{Kind: KindValidation, Op: op, Err: err, Reprompt: reprompt}
}

func denied(op string) error {
	return &Error{Kind: KindAuthorization, Op: op, Err: errNotAdmin}
}

func persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

func delivery(op string, err error) error {
	return &Error{Kind: KindDelivery, Op: op, Err: err}
}

// KindOf reports the Kind of err; errors not built by a step are KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
