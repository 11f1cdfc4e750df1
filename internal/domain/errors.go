package domain

import (
	"errors"
	"fmt"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// CodecError reports a byte field that is not valid marker+hex.
type CodecError struct {
	Payload string
	Err     error
}

func (e CodecError) Error() string {
	if e.Err == nil {
		return "malformed byte field"
	}
	return fmt.Sprintf("malformed byte field: %v", e.Err)
}

func (e CodecError) Unwrap() error { return e.Err }

func (e CodecError) Is(target error) bool {
	_, ok := target.(CodecError)
	if ok {
		return true
	}
	_, ok = target.(*CodecError)
	return ok
}

// ValidationError reports draft or request input that cannot be submitted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

// AuthorizationError reports an action the active account may not take.
type AuthorizationError struct {
	Action string
	Reason string
}

func (e AuthorizationError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("not authorized: %s", e.Reason)
	}
	return fmt.Sprintf("not authorized to %s: %s", e.Action, e.Reason)
}

func (e AuthorizationError) Is(target error) bool {
	_, ok := target.(AuthorizationError)
	if ok {
		return true
	}
	_, ok = target.(*AuthorizationError)
	return ok
}

// TransactionError reports a ledger call that was rejected, reverted or timed out.
type TransactionError struct {
	Op     string
	Reason string
	Err    error
}

func (e TransactionError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if msg == "" {
		msg = "transaction failed"
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s failed: %s", e.Op, msg)
}

func (e TransactionError) Unwrap() error { return e.Err }

func (e TransactionError) Is(target error) bool {
	_, ok := target.(TransactionError)
	if ok {
		return true
	}
	_, ok = target.(*TransactionError)
	return ok
}

// StaleReadDiscarded marks a read superseded by a newer one. It is never shown to users.
type StaleReadDiscarded struct {
	Seq uint64
}

func (e StaleReadDiscarded) Error() string {
	return fmt.Sprintf("stale read %d discarded", e.Seq)
}

func (e StaleReadDiscarded) Is(target error) bool {
	_, ok := target.(StaleReadDiscarded)
	if ok {
		return true
	}
	_, ok = target.(*StaleReadDiscarded)
	return ok
}

var (
	ErrNotFound      = NotFoundError{}
	ErrCodec         = CodecError{}
	ErrValidation    = ValidationError{}
	ErrAuthorization = AuthorizationError{}
	ErrTransaction   = TransactionError{}
	ErrStaleRead     = StaleReadDiscarded{}

	ErrTimeout = errors.New("timed out waiting for confirmation")
)
