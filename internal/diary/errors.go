package diary

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyDraft   = errors.New("draft has neither title nor content")
	ErrNotSignedIn  = errors.New("no identity")
	ErrUnknownField = errors.New("unknown draft field")
	ErrFieldType    = errors.New("wrong value type for draft field")
	ErrInvalidDate  = errors.New("invalid draft date")
	ErrInvalidTab   = errors.New("invalid tab")
	ErrNotFound     = errors.New("entry not in list")
	ErrClosed       = errors.New("workspace closed")
)

// StoreError is a create or delete the entry store refused.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s entry: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// UserMessage is the alert text shown for err.
func UserMessage(err error) string {
	var se *StoreError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyDraft):
		return "Please write a title or some content first!"
	case errors.Is(err, ErrNotSignedIn):
		return "You need to be logged in to save."
	case errors.Is(err, ErrInvalidDate):
		return "Please pick a valid date."
	case errors.As(err, &se) && se.Op == "delete":
		return "Could not delete entry."
	case errors.As(err, &se):
		return "Error saving: " + se.Err.Error()
	case errors.Is(err, ErrClosed):
		return "This session has ended. Please reload."
	}
	return err.Error()
}
