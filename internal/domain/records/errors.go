package records

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("record not found")

// CodeUnknownCollection is the StoreError code for a collection that is not
// exposed to feature views.
const CodeUnknownCollection = "unknown_collection"

// ValidationError means the backend (or request validation) rejected the
// shape of a record.
type ValidationError struct {
	Collection string
	Message    string
	Fields     map[string]string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Collection != "" {
		b.WriteString(" on ")
		b.WriteString(e.Collection)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for key := range e.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+": "+e.Fields[key])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// StoreError is a transport or backend failure.
type StoreError struct {
	Op         string
	Collection string
	Status     int
	Code       string
	Err        error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Collection)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func IsStoreError(err error) bool {
	var serr *StoreError
	return errors.As(err, &serr)
}
