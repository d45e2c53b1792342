package vocab

import (
	"errors"
	"fmt"

	"rd3/pkg/domain"
)

// UnknownError reports a partner value with no canonical code.
type UnknownError struct {
	// Table is the lookup the value should resolve against, if any.
	Table domain.Table
	// Column is the staging or file column the value came from.
	Column string
	// Field is the short human name used in error strings ("ERN", "tissue").
	Field string
	Value string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown %s %q (%s)", e.Field, e.Value, e.Column)
}

// Label is the token recorded on staging rows.
func (e *UnknownError) Label() string { return "unknown " + e.Field }

// Open reports whether the lookup may be extended with the value.
func (e *UnknownError) Open() bool { return e.Table.IsOpenLookup() }

// AsUnknown unwraps err into an *UnknownError.
func AsUnknown(err error) (*UnknownError, bool) {
	var ue *UnknownError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

func unknown(table domain.Table, column, field, value string) error {
	return &UnknownError{Table: table, Column: column, Field: field, Value: value}
}
