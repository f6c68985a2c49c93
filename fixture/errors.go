package fixture

import (
	"errors"
	"fmt"
)

var ErrUnknownSchema = errors.New("unrecognised cassette schema")

// SchemaError reports an interaction that lacks a field required by the
// conversion. Index is -1 for cassette-level fields.
type SchemaError struct {
	Path  string
	Index int
	Field string
}

func (e *SchemaError) Error() string {
	where := "cassette"
	if e.Index >= 0 {
		where = fmt.Sprintf("interaction %d", e.Index)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: missing required field %q", e.Path, where, e.Field)
	}
	return fmt.Sprintf("%s: missing required field %q", where, e.Field)
}

// FixtureParseError reports a fixture whose top-level document is not valid
// structured data.
type FixtureParseError struct {
	Path string
	Err  error
}

func (e *FixtureParseError) Error() string {
	return fmt.Sprintf("failed to parse fixture %s: %v", e.Path, e.Err)
}

func (e *FixtureParseError) Unwrap() error {
	return e.Err
}
