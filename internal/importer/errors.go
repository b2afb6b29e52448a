package importer

import (
	"fmt"
	"strings"
)

// MalformedPayloadError reports a payload that cannot be imported at all.
type MalformedPayloadError struct {
	Source string
	Key    string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	switch {
	case e.Err != nil && e.Key != "":
		return fmt.Sprintf("%s: invalid JSON structure for %q: %v", e.Source, e.Key, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: invalid JSON: %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("%s: invalid JSON structure: %q key not found or empty", e.Source, e.Key)
	}
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// RecordValidationError reports a record dropped for missing required fields.
type RecordValidationError struct {
	Source  string
	Kind    string
	Record  string
	Missing []string
}

func (e *RecordValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s %s: missing %s", e.Source, e.Kind, e.Record, strings.Join(e.Missing, ", "))
}
