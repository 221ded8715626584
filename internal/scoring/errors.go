package scoring

import (
	"errors"
	"sort"
	"strings"
)

// ErrMalformedSnapshot is returned when the records handed to the readiness
// validator are internally inconsistent. It is never used for a system that
// is merely incomplete.
var ErrMalformedSnapshot = errors.New("malformed readiness snapshot")

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns a ValidationError holding a single field message.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add records a message for field. The first message per field wins.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	if _, ok := v.Fields[field]; !ok {
		v.Fields[field] = message
	}
}

// Merge copies the fields of other into v.
func (v *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for f, m := range other.Fields {
		v.Add(f, m)
	}
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

// ErrOrNil returns v as an error when it holds at least one field, nil otherwise.
func (v *ValidationError) ErrOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
