package license

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports a record that fails its kind's business rules.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "license validation: " + e.Reason
}

// ValidationReason returns the first failing rule for r, or "" if the
// record is valid. Rules run in a fixed priority order: attributes present,
// type present, then kind-specific requirements.
func (s Schema) ValidationReason(r *Record) string {
	if r == nil || r.Attributes == nil {
		return "license has no attributes"
	}

	kindValue, ok := r.Attributes[AttrType]
	if !ok {
		return "license has no type attribute"
	}
	kindName, ok := kindValue.(string)
	if !ok {
		return "license type attribute is not a string"
	}

	spec, ok := s[Kind(kindName)]
	if !ok {
		return fmt.Sprintf("license type %q is not supported", kindName)
	}

	for _, key := range spec.Required {
		if _, ok := r.Attributes[key]; !ok {
			return fmt.Sprintf("license has no %s attribute", key)
		}
	}

	for _, key := range spec.DateFields {
		if !isDateValue(r.Attributes[key]) {
			return fmt.Sprintf("license %s attribute must be a date", key)
		}
	}

	required := make(map[string]bool, len(spec.Required))
	for _, key := range spec.Required {
		required[key] = true
	}
	var extraneous []string
	for _, key := range r.sortedKeys() {
		if !required[key] {
			extraneous = append(extraneous, key)
		}
	}
	if len(extraneous) > 0 {
		return fmt.Sprintf("license has extraneous attributes: %s", strings.Join(extraneous, ", "))
	}

	return ""
}

func isDateValue(v any) bool {
	_, ok := v.(time.Time)
	return ok
}

// Valid reports whether r passes every rule of its kind.
func (s Schema) Valid(r *Record) bool {
	return s.ValidationReason(r) == ""
}

// Validate returns a ValidationError carrying the first failing rule, used
// as the fail-closed gate before export.
func (s Schema) Validate(r *Record) error {
	if reason := s.ValidationReason(r); reason != "" {
		return &ValidationError{Reason: reason}
	}
	return nil
}
