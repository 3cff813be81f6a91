package license

import (
	"sort"
	"strings"
	"time"
)

// Attribute keys recognized by the shipped schema.
const (
	AttrType      = "type"
	AttrExpiresAt = "expires_at"
)

// Kind is a closed enumeration of license kinds. Adding a kind means adding
// a constant and a schema entry; there is no string-matched dispatch beyond
// the schema lookup.
type Kind string

// KindTrial is the only kind currently issued: a type tag plus an
// expiration date.
const KindTrial Kind = "trial"

// KindSpec describes the exact attribute set a kind requires and which of
// those attributes carry date values.
type KindSpec struct {
	Required   []string
	DateFields []string
}

// Schema maps each supported kind to its attribute requirements. The
// attribute allow-list used at construction time is derived from it, so
// schema evolution is a configuration change rather than a code edit in
// the codec.
type Schema map[Kind]KindSpec

// DefaultSchema returns the shipped schema: trial licenses with exactly a
// type and an expiration date.
func DefaultSchema() Schema {
	return Schema{
		KindTrial: {
			Required:   []string{AttrType, AttrExpiresAt},
			DateFields: []string{AttrExpiresAt},
		},
	}
}

// allowedKeys is the union of every kind's required attributes.
func (s Schema) allowedKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, spec := range s {
		for _, k := range spec.Required {
			keys[k] = true
		}
	}
	return keys
}

// isDateField reports whether key is date-typed in any kind.
func (s Schema) isDateField(key string) bool {
	for _, spec := range s {
		for _, k := range spec.DateFields {
			if k == key {
				return true
			}
		}
	}
	return false
}

// Record is a constructed license: a string-keyed attribute mapping whose
// keys are restricted to the schema allow-list. Construction filters and
// normalizes; it does not validate. Values are strings, except date-typed
// attributes which are time.Time at date precision.
type Record struct {
	Attributes map[string]any
}

// NewRecord builds a record from raw attributes. Keys are trimmed and
// lowercased; keys outside the schema allow-list are silently dropped.
func NewRecord(raw map[string]any, schema Schema) *Record {
	allowed := schema.allowedKeys()
	attrs := make(map[string]any, len(raw))
	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		if allowed[key] {
			attrs[key] = value
		}
	}
	return &Record{Attributes: attrs}
}

// Kind returns the record's type attribute, if present and a string.
func (r *Record) Kind() (Kind, bool) {
	v, ok := r.Attributes[AttrType]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return Kind(s), true
}

// ExpiresAt returns the expiration date, if present and a date value.
func (r *Record) ExpiresAt() (time.Time, bool) {
	v, ok := r.Attributes[AttrExpiresAt]
	if !ok {
		return time.Time{}, false
	}
	d, ok := v.(time.Time)
	return d, ok
}

// Expired reports whether the license has passed its expiration date.
// Comparison is at date precision and inclusive: a license expires on its
// expiration date, not the day after. A record without an expiration date
// is never expired.
func (r *Record) Expired(now time.Time) bool {
	exp, ok := r.ExpiresAt()
	if !ok {
		return false
	}
	return !truncateToDate(now).Before(truncateToDate(exp))
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sortedKeys returns the record's attribute keys in lexical order, used for
// stable error messages and canonical serialization.
func (r *Record) sortedKeys() []string {
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
