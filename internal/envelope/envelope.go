// Package envelope implements the textual boundary framing used to move
// encrypted license blobs through text-only channels (environment
// variables, config files, copy-paste). Framing is purely syntactic and
// carries no cryptographic meaning.
package envelope

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	beginPrefix = "-----BEGIN "
	endPrefix   = "-----END "
	markerTail  = "-----"

	// lineWidth is the column at which the base64 payload is wrapped,
	// matching the conventional PEM layout.
	lineWidth = 64
)

// FramingError reports a malformed or missing boundary frame.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "license framing: " + e.Reason
}

// ValidateLabel rejects labels that would be ambiguous inside the
// begin/end markers.
func ValidateLabel(label string) error {
	if label == "" {
		return &FramingError{Reason: "label must not be empty"}
	}
	if strings.Contains(label, "--") {
		return &FramingError{Reason: "label must not contain hyphen runs"}
	}
	if strings.HasPrefix(label, " ") || strings.HasSuffix(label, " ") {
		return &FramingError{Reason: "label must not have leading or trailing spaces"}
	}
	for _, r := range label {
		if r < 0x20 || r > 0x7e {
			return &FramingError{Reason: fmt.Sprintf("label contains non-printable character %q", r)}
		}
	}
	return nil
}

// Wrap frames data between begin and end markers that both embed label.
// The payload is base64-encoded and wrapped at 64 columns so the result
// survives any text transport.
func Wrap(data []byte, label string) (string, error) {
	if err := ValidateLabel(label); err != nil {
		return "", err
	}

	encoded := base64.StdEncoding.EncodeToString(data)

	var b strings.Builder
	b.WriteString(beginPrefix)
	b.WriteString(label)
	b.WriteString(markerTail)
	b.WriteByte('\n')
	for len(encoded) > 0 {
		n := lineWidth
		if len(encoded) < n {
			n = len(encoded)
		}
		b.WriteString(encoded[:n])
		b.WriteByte('\n')
		encoded = encoded[n:]
	}
	b.WriteString(endPrefix)
	b.WriteString(label)
	b.WriteString(markerTail)
	b.WriteByte('\n')

	return b.String(), nil
}

// Unwrap locates the begin/end markers in text and returns the decoded
// interior payload. The label is informational: it is not needed by the
// caller, but the begin and end labels must agree with each other.
func Unwrap(text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &FramingError{Reason: "license text is empty"}
	}

	lines := strings.Split(text, "\n")

	beginIdx, endIdx := -1, -1
	var beginLabel, endLabel string
	for i, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case beginIdx < 0 && strings.HasPrefix(line, beginPrefix) && strings.HasSuffix(line, markerTail):
			beginIdx = i
			beginLabel = strings.TrimSuffix(strings.TrimPrefix(line, beginPrefix), markerTail)
		case beginIdx >= 0 && endIdx < 0 && strings.HasPrefix(line, endPrefix) && strings.HasSuffix(line, markerTail):
			endIdx = i
			endLabel = strings.TrimSuffix(strings.TrimPrefix(line, endPrefix), markerTail)
		}
	}

	if beginIdx < 0 {
		return nil, &FramingError{Reason: "begin marker not found"}
	}
	if endIdx < 0 {
		return nil, &FramingError{Reason: "end marker not found"}
	}
	if beginLabel != endLabel {
		return nil, &FramingError{Reason: fmt.Sprintf("begin label %q does not match end label %q", beginLabel, endLabel)}
	}

	var encoded strings.Builder
	for _, line := range lines[beginIdx+1 : endIdx] {
		encoded.WriteString(strings.TrimSpace(line))
	}

	data, err := base64.StdEncoding.DecodeString(encoded.String())
	if err != nil {
		return nil, &FramingError{Reason: "payload is not valid base64"}
	}
	return data, nil
}
