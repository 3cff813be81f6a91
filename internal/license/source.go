package license

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotConfigured reports that no license text is present at the source.
// Absence is a reportable condition, not a crash.
var ErrNotConfigured = errors.New("no license configured")

// Source yields the opaque license text from wherever the deployment put
// it. The codec never reads the environment directly.
type Source interface {
	Fetch() (string, error)
}

// EnvSource reads the license text from an environment variable.
type EnvSource struct {
	Var string
}

// Fetch returns the variable's value, or ErrNotConfigured when unset or
// empty.
func (s EnvSource) Fetch() (string, error) {
	value := os.Getenv(s.Var)
	if value == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotConfigured, s.Var)
	}
	return value, nil
}

// FileSource reads the license text from a file.
type FileSource struct {
	Path string
}

// Fetch returns the file contents, or ErrNotConfigured when the file does
// not exist.
func (s FileSource) Fetch() (string, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s does not exist", ErrNotConfigured, s.Path)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StaticSource serves a fixed license text. Used by tests and by the HTTP
// verify path, which already holds the text.
type StaticSource struct {
	Text string
}

// Fetch returns the fixed text, or ErrNotConfigured when empty.
func (s StaticSource) Fetch() (string, error) {
	if s.Text == "" {
		return "", ErrNotConfigured
	}
	return s.Text, nil
}
