// Package security provides the key management and hybrid encryption layer
// for the license codec. Licenses are issued with the RSA private key and
// verified with the corresponding public key, so client builds only ever
// ship public material.
package security

import (
	"fmt"
	"os"
)

// Capability names which half of the keypair an operation needs.
type Capability string

const (
	// CapabilityPublic is sufficient to decrypt and verify licenses.
	CapabilityPublic Capability = "public"
	// CapabilityPrivate is required to issue licenses.
	CapabilityPrivate Capability = "private"
)

// KeySourceError reports key material that is missing, unreadable, or
// malformed for the requested capability.
type KeySourceError struct {
	Capability Capability
	Err        error
}

func (e *KeySourceError) Error() string {
	return fmt.Sprintf("key source (%s): %v", e.Capability, e.Err)
}

func (e *KeySourceError) Unwrap() error {
	return e.Err
}

// KeySource provides raw PEM key material per capability. The codec treats
// it as an opaque byte-returning collaborator; implementations decide where
// the material lives.
type KeySource interface {
	PublicKey() ([]byte, error)
	PrivateKey() ([]byte, error)
}

// FileKeySource reads PEM key material from two fixed file locations.
type FileKeySource struct {
	PublicKeyPath  string
	PrivateKeyPath string
}

// PublicKey returns the contents of the public key file.
func (s *FileKeySource) PublicKey() ([]byte, error) {
	data, err := os.ReadFile(s.PublicKeyPath)
	if err != nil {
		return nil, &KeySourceError{Capability: CapabilityPublic, Err: err}
	}
	return data, nil
}

// PrivateKey returns the contents of the private key file.
func (s *FileKeySource) PrivateKey() ([]byte, error) {
	data, err := os.ReadFile(s.PrivateKeyPath)
	if err != nil {
		return nil, &KeySourceError{Capability: CapabilityPrivate, Err: err}
	}
	return data, nil
}

// StaticKeySource serves key material from memory. Used by tests and by
// builds that embed the public key.
type StaticKeySource struct {
	Public  []byte
	Private []byte
}

// PublicKey returns the embedded public key material.
func (s *StaticKeySource) PublicKey() ([]byte, error) {
	if len(s.Public) == 0 {
		return nil, &KeySourceError{Capability: CapabilityPublic, Err: os.ErrNotExist}
	}
	return s.Public, nil
}

// PrivateKey returns the embedded private key material.
func (s *StaticKeySource) PrivateKey() ([]byte, error) {
	if len(s.Private) == 0 {
		return nil, &KeySourceError{Capability: CapabilityPrivate, Err: os.ErrNotExist}
	}
	return s.Private, nil
}
