package security

import (
	"crypto/rsa"
	"sync"
)

// Keyring owns the active keypair for a codec instance. Material is loaded
// lazily from the key source on first use per capability and cached;
// repeated loads are no-ops. Unlike a process-wide key slot, every codec
// carries its own keyring, so replacing material never races with an
// unrelated import or export.
type Keyring struct {
	source     KeySource
	passphrase []byte

	mu   sync.Mutex
	pub  *rsa.PublicKey
	priv *rsa.PrivateKey
}

// NewKeyring creates a keyring backed by source.
func NewKeyring(source KeySource) *Keyring {
	return &Keyring{source: source}
}

// SetPassphrase supplies the passphrase used when the source holds an
// encrypted private key. Must be called before the first private-capable
// operation.
func (k *Keyring) SetPassphrase(passphrase []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.passphrase = passphrase
}

// SetPublic replaces the cached public key. Assigning nil is a programming
// error and panics rather than deferring the failure to the next decrypt.
func (k *Keyring) SetPublic(pub *rsa.PublicKey) {
	if pub == nil {
		panic("security: SetPublic called with nil key")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = pub
}

// SetPrivate replaces the cached private key. Assigning nil panics.
func (k *Keyring) SetPrivate(priv *rsa.PrivateKey) {
	if priv == nil {
		panic("security: SetPrivate called with nil key")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.priv = priv
}

// Public returns public-capable material, loading it from the source if
// needed. A cached private key satisfies public requests without touching
// the source.
func (k *Keyring) Public() (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.pub != nil {
		return k.pub, nil
	}
	if k.priv != nil {
		return &k.priv.PublicKey, nil
	}

	pemBytes, err := k.source.PublicKey()
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(pemBytes)
	if err != nil {
		return nil, &KeySourceError{Capability: CapabilityPublic, Err: err}
	}
	k.pub = pub
	return pub, nil
}

// Private returns private-capable material, loading it from the source if
// needed.
func (k *Keyring) Private() (*rsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.priv != nil {
		return k.priv, nil
	}

	pemBytes, err := k.source.PrivateKey()
	if err != nil {
		return nil, err
	}
	priv, err := ParsePrivateKey(pemBytes, k.passphrase)
	if err != nil {
		return nil, &KeySourceError{Capability: CapabilityPrivate, Err: err}
	}
	k.priv = priv
	return priv, nil
}
