package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// PEM block types accepted for key material.
const (
	pemTypePublicKey     = "PUBLIC KEY"
	pemTypeRSAPublicKey  = "RSA PUBLIC KEY"
	pemTypePrivateKey    = "PRIVATE KEY"
	pemTypeRSAPrivateKey = "RSA PRIVATE KEY"

	// pemTypeEncryptedPrivateKey seals PKCS#1 DER under a passphrase:
	// scrypt key derivation followed by AES-256-GCM.
	pemTypeEncryptedPrivateKey = "ENCRYPTED LICENSE PRIVATE KEY"
)

// scrypt parameters for passphrase-protected private keys (OWASP minimums).
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32

	wrapSaltSize  = 32
	wrapNonceSize = 12
)

// ParsePublicKey decodes an RSA public key from PKIX or PKCS#1 PEM.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found in public key material")
	}

	switch block.Type {
	case pemTypePublicKey:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKIX public key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is %T, want RSA", key)
		}
		return rsaKey, nil
	case pemTypeRSAPublicKey:
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported public key PEM type %q", block.Type)
	}
}

// ParsePrivateKey decodes an RSA private key from PKCS#1, PKCS#8, or
// passphrase-encrypted PEM. The passphrase is only consulted for the
// encrypted form.
func ParsePrivateKey(pemBytes, passphrase []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found in private key material")
	}

	switch block.Type {
	case pemTypeRSAPrivateKey:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 private key: %w", err)
		}
		return key, nil
	case pemTypePrivateKey:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, want RSA", key)
		}
		return rsaKey, nil
	case pemTypeEncryptedPrivateKey:
		if len(passphrase) == 0 {
			return nil, errors.New("private key is passphrase-protected but no passphrase was provided")
		}
		return unwrapPrivateKey(block.Bytes, passphrase)
	default:
		return nil, fmt.Errorf("unsupported private key PEM type %q", block.Type)
	}
}

// EncryptPrivateKey seals priv under passphrase and returns a PEM block of
// type "ENCRYPTED LICENSE PRIVATE KEY". Used by key provisioning tooling.
func EncryptPrivateKey(priv *rsa.PrivateKey, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}

	salt := make([]byte, wrapSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := wrapAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, wrapNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	der := x509.MarshalPKCS1PrivateKey(priv)
	sealed := gcm.Seal(nil, nonce, der, nil)

	payload := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeEncryptedPrivateKey,
		Bytes: payload,
	}), nil
}

func unwrapPrivateKey(payload, passphrase []byte) (*rsa.PrivateKey, error) {
	if len(payload) < wrapSaltSize+wrapNonceSize+1 {
		return nil, errors.New("encrypted private key payload is truncated")
	}

	salt := payload[:wrapSaltSize]
	nonce := payload[wrapSaltSize : wrapSaltSize+wrapNonceSize]
	sealed := payload[wrapSaltSize+wrapNonceSize:]

	gcm, err := wrapAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	der, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.New("wrong passphrase or corrupted private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse unwrapped private key: %w", err)
	}
	return key, nil
}

func wrapAEAD(passphrase, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
