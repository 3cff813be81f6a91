package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"math/big"
)

// Blob layout: version byte, 2-byte big-endian length of the RSA key
// transport block, the block itself, then the AES-GCM ciphertext.
const (
	blobVersion = 1

	// keyBlockLen is the RSA-protected segment: a 32-byte AES-256 key
	// followed by a 12-byte GCM nonce.
	aesKeySize   = 32
	gcmNonceSize = 12
	keyBlockLen  = aesKeySize + gcmNonceSize

	blobHeaderLen = 3
)

// DecryptionError reports any cryptographic failure during decrypt:
// corrupt input, wrong key, or truncated data. The message never carries
// key material or partial plaintext.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return "license decryption: " + e.Reason
}

// Encryptor performs hybrid encryption over arbitrary payloads. A fresh
// AES-256 key and nonce are drawn per call, the payload is sealed with
// AES-GCM, and the key block is transformed with the RSA private exponent
// so that holders of the public key can recover it. This mirrors the
// OpenSSL private_encrypt/public_decrypt issuance model: the private key
// issues, the public key reads.
type Encryptor struct {
	keys *Keyring
}

// NewEncryptor creates an encryptor reading key material through keys.
func NewEncryptor(keys *Keyring) *Encryptor {
	return &Encryptor{keys: keys}
}

// Encrypt seals plaintext into an opaque blob using private-capable key
// material. Output differs across calls for identical input.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	priv, err := e.keys.Private()
	if err != nil {
		return nil, err
	}

	keyBlock := make([]byte, keyBlockLen)
	if _, err := rand.Read(keyBlock); err != nil {
		return nil, errors.New("security: failed to draw session key material")
	}

	gcm, err := payloadAEAD(keyBlock[:aesKeySize])
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, keyBlock[aesKeySize:], plaintext, nil)

	rsaBlock, err := privateTransform(priv, keyBlock)
	zero(keyBlock)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, blobHeaderLen+len(rsaBlock)+len(ciphertext))
	blob = append(blob, blobVersion)
	blob = binary.BigEndian.AppendUint16(blob, uint16(len(rsaBlock)))
	blob = append(blob, rsaBlock...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// Decrypt reverses Encrypt using public-capable key material.
func (e *Encryptor) Decrypt(blob []byte) ([]byte, error) {
	pub, err := e.keys.Public()
	if err != nil {
		return nil, err
	}

	if len(blob) < blobHeaderLen {
		return nil, &DecryptionError{Reason: "ciphertext truncated"}
	}
	if blob[0] != blobVersion {
		return nil, &DecryptionError{Reason: "unsupported ciphertext version"}
	}

	rsaLen := int(binary.BigEndian.Uint16(blob[1:3]))
	if rsaLen == 0 || len(blob) < blobHeaderLen+rsaLen {
		return nil, &DecryptionError{Reason: "ciphertext truncated"}
	}
	rsaBlock := blob[blobHeaderLen : blobHeaderLen+rsaLen]
	ciphertext := blob[blobHeaderLen+rsaLen:]

	keyBlock, err := publicRecover(pub, rsaBlock)
	if err != nil {
		return nil, err
	}
	defer zero(keyBlock)
	if len(keyBlock) != keyBlockLen {
		return nil, &DecryptionError{Reason: "key transport block rejected"}
	}

	gcm, err := payloadAEAD(keyBlock[:aesKeySize])
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, keyBlock[aesKeySize:], ciphertext, nil)
	if err != nil {
		return nil, &DecryptionError{Reason: "ciphertext rejected"}
	}
	return plaintext, nil
}

func payloadAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptionError{Reason: "cipher initialization failed"}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &DecryptionError{Reason: "cipher initialization failed"}
	}
	return gcm, nil
}

// privateTransform applies EME-PKCS1-v1_5 type-1 padding to msg and raises
// it to the private exponent. The Go standard library only exposes this
// direction for signatures over digests, so the modular exponentiation is
// done directly.
func privateTransform(priv *rsa.PrivateKey, msg []byte) ([]byte, error) {
	k := priv.Size()
	if len(msg) > k-11 {
		return nil, errors.New("security: message too long for RSA key transport")
	}

	// EM = 0x00 || 0x01 || PS(0xFF..) || 0x00 || msg
	em := make([]byte, k)
	em[1] = 1
	psLen := k - len(msg) - 3
	for i := 0; i < psLen; i++ {
		em[2+i] = 0xff
	}
	copy(em[k-len(msg):], msg)

	m := new(big.Int).SetBytes(em)
	zero(em)
	if m.Cmp(priv.N) >= 0 {
		return nil, errors.New("security: padded message exceeds modulus")
	}
	c := new(big.Int).Exp(m, priv.D, priv.N)
	return c.FillBytes(make([]byte, k)), nil
}

// publicRecover raises the block to the public exponent and strips the
// type-1 padding. Padding checks avoid early exits on content bytes.
func publicRecover(pub *rsa.PublicKey, block []byte) ([]byte, error) {
	k := pub.Size()
	if len(block) != k {
		return nil, &DecryptionError{Reason: "key transport block has wrong length"}
	}

	c := new(big.Int).SetBytes(block)
	if c.Cmp(pub.N) >= 0 {
		return nil, &DecryptionError{Reason: "key transport block rejected"}
	}
	m := new(big.Int).Exp(c, big.NewInt(int64(pub.E)), pub.N)
	em := m.FillBytes(make([]byte, k))

	ok := subtle.ConstantTimeByteEq(em[0], 0) & subtle.ConstantTimeByteEq(em[1], 1)
	sep := -1
	for i := 2; i < k; i++ {
		if em[i] == 0 {
			sep = i
			break
		}
		ok &= subtle.ConstantTimeByteEq(em[i], 0xff)
	}
	if ok != 1 || sep < 10 || sep == k-1 {
		return nil, &DecryptionError{Reason: "key transport block rejected"}
	}
	return em[sep+1:], nil
}
