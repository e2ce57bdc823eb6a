// Package securestore provides encrypted-at-rest key-value storage for
// the runtime's small secrets: the consent snapshot, consent token,
// device id, and profile cache. It implements module.SecureStore with
// envelope encryption (Argon2id-derived KEK wrapping per-value AES-256-
// GCM DEKs) over a SQLite table.
package securestore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for root-key derivation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32 // AES-256
	saltLen      = 16
	dekLen       = 32 // AES-256
)

// verificationMagic is a known plaintext encrypted with the KEK to
// verify the root secret's correctness on unseal.
var verificationMagic = []byte("synheart-securestore-v1")

// DeriveKEK derives a 32-byte key-encryption key from the platform root
// secret and a stored salt using Argon2id. The root secret is whatever
// the host platform's Keystore/Keychain releases (out of scope here —
// see RootKeyProvider); it need not be high-entropy on its own, which is
// why it still goes through Argon2id rather than being used directly.
func DeriveKEK(rootSecret, salt []byte) []byte {
	return argon2.IDKey(rootSecret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// GenerateSalt returns a cryptographically random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	return randomBytes(saltLen, "salt")
}

// GenerateDEK returns a cryptographically random 32-byte data encryption key.
func GenerateDEK() ([]byte, error) {
	return randomBytes(dekLen, "DEK")
}

func randomBytes(n int, label string) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate %s: %w", label, err)
	}
	return b, nil
}

// WrapDEK encrypts a DEK with the KEK using AES-256-GCM.
func WrapDEK(kek, dek []byte) ([]byte, error) {
	box, err := newBox(kek)
	if err != nil {
		return nil, err
	}
	return box.seal(dek)
}

// UnwrapDEK decrypts a wrapped DEK using the KEK.
func UnwrapDEK(kek, wrappedDEK []byte) ([]byte, error) {
	box, err := newBox(kek)
	if err != nil {
		return nil, err
	}
	return box.open(wrappedDEK)
}

// Encrypt encrypts plaintext with a DEK using AES-256-GCM.
func Encrypt(dek, plaintext []byte) ([]byte, error) {
	box, err := newBox(dek)
	if err != nil {
		return nil, err
	}
	return box.seal(plaintext)
}

// Decrypt decrypts ciphertext with a DEK using AES-256-GCM.
func Decrypt(dek, ciphertext []byte) ([]byte, error) {
	box, err := newBox(dek)
	if err != nil {
		return nil, err
	}
	return box.open(ciphertext)
}

// CreateVerificationBlob encrypts a known magic string with the KEK.
func CreateVerificationBlob(kek []byte) ([]byte, error) {
	box, err := newBox(kek)
	if err != nil {
		return nil, err
	}
	return box.seal(verificationMagic)
}

// VerifyKEK reports whether the verification blob decrypts under kek to
// the expected magic string. Uses a constant-time comparison; the magic
// string isn't secret, but a fixed-pattern compare costs nothing here and
// avoids leaving a plaintext-comparison idiom in code that otherwise
// handles key material.
func VerifyKEK(kek, blob []byte) bool {
	box, err := newBox(kek)
	if err != nil {
		return false
	}
	plain, err := box.open(blob)
	if err != nil {
		return false
	}
	return len(plain) == len(verificationMagic) &&
		subtle.ConstantTimeCompare(plain, verificationMagic) == 1
}

// ZeroBytes overwrites a byte slice with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// box is a keyed AEAD wrapper: each Seal/Open call generates or reads its
// own nonce, so the same box is safe to reuse across multiple values.
type box struct {
	aead cipher.AEAD
}

func newBox(key []byte) (*box, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &box{aead: gcm}, nil
}

// seal returns nonce || ciphertext+tag.
func (b *box) seal(plaintext []byte) ([]byte, error) {
	nonce, err := randomBytes(b.aead.NonceSize(), "nonce")
	if err != nil {
		return nil, err
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open expects nonce || ciphertext+tag, as produced by seal.
func (b *box) open(data []byte) ([]byte, error) {
	n := b.aead.NonceSize()
	if len(data) < n {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:n], data[n:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
