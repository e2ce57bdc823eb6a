package securestore

import (
	"errors"
	"sync"
)

// ErrSealed is returned when an operation requires an unsealed store.
var ErrSealed = errors.New("securestore is sealed")

// ErrWrongRootSecret is returned when the supplied root secret does not
// match the stored verification blob.
var ErrWrongRootSecret = errors.New("wrong root secret")

// ErrAlreadyInitialized is returned by firstRunSetup on a store that
// already has a salt/verification record.
var ErrAlreadyInitialized = errors.New("securestore already initialized")

// RootKeyProvider releases the platform root secret used to derive the
// key-encryption key — backed by the host's Keystore/Keychain on a real
// device. Obtaining and protecting that secret is on-device storage
// infrastructure outside this runtime's scope; the runtime only consumes
// whatever bytes the provider returns.
type RootKeyProvider interface {
	RootSecret() ([]byte, error)
}

// keyState tracks a keyManager's position in its own small lifecycle:
// no record loaded yet, a record loaded but the KEK not yet derived, or
// unsealed with the KEK held in memory.
type keyState int

const (
	keyUninitialized keyState = iota
	keySealed
	keyUnsealed
)

// keyManager holds the KEK in memory and provides seal/unseal operations.
// Safe for concurrent use.
type keyManager struct {
	mu               sync.RWMutex
	state            keyState
	kek              []byte // set only in keyUnsealed
	salt             []byte
	verificationBlob []byte
}

func newKeyManager() *keyManager {
	return &keyManager{}
}

// load installs a previously persisted salt and verification blob
// without unsealing. Called once during Open.
func (km *keyManager) load(salt, verificationBlob []byte) {
	km.mu.Lock()
	defer km.mu.Unlock()
	km.salt = salt
	km.verificationBlob = verificationBlob
	km.state = keySealed
}

func (km *keyManager) isSealed() bool {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.state != keyUnsealed
}

func (km *keyManager) isInitialized() bool {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.state != keyUninitialized
}

// unseal derives the KEK from the root secret and stored salt, then
// verifies it against the stored verification blob.
func (km *keyManager) unseal(rootSecret []byte) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	switch km.state {
	case keyUninitialized:
		return errors.New("securestore not initialized: call firstRunSetup first")
	case keyUnsealed:
		return nil
	}

	kek := DeriveKEK(rootSecret, km.salt)
	if !VerifyKEK(kek, km.verificationBlob) {
		ZeroBytes(kek)
		return ErrWrongRootSecret
	}

	km.kek = kek
	km.state = keyUnsealed
	return nil
}

// firstRunSetup creates a new salt, derives the KEK, and creates a
// verification blob. The store is unsealed after this call.
func (km *keyManager) firstRunSetup(rootSecret []byte) (salt, verification []byte, err error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.state != keyUninitialized {
		return nil, nil, ErrAlreadyInitialized
	}

	salt, err = GenerateSalt()
	if err != nil {
		return nil, nil, err
	}

	kek := DeriveKEK(rootSecret, salt)
	verification, err = CreateVerificationBlob(kek)
	if err != nil {
		ZeroBytes(kek)
		return nil, nil, err
	}

	km.salt = salt
	km.verificationBlob = verification
	km.kek = kek
	km.state = keyUnsealed

	return salt, verification, nil
}

func (km *keyManager) seal() {
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.state == keyUnsealed {
		ZeroBytes(km.kek)
		km.kek = nil
		km.state = keySealed
	}
}

// withKEK runs fn against the current KEK under a read lock, failing
// with ErrSealed if no KEK is held. wrapDEK and unwrapDEK are both just
// this plus a call into the crypto helpers, so they share the guard here
// instead of duplicating the sealed check.
func (km *keyManager) withKEK(fn func(kek []byte) ([]byte, error)) ([]byte, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.state != keyUnsealed {
		return nil, ErrSealed
	}
	return fn(km.kek)
}

func (km *keyManager) wrapDEK(dek []byte) ([]byte, error) {
	return km.withKEK(func(kek []byte) ([]byte, error) { return WrapDEK(kek, dek) })
}

func (km *keyManager) unwrapDEK(wrappedDEK []byte) ([]byte, error) {
	return km.withKEK(func(kek []byte) ([]byte, error) { return UnwrapDEK(kek, wrappedDEK) })
}
