package securestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/synheart/synheart-runtime/pkg/module"
)

// Compile-time interface guard.
var _ module.SecureStore = (*Store)(nil)

// Store is an encrypted-at-rest key-value store layered over a
// module.Store's shared SQLite database. Every value is sealed with its
// own randomly generated DEK, which is itself wrapped by a KEK derived
// from the platform root secret; losing a single wrapped DEK never
// exposes other entries, and rotating the root secret only requires
// rewrapping DEKs, not re-encrypting values.
type Store struct {
	db       module.Store
	rootKeys RootKeyProvider
	km       *keyManager
}

// New creates a Store backed by db. Open must be called once before Put/
// Get/Delete are usable.
func New(db module.Store, rootKeys RootKeyProvider) *Store {
	return &Store{db: db, rootKeys: rootKeys, km: newKeyManager()}
}

// Open runs the securestore migrations, then either loads the existing
// master key record and unseals with it, or — on first run — derives a
// fresh one and persists its salt and verification blob.
func (s *Store) Open(ctx context.Context) error {
	if err := s.db.Migrate(ctx, "securestore", migrations()); err != nil {
		return fmt.Errorf("securestore migrate: %w", err)
	}

	rootSecret, err := s.rootKeys.RootSecret()
	if err != nil {
		return fmt.Errorf("obtain root secret: %w", err)
	}
	defer ZeroBytes(rootSecret)

	var salt, verification []byte
	err = s.db.DB().QueryRowContext(ctx,
		"SELECT salt, verification_blob FROM securestore_master WHERE id = 1",
	).Scan(&salt, &verification)

	switch {
	case err == sql.ErrNoRows:
		salt, verification, err = s.km.firstRunSetup(rootSecret)
		if err != nil {
			return fmt.Errorf("first-run key setup: %w", err)
		}
		_, err = s.db.DB().ExecContext(ctx,
			"INSERT INTO securestore_master (id, salt, verification_blob) VALUES (1, ?, ?)",
			salt, verification,
		)
		if err != nil {
			return fmt.Errorf("persist master key record: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("query master key record: %w", err)
	default:
		s.km.load(salt, verification)
		if err := s.km.unseal(rootSecret); err != nil {
			return fmt.Errorf("unseal securestore: %w", err)
		}
		return nil
	}
}

// Close seals the store, zeroing the in-memory KEK.
func (s *Store) Close() error {
	s.km.seal()
	return nil
}

// Put encrypts value under a freshly generated DEK and upserts it.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	dek, err := GenerateDEK()
	if err != nil {
		return fmt.Errorf("generate dek: %w", err)
	}
	defer ZeroBytes(dek)

	wrapped, err := s.km.wrapDEK(dek)
	if err != nil {
		return fmt.Errorf("wrap dek: %w", err)
	}

	encrypted, err := Encrypt(dek, value)
	if err != nil {
		return fmt.Errorf("encrypt value: %w", err)
	}

	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO securestore_entries (key, wrapped_key, encrypted_value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			wrapped_key = excluded.wrapped_key,
			encrypted_value = excluded.encrypted_value,
			updated_at = excluded.updated_at
	`, key, wrapped, encrypted)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Get decrypts and returns the value stored under key. ok is false if no
// entry exists.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var wrapped, encrypted []byte
	err := s.db.DB().QueryRowContext(ctx,
		"SELECT wrapped_key, encrypted_value FROM securestore_entries WHERE key = ?", key,
	).Scan(&wrapped, &encrypted)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}

	dek, err := s.km.unwrapDEK(wrapped)
	if err != nil {
		return nil, false, fmt.Errorf("unwrap dek for %q: %w", key, err)
	}
	defer ZeroBytes(dek)

	value, err := Decrypt(dek, encrypted)
	if err != nil {
		return nil, false, fmt.Errorf("decrypt %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes the entry for key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.DB().ExecContext(ctx, "DELETE FROM securestore_entries WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// StaticRootKeyProvider is a RootKeyProvider backed by a fixed in-memory
// secret. Intended for tests and for platforms where the host Keystore/
// Keychain has already been resolved into a byte slice by the caller.
type StaticRootKeyProvider struct {
	Secret []byte
}

// RootSecret returns a copy of the configured secret.
func (p StaticRootKeyProvider) RootSecret() ([]byte, error) {
	out := make([]byte, len(p.Secret))
	copy(out, p.Secret)
	return out, nil
}
