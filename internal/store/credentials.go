// Package store implements the durable leaf stores of the NoteCoven server:
// the credential map (username -> secret hash) and the per-room documents.
// Both persist every mutation to disk before reporting success.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidName indicates an empty or unusable username.
	ErrInvalidName = errors.New("invalid username")
	// ErrWrongSecret indicates the supplied secret does not match the stored one.
	ErrWrongSecret = errors.New("wrong secret")
	// ErrNameTaken indicates a rename target that already exists.
	ErrNameTaken = errors.New("username already taken")
)

// CredentialStore holds the username -> bcrypt hash map, backed by a single
// JSON file. Mutations are written to disk before the caller is told they
// succeeded; a failed write rolls the in-memory change back.
type CredentialStore struct {
	mu    sync.Mutex
	path  string
	users map[string]string
}

// OpenCredentialStore loads the credential map from path, creating the
// parent directory if needed. A missing file yields an empty store.
func OpenCredentialStore(path string) (*CredentialStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	users := make(map[string]string)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &users); err != nil {
			return nil, fmt.Errorf("parsing credential file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// First run; the file appears on the first registration.
	default:
		return nil, fmt.Errorf("reading credential file %s: %w", path, err)
	}

	return &CredentialStore{path: path, users: users}, nil
}

// LookupOrCreate checks username/secret against the stored map. An unknown
// username is registered with the supplied secret (auto-registration); a
// known username must present a matching secret.
func (s *CredentialStore) LookupOrCreate(username, secret string) error {
	if strings.TrimSpace(username) == "" {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash, known := s.users[username]
	if !known {
		hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing secret: %w", err)
		}
		s.users[username] = string(hashed)
		if err := s.persistLocked(); err != nil {
			delete(s.users, username)
			return err
		}
		return nil
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return ErrWrongSecret
	}
	return nil
}

// Rename moves the credential record from oldName to newName. The move is
// atomic under the store lock: readers never observe both or neither key.
func (s *CredentialStore) Rename(oldName, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.users[newName]; taken {
		return ErrNameTaken
	}
	hash, known := s.users[oldName]
	if !known {
		return ErrInvalidName
	}

	s.users[newName] = hash
	delete(s.users, oldName)
	if err := s.persistLocked(); err != nil {
		s.users[oldName] = hash
		delete(s.users, newName)
		return err
	}
	return nil
}

// Has reports whether a username is currently registered.
func (s *CredentialStore) Has(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[username]
	return ok
}

func (s *CredentialStore) persistLocked() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential map: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	return nil
}
