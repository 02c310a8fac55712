// Package credentials stores the API key used to reach a remote inference
// server. The key lives in the system keyring (macOS Keychain, Windows
// Credential Manager, Linux Secret Service); MINUTES_BACKEND_API_KEY
// overrides it for CI and containers.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// EnvAPIKey overrides the keyring.
	EnvAPIKey = "MINUTES_BACKEND_API_KEY"

	keyringService = "minutes"
	keyringUser    = "inference-api-key"
)

var (
	// ErrNoAPIKey is returned when no key is configured anywhere.
	ErrNoAPIKey = errors.New("no inference API key configured")

	// ErrKeyringUnavailable indicates the system keyring cannot be used.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
)

// Source provides the inference API key.
type Source interface {
	APIKey() (string, error)
	Description() string
}

// KeyringStore keeps the key in the system keyring.
type KeyringStore struct {
	mu      sync.Mutex
	service string
	user    string
}

// NewKeyringStore creates a store using the default keyring entry.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: keyringService, user: keyringUser}
}

// APIKey returns the stored key, or ErrNoAPIKey.
func (s *KeyringStore) APIKey() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

// Set stores key, replacing any previous value.
func (s *KeyringStore) Set(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := keyring.Set(s.service, s.user, key); err != nil {
		return fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Delete removes the stored key. Deleting a missing key is not an error.
func (s *KeyringStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := keyring.Delete(s.service, s.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: deleting key: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Description names the keyring backend for the current platform.
func (s *KeyringStore) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// EnvSource reads the key from an environment variable.
type EnvSource struct {
	Var string
}

// APIKey returns the variable's value, or ErrNoAPIKey when unset.
func (e EnvSource) APIKey() (string, error) {
	v := strings.TrimSpace(os.Getenv(e.Var))
	if v == "" {
		return "", ErrNoAPIKey
	}
	return v, nil
}

// Description names the variable.
func (e EnvSource) Description() string {
	return fmt.Sprintf("Environment variable (%s)", e.Var)
}

// Chain tries each source in order and returns the first key found.
type Chain []Source

// DefaultChain prefers the environment over the keyring.
func DefaultChain() Chain {
	return Chain{EnvSource{Var: EnvAPIKey}, NewKeyringStore()}
}

// APIKey returns the first key found. Keyring failures fall through to the
// next source.
func (c Chain) APIKey() (string, error) {
	for _, s := range c {
		key, err := s.APIKey()
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrNoAPIKey) && !errors.Is(err, ErrKeyringUnavailable) {
			return "", err
		}
	}
	return "", ErrNoAPIKey
}

// Description lists the sources.
func (c Chain) Description() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = s.Description()
	}
	return strings.Join(parts, ", ")
}

// MaskAPIKey shows only the first and last four characters of key.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
