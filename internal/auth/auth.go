// Package auth manages the optional device PIN guarding destructive
// operations. The PIN is stored salted and hashed, never in plaintext.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/store"
)

const minPinLength = 4

// pinRecord is the persisted shape under the device PIN key.
type pinRecord struct {
	Salt string `json:"salt"`
	Hash string `json:"hash"`
}

// Manager handles PIN lifecycle against the store.
type Manager struct {
	store  *store.Store
	logger *zap.Logger
}

// NewManager creates a new PIN manager
func NewManager(st *store.Store, logger *zap.Logger) *Manager {
	return &Manager{store: st, logger: logger}
}

// IsSet reports whether a device PIN exists.
func (m *Manager) IsSet() (bool, error) {
	data, err := m.store.Get(store.KeyDevicePIN)
	if err != nil {
		return false, err
	}
	return data != nil, nil
}

// Set hashes and stores a new PIN, replacing any existing one.
func (m *Manager) Set(pin string) error {
	if len(pin) < minPinLength {
		return apperrors.Validation("pin must be at least 4 characters")
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return apperrors.Persistence(err, "failed to generate salt")
	}

	rec := pinRecord{
		Salt: hex.EncodeToString(salt),
		Hash: hashPin(pin, salt),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Persistence(err, "failed to encode pin record")
	}
	if err := m.store.Put(store.KeyDevicePIN, data); err != nil {
		return err
	}

	m.logger.Info("Device PIN updated")
	return nil
}

// Verify checks a PIN attempt against the stored hash.
func (m *Manager) Verify(pin string) error {
	data, err := m.store.Get(store.KeyDevicePIN)
	if err != nil {
		return err
	}
	if data == nil {
		return apperrors.ErrPinNotSet
	}

	var rec pinRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return apperrors.Persistence(err, "failed to decode pin record")
	}
	salt, err := hex.DecodeString(rec.Salt)
	if err != nil {
		return apperrors.Persistence(err, "failed to decode pin salt")
	}

	if subtle.ConstantTimeCompare([]byte(hashPin(pin, salt)), []byte(rec.Hash)) != 1 {
		return apperrors.ErrPinMismatch
	}
	return nil
}

// Clear removes the device PIN.
func (m *Manager) Clear() error {
	if err := m.store.Delete(store.KeyDevicePIN); err != nil {
		return err
	}
	m.logger.Info("Device PIN cleared")
	return nil
}

func hashPin(pin string, salt []byte) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(pin))
	return hex.EncodeToString(h.Sum(nil))
}
