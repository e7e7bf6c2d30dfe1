// Package credentials stores the OpenAI API key in the system keyring
// (macOS Keychain, Windows Credential Manager, Linux Secret Service).
package credentials

import (
	"errors"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

const (
	keyringService = "meetscribe"
	keyringUser    = "openai"
)

// Where a resolved key came from.
const (
	SourceConfig  = "config"
	SourceKeyring = "keyring"
)

// ErrNotFound is returned when no key is stored.
var ErrNotFound = errors.New("no api key stored")

// APIKey reads the stored key.
func APIKey() (string, error) {
	key, err := keyring.Get(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeUnavailable, "read keyring")
	}
	return key, nil
}

// SetAPIKey stores key, replacing any previous one.
func SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.New(apperrors.CodeValidation, "api key must not be empty")
	}
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "write keyring")
	}
	return nil
}

// DeleteAPIKey removes the stored key. Deleting a missing key is not an error.
func DeleteAPIKey() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return apperrors.Wrap(err, apperrors.CodeUnavailable, "delete from keyring")
}

// Resolve prefers the configured key (file or OPENAI_API_KEY) and falls
// back to the keyring.
func Resolve(configured string) (key, source string, err error) {
	if k := strings.TrimSpace(configured); k != "" {
		return k, SourceConfig, nil
	}
	key, err = APIKey()
	if err != nil {
		return "", "", err
	}
	return key, SourceKeyring, nil
}

// Mask hides all but the last four characters of key.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// Description names the keyring backend on this platform.
func Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}
