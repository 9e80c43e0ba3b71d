// Package psk handles WireGuard pre-shared keys stored in the SDK config.
package psk

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// ErrInvalidKey is returned for keys that are not 32 base64-encoded bytes.
var ErrInvalidKey = errors.New("invalid pre-shared key")

// Redacted is how a configured key is displayed.
const Redacted = "**********"

// Generate creates a new random pre-shared key, base64-encoded.
func Generate() (string, error) {
	k, err := wgtypes.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generate pre-shared key: %w", err)
	}
	return k.String(), nil
}

// Parse decodes a base64-encoded key.
func Parse(s string) (wgtypes.Key, error) {
	k, err := wgtypes.ParseKey(strings.TrimSpace(s))
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// Valid reports whether s is a well-formed key.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Normalize returns the canonical base64 form of s. An empty string is
// returned unchanged and means "no key".
func Normalize(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	k, err := Parse(s)
	if err != nil {
		return "", err
	}
	return k.String(), nil
}

// ToHex returns the key as a 64-character hex string.
func ToHex(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != wgtypes.KeyLen {
		return "", fmt.Errorf("%w: length %d", ErrInvalidKey, len(raw))
	}
	return hex.EncodeToString(raw), nil
}

// Display returns the redacted form of a configured key, or "" when unset.
func Display(s string) string {
	if s == "" {
		return ""
	}
	return Redacted
}
