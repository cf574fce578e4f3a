package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned by [Verify] when the signature does not match.
var ErrInvalidSignature = errors.New("fingerprint: invalid signature")

// Sign returns the base64url-encoded HMAC-SHA256 of value under key.
func Sign(key []byte, value string) (string, error) {
	if len(key) == 0 {
		return "", errors.New("fingerprint: signing requires a non-empty key")
	}
	mac := hmac.New(sha256.New, key)
	if _, err := mac.Write([]byte(value)); err != nil {
		return "", fmt.Errorf("fingerprint: compute signature: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature of value and compares it with sig in constant time.
func Verify(key []byte, value, sig string) error {
	if len(key) == 0 {
		return errors.New("fingerprint: verification requires a non-empty key")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("fingerprint: decode signature: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	if _, err := mac.Write([]byte(value)); err != nil {
		return fmt.Errorf("fingerprint: compute signature: %w", err)
	}
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
