// Package fingerprint derives stable digests of checkout data so callers can tell whether
// values that shape a payment session have changed, and signs small values that round-trip
// through the browser.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

// Of returns the base64url SHA-256 of the canonical JSON form of v. Map key order, struct
// field order and insignificant whitespace do not affect the result.
func Of(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal: %w", err)
	}
	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// MustOf is like [Of] but panics on error. Use it only with values that always marshal.
func MustOf(v any) string {
	fp, err := Of(v)
	if err != nil {
		panic(err)
	}
	return fp
}

// CanonicalizeJSON normalizes arbitrary JSON into canonical form.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("fingerprint: multiple JSON documents")
	}
	return canonicaljson.Marshal(payload)
}
