// Package signer provides the shared cryptographic primitives of the trust
// stack: SHA-256 content hashing and HMAC-SHA256 signatures computed over an
// RFC 8785 (JCS) canonical JSON encoding. Signer and verifier canonicalise
// through the same code path, so a signature is valid iff the signed fields
// are byte-identical at verification time.
//
// The signing key is process-wide, immutable after construction, and must
// never be logged or serialised.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ErrNoSigningKey is returned when a Signer is constructed without a key.
// This is a fatal configuration error: callers must not fall back to a
// default key.
var ErrNoSigningKey = errors.New("signer: signing key must be set (TRUST_SIGNING_KEY)")

// ErrInsecureSigningKey is returned when the configured key matches a known
// placeholder value that has shipped in example configs.
var ErrInsecureSigningKey = errors.New("signer: insecure placeholder signing key detected")

// insecureKeys are placeholder values that must never be accepted.
var insecureKeys = map[string]bool{
	"default-dev-key-change-in-prod": true,
	"default-attestation-key":        true,
}

// Signer signs and verifies payloads with a single HMAC-SHA256 key.
type Signer struct {
	key []byte
}

// New creates a Signer. It fails if the key is empty or a known placeholder;
// processes must treat that error as fatal at startup.
func New(key string) (*Signer, error) {
	if key == "" {
		return nil, ErrNoSigningKey
	}
	if insecureKeys[key] {
		return nil, ErrInsecureSigningKey
	}
	return &Signer{key: []byte(key)}, nil
}

// Hash returns the hex-encoded SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Canonical returns the RFC 8785 canonical JSON encoding of v.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("signer: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalize: %w", err)
	}
	return canonical, nil
}

// CanonicalHash returns the hex SHA-256 digest of the canonical encoding of v.
func CanonicalHash(v any) (string, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return Hash(canonical), nil
}

// Sign returns the hex-encoded HMAC-SHA256 signature of data.
func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignCanonical canonicalises v and signs the result.
func (s *Signer) SignCanonical(v any) (string, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return s.Sign(canonical), nil
}

// Verify recomputes the signature of data and compares it to sig in
// constant time.
func (s *Signer) Verify(data []byte, sig string) bool {
	return Equal(s.Sign(data), sig)
}

// Equal compares two hex signatures (or hashes) in constant time. Every
// comparison that gates a trust decision must go through this function.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
