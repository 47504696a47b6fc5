// Package envelope implements canonical serialization, signing and
// verification of arbitrary JSON payloads. A signable payload carries its
// signer's public key in a named field and a detached signature over the
// canonical form of everything except the signature itself.
package envelope

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spacehost/spacesync/internal/errs"
)

// SignatureField is the reserved envelope field holding the hex signature.
const SignatureField = "signature"

// Envelope is a signed payload: the original fields plus "signature".
type Envelope map[string]any

// toMap normalizes any JSON-marshalable value into a fresh map. Numbers are
// decoded as json.Number so canonical bytes never depend on float formatting.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// Canonicalize returns the deterministic byte form of v with the given
// top-level fields removed. encoding/json emits map keys in sorted order at
// every nesting level, which is exactly the stable field ordering signature
// verification depends on; array order is preserved as-is.
func Canonicalize(v any, exclude ...string) ([]byte, error) {
	m, err := toMap(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	for _, f := range exclude {
		delete(m, f)
	}
	return json.Marshal(m)
}

// digest hashes the canonical bytes; signatures are made over this digest.
func digest(canonical []byte) []byte {
	sum := sha256.Sum256(canonical)
	return sum[:]
}

// Sign produces an envelope for payload. The payload must already carry the
// signer's hex public key in keyField; the signature is computed over the
// canonical form excluding the signature field.
func Sign(payload any, priv ed25519.PrivateKey, keyField string) (Envelope, error) {
	m, err := toMap(payload)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if s, ok := m[keyField].(string); !ok || s == "" {
		return nil, fmt.Errorf("sign: payload has no %q: %w", keyField, errs.ErrMalformedInput)
	}
	delete(m, SignatureField)
	canonical, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	m[SignatureField] = hex.EncodeToString(ed25519.Sign(priv, digest(canonical)))
	return Envelope(m), nil
}

// IsSignable reports whether candidate is structurally an envelope: an object
// with a string signature and a string value at keyField.
func IsSignable(candidate any, keyField string) bool {
	m, err := toMap(candidate)
	if err != nil {
		return false
	}
	if s, ok := m[SignatureField].(string); !ok || s == "" {
		return false
	}
	if k, ok := m[keyField].(string); !ok || k == "" {
		return false
	}
	return true
}

// Validate checks that candidate is a well-formed envelope whose signature
// verifies against the public key stored at keyField. Every failure mode
// (wrong shape, bad encoding, bad signature) is the same ErrInvalidSignature.
func Validate(candidate any, keyField string) error {
	m, err := toMap(candidate)
	if err != nil {
		return errs.ErrInvalidSignature
	}
	sigHex, ok := m[SignatureField].(string)
	if !ok || sigHex == "" {
		return errs.ErrInvalidSignature
	}
	keyHex, ok := m[keyField].(string)
	if !ok || keyHex == "" {
		return errs.ErrInvalidSignature
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return errs.ErrInvalidSignature
	}
	pub, err := hex.DecodeString(keyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return errs.ErrInvalidSignature
	}
	delete(m, SignatureField)
	canonical, err := json.Marshal(m)
	if err != nil {
		return errs.ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), digest(canonical), sig) {
		return errs.ErrInvalidSignature
	}
	return nil
}
