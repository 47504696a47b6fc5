// Package keywrap contains primitives for wrapping an identity's private key
// under material derived from a deterministic wallet signature.
package keywrap

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// WrapKeyLen is the length of the derived wrapping key.
const WrapKeyLen = 32

// hkdfInfo binds derived keys to this protocol version.
var hkdfInfo = []byte("spacesync root key wrap v1")

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// GenerateKeypair creates a fresh identity keypair. The public key is returned
// hex-encoded, the form used everywhere as the identity handle.
func GenerateKeypair() (string, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, err
	}
	return hex.EncodeToString(pub), priv, nil
}

// DeriveWrappingKey derives the symmetric wrapping key from a wallet signature
// via HKDF-SHA256. The wallet signs a fixed identity-scoped message, so the
// same wallet re-derives the same key without the key ever being stored.
func DeriveWrappingKey(walletSig []byte) ([]byte, error) {
	if len(walletSig) == 0 {
		return nil, errors.New("empty wallet signature")
	}
	r := hkdf.New(sha256.New, walletSig, nil, hkdfInfo)
	key := make([]byte, WrapKeyLen)
	if _, err := r.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Wrap encrypts a root private key with the wrapping key using
// XChaCha20-Poly1305 and a random nonce. The nonce is prepended to the blob.
func Wrap(wrappingKey, rootKey []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(wrappingKey)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(rootKey)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, rootKey, nil)...)
	return out, nil
}

// Unwrap decrypts a wrapped root key blob.
func Unwrap(wrappingKey, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("blob too short")
	}
	aead, err := chacha20poly1305.NewX(wrappingKey)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, nil)
}
