// Package model defines domain entities used by services and repositories.
package model

import (
	"crypto/ed25519"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// IdentityStatus is the lifecycle state of an identity. Identities are never
// deleted, only marked revoked, so FidLink staleness checks keep an audit trail.
type IdentityStatus string

const (
	IdentityActive  IdentityStatus = "active"
	IdentityRevoked IdentityStatus = "revoked"
)

// Identity is a wallet-bound signing identity. The private key is never stored
// here; it lives encrypted in object storage under RootKeyPath. One wallet may
// own several identities (one per device/onboarding event).
type Identity struct {
	ID                uuid.UUID // PK of the registration row
	IdentityPublicKey string    // hex ed25519 public key, the durable handle
	WalletAddress     string
	Nonce             string // uniquifies the registration row
	Signature         string // self-signature over the registration payload
	Status            IdentityStatus
	CreatedAt         time.Time
}

// SessionKeys holds a decrypted identity keypair for the lifetime of a session.
// It is produced by DecryptIdentityKeys and must never be persisted.
type SessionKeys struct {
	PublicKey string // hex
	Private   ed25519.PrivateKey
}

// PreKey is a sub-key delegated by a parent identity. The signed file is an
// envelope countersigned by the owner; it is list-only after creation.
type PreKey struct {
	PreKeyPublicKey        string
	OwnerIdentityPublicKey string
	SignedFile             json.RawMessage
	CreatedAt              time.Time
}

// FidLink binds a Farcaster account id to an identity. Exactly one row per
// fid; Created is monotonically non-decreasing across accepted writes.
type FidLink struct {
	Fid                       int64
	IdentityPublicKey         string
	SigningPublicKey          string
	Signature                 string
	Created                   time.Time
	IsSigningKeyValid         bool
	SigningKeyLastValidatedAt time.Time
}

// Space is a namespace for tabs. Ownership is established by registration
// records, not enforced cryptographically on every write.
type Space struct {
	SpaceID                string
	SpaceType              string
	OwnerIdentityPublicKey string
}

// TabConfig is the sanitized configuration of a single tab. Only configs that
// passed the sanitizer are represented as this type; raw candidates stay
// map[string]any until then.
type TabConfig struct {
	FidgetInstanceDatums map[string]any `json:"fidgetInstanceDatums"`
	LayoutDetails        map[string]any `json:"layoutDetails,omitempty"`
	Theme                map[string]any `json:"theme,omitempty"`
	FidgetTrayContents   []any          `json:"fidgetTrayContents,omitempty"`
	IsPrivate            bool           `json:"isPrivate"`
	Timestamp            string         `json:"timestamp,omitempty"`
}

// TabOrder is the signed, ordered list of tab names for a space.
type TabOrder struct {
	SpaceID   string   `json:"spaceId"`
	TabOrder  []string `json:"tabOrder"`
	PublicKey string   `json:"publicKey"`
	Signature string   `json:"signature,omitempty"`
	Timestamp string   `json:"timestamp"`
}
