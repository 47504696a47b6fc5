// Package service contains application services for the identity lifecycle,
// prekey issuance and fid linking.
package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/spacehost/spacesync/internal/crypto/keywrap"
	"github.com/spacehost/spacesync/internal/envelope"
	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/objstore"
	"github.com/spacehost/spacesync/internal/repository"
)

// WalletSigner is the external wallet collaborator. Signing the same message
// must always produce the same signature (the wrapping key is re-derived from
// it), which holds for deterministic schemes like EIP-191 ECDSA or ed25519.
type WalletSigner interface {
	// Address returns the wallet address.
	Address() string
	// SignMessage signs arbitrary bytes with the wallet key.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// walletMessage is the fixed identity-scoped message a wallet signs to derive
// key-wrapping material. Changing this string orphans every stored root key.
func walletMessage(walletAddress string) []byte {
	return []byte("spacesync identity key v1 for wallet " + walletAddress)
}

// IdentityRegistration is the wire shape of a registration row. It is a
// signable payload whose key field is the identity's own public key: the
// identity vouches for its own creation record.
type IdentityRegistration struct {
	IdentityPublicKey string `json:"identityPublicKey"`
	WalletAddress     string `json:"walletAddress"`
	Nonce             string `json:"nonce"`
	Timestamp         string `json:"timestamp"`
	Signature         string `json:"signature,omitempty"`
}

// IdentityService manages the identity lifecycle: creation, loading,
// decryption of session keys and revocation.
type IdentityService struct {
	repo  repository.IdentityRepository
	store objstore.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(repo repository.IdentityRepository, store objstore.Store, log *zap.Logger) *IdentityService {
	return &IdentityService{repo: repo, store: store, log: log, now: time.Now}
}

// CreateIdentity generates a fresh identity keypair for the wallet, wraps the
// private key under wallet-signature-derived material, stores the encrypted
// blob plus a self-signed root key file, and registers the identity. A wallet
// that refuses to sign aborts the whole operation with no partial state.
func (s *IdentityService) CreateIdentity(ctx context.Context, signer WalletSigner) (*model.Identity, *model.SessionKeys, error) {
	walletSig, err := signer.SignMessage(ctx, walletMessage(signer.Address()))
	if err != nil {
		return nil, nil, fmt.Errorf("wallet signature: %w", err)
	}
	wrapKey, err := keywrap.DeriveWrappingKey(walletSig)
	if err != nil {
		return nil, nil, err
	}

	pubHex, priv, err := keywrap.GenerateKeypair()
	if err != nil {
		return nil, nil, err
	}
	wrapped, err := keywrap.Wrap(wrapKey, priv)
	if err != nil {
		return nil, nil, err
	}

	nonce, err := uuid.NewV4()
	if err != nil {
		return nil, nil, err
	}
	ts := s.now().UTC().Format(time.RFC3339)

	rootFile, err := envelope.Sign(map[string]any{
		"identityPublicKey": pubHex,
		"walletAddress":     signer.Address(),
		"encryptedRootKey":  base64.StdEncoding.EncodeToString(wrapped),
		"timestamp":         ts,
	}, priv, "identityPublicKey")
	if err != nil {
		return nil, nil, err
	}
	blob, err := json.Marshal(rootFile)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.Upload(ctx, objstore.RootKeyPath(pubHex, signer.Address()), blob, true); err != nil {
		return nil, nil, err
	}

	reg, err := envelope.Sign(IdentityRegistration{
		IdentityPublicKey: pubHex,
		WalletAddress:     signer.Address(),
		Nonce:             nonce.String(),
		Timestamp:         ts,
	}, priv, "identityPublicKey")
	if err != nil {
		return nil, nil, err
	}
	var signed IdentityRegistration
	if err := remarshal(reg, &signed); err != nil {
		return nil, nil, err
	}
	identity, err := s.Register(ctx, signed)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("identity created",
		zap.String("identityPublicKey", pubHex),
		zap.String("wallet", signer.Address()),
	)
	return identity, &model.SessionKeys{PublicKey: pubHex, Private: priv}, nil
}

// Register validates a self-signed registration independently of whoever
// produced it and inserts the row. This is the server-side half of identity
// creation, also reachable over the HTTP API. The signed timestamp becomes
// the row's CreatedAt, so the signed wire body is reconstructible from the
// stored record.
func (s *IdentityService) Register(ctx context.Context, reg IdentityRegistration) (*model.Identity, error) {
	if reg.IdentityPublicKey == "" || reg.WalletAddress == "" || reg.Nonce == "" {
		return nil, fmt.Errorf("registration: %w", errs.ErrMalformedInput)
	}
	createdAt, err := time.Parse(time.RFC3339, reg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("registration timestamp: %w", errs.ErrMalformedInput)
	}
	if err := envelope.Validate(reg, "identityPublicKey"); err != nil {
		return nil, err
	}

	rowID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	identity := &model.Identity{
		ID:                rowID,
		IdentityPublicKey: reg.IdentityPublicKey,
		WalletAddress:     reg.WalletAddress,
		Nonce:             reg.Nonce,
		Signature:         reg.Signature,
		Status:            model.IdentityActive,
		CreatedAt:         createdAt.UTC(),
	}
	if err := s.repo.Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// LoadIdentitiesForWallet returns every identity registered for the wallet.
// More than one means the user onboarded on multiple devices and the caller
// must prompt for selection.
func (s *IdentityService) LoadIdentitiesForWallet(ctx context.Context, walletAddress string) ([]model.Identity, error) {
	if walletAddress == "" {
		return nil, fmt.Errorf("wallet address: %w", errs.ErrMalformedInput)
	}
	return s.repo.ListByWallet(ctx, walletAddress)
}

// GetIdentity loads a single registration by its public key handle. The
// status field tells callers whether the identity has been revoked.
func (s *IdentityService) GetIdentity(ctx context.Context, identityPublicKey string) (*model.Identity, error) {
	if identityPublicKey == "" {
		return nil, fmt.Errorf("identity public key: %w", errs.ErrMalformedInput)
	}
	return s.repo.GetByPublicKey(ctx, identityPublicKey)
}

// DecryptIdentityKeys re-derives the wrapping key via the same deterministic
// wallet signature, fetches the encrypted root key blob and decrypts it. The
// recovered private key must reproduce the requested public key; anything
// else is ErrCorruptIdentity.
func (s *IdentityService) DecryptIdentityKeys(ctx context.Context, signer WalletSigner, identityPublicKey string) (*model.SessionKeys, error) {
	walletSig, err := signer.SignMessage(ctx, walletMessage(signer.Address()))
	if err != nil {
		return nil, fmt.Errorf("wallet signature: %w", err)
	}
	wrapKey, err := keywrap.DeriveWrappingKey(walletSig)
	if err != nil {
		return nil, err
	}

	blob, err := s.store.Download(ctx, objstore.RootKeyPath(identityPublicKey, signer.Address()))
	if err != nil {
		return nil, err
	}
	var rootFile map[string]any
	if err := json.Unmarshal(blob, &rootFile); err != nil {
		return nil, fmt.Errorf("root key file: %w", errs.ErrCorruptIdentity)
	}
	if err := envelope.Validate(rootFile, "identityPublicKey"); err != nil {
		return nil, fmt.Errorf("root key file: %w", errs.ErrCorruptIdentity)
	}
	encoded, _ := rootFile["encryptedRootKey"].(string)
	wrapped, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("root key blob: %w", errs.ErrCorruptIdentity)
	}

	priv, err := keywrap.Unwrap(wrapKey, wrapped)
	if err != nil {
		return nil, fmt.Errorf("unwrap: %w", errs.ErrCorruptIdentity)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("key length: %w", errs.ErrCorruptIdentity)
	}
	key := ed25519.PrivateKey(priv)
	if hex.EncodeToString(key.Public().(ed25519.PublicKey)) != identityPublicKey {
		return nil, fmt.Errorf("public key mismatch: %w", errs.ErrCorruptIdentity)
	}
	return &model.SessionKeys{PublicKey: identityPublicKey, Private: key}, nil
}

// RevokeIdentity marks the identity revoked. History stays in place so fid
// link staleness checks can still see it.
func (s *IdentityService) RevokeIdentity(ctx context.Context, identityPublicKey string) error {
	if identityPublicKey == "" {
		return fmt.Errorf("identity public key: %w", errs.ErrMalformedInput)
	}
	return s.repo.Revoke(ctx, identityPublicKey)
}

// remarshal copies src into dst through JSON, used to project envelopes back
// onto typed wire structs.
func remarshal(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
