package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spacehost/spacesync/internal/envelope"
	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/repository"
)

// SignerRegistry is the external social-network collaborator that confirms a
// key is an authorized signer for a Farcaster account.
type SignerRegistry interface {
	IsAuthorizedSigner(ctx context.Context, fid int64, signingPublicKey string) (bool, error)
}

// LinkRequest is the client-signed wire payload binding a fid to an identity.
// The signature covers the canonical form of all other fields and verifies
// against SigningPublicKey.
type LinkRequest struct {
	Fid               int64  `json:"fid"`
	IdentityPublicKey string `json:"identityPublicKey"`
	Timestamp         string `json:"timestamp"`
	Signature         string `json:"signature"`
	SigningPublicKey  string `json:"signingPublicKey"`
}

// FidLinkService maintains the fid-to-identity binding with replay protection.
type FidLinkService struct {
	repo    repository.FidLinkRepository
	signers SignerRegistry
	log     *zap.Logger
	now     func() time.Time
}

// NewFidLinkService constructs a FidLinkService.
func NewFidLinkService(repo repository.FidLinkRepository, signers SignerRegistry, log *zap.Logger) *FidLinkService {
	return &FidLinkService{repo: repo, signers: signers, log: log, now: time.Now}
}

// Link validates and applies a link request. Per fid the state machine is
// Unlinked -> Linked(identity, created); a transition is accepted only when
// causally at least as new as the stored one, otherwise ErrStaleWrite.
func (s *FidLinkService) Link(ctx context.Context, req LinkRequest) (*model.FidLink, error) {
	if req.Fid <= 0 || req.IdentityPublicKey == "" || req.SigningPublicKey == "" {
		return nil, fmt.Errorf("link request: %w", errs.ErrMalformedInput)
	}
	created, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("link request timestamp: %w", errs.ErrMalformedInput)
	}

	if err := envelope.Validate(req, "signingPublicKey"); err != nil {
		return nil, err
	}
	authorized, err := s.signers.IsAuthorizedSigner(ctx, req.Fid, req.SigningPublicKey)
	if err != nil {
		return nil, fmt.Errorf("signer registry: %w", err)
	}
	if !authorized {
		// Unauthorized signer is reported exactly like a bad signature.
		return nil, errs.ErrInvalidSignature
	}

	link := &model.FidLink{
		Fid:                       req.Fid,
		IdentityPublicKey:         req.IdentityPublicKey,
		SigningPublicKey:          req.SigningPublicKey,
		Signature:                 req.Signature,
		Created:                   created.UTC(),
		IsSigningKeyValid:         true,
		SigningKeyLastValidatedAt: s.now().UTC(),
	}
	if err := s.repo.UpsertNewer(ctx, link); err != nil {
		return nil, err
	}

	s.log.Info("fid linked",
		zap.Int64("fid", req.Fid),
		zap.String("identityPublicKey", req.IdentityPublicKey),
	)
	return link, nil
}

// LookupFids returns all fids currently linked to the identity with a valid
// signing key. Signatures are trusted from write time and not re-verified.
func (s *FidLinkService) LookupFids(ctx context.Context, identityPublicKey string) ([]int64, error) {
	if identityPublicKey == "" {
		return nil, fmt.Errorf("lookup fids: %w", errs.ErrMalformedInput)
	}
	links, err := s.repo.ListByIdentity(ctx, identityPublicKey)
	if err != nil {
		return nil, err
	}
	fids := make([]int64, 0, len(links))
	for _, l := range links {
		fids = append(fids, l.Fid)
	}
	return fids, nil
}
