// Package client is the JSON client for the spacesync registry API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/service"
)

// Client talks to one registry server.
type Client struct {
	base string
	http *http.Client
}

// New constructs a client for the given base URL.
func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// identityRecord mirrors the API's identity response shape.
type identityRecord struct {
	ID                string `json:"id"`
	IdentityPublicKey string `json:"identityPublicKey"`
	WalletAddress     string `json:"walletAddress"`
	Nonce             string `json:"nonce"`
	Signature         string `json:"signature"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
}

func (r identityRecord) toModel() (model.Identity, error) {
	id, err := uuid.FromString(r.ID)
	if err != nil {
		return model.Identity{}, fmt.Errorf("identity record id: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return model.Identity{}, fmt.Errorf("identity record createdAt: %w", err)
	}
	return model.Identity{
		ID:                id,
		IdentityPublicKey: r.IdentityPublicKey,
		WalletAddress:     r.WalletAddress,
		Nonce:             r.Nonce,
		Signature:         r.Signature,
		Status:            model.IdentityStatus(r.Status),
		CreatedAt:         createdAt,
	}, nil
}

// fidLinkRecord mirrors the API's fid link response shape.
type fidLinkRecord struct {
	Fid                       int64  `json:"fid"`
	IdentityPublicKey         string `json:"identityPublicKey"`
	SigningPublicKey          string `json:"signingPublicKey"`
	Signature                 string `json:"signature"`
	Created                   string `json:"created"`
	IsSigningKeyValid         bool   `json:"isSigningKeyValid"`
	SigningKeyLastValidatedAt string `json:"signingKeyLastValidatedAt"`
}

func (r fidLinkRecord) toModel() (model.FidLink, error) {
	created, err := time.Parse(time.RFC3339, r.Created)
	if err != nil {
		return model.FidLink{}, fmt.Errorf("fid link created: %w", err)
	}
	validated, err := time.Parse(time.RFC3339, r.SigningKeyLastValidatedAt)
	if err != nil {
		return model.FidLink{}, fmt.Errorf("fid link validated at: %w", err)
	}
	return model.FidLink{
		Fid:                       r.Fid,
		IdentityPublicKey:         r.IdentityPublicKey,
		SigningPublicKey:          r.SigningPublicKey,
		Signature:                 r.Signature,
		Created:                   created,
		IsSigningKeyValid:         r.IsSigningKeyValid,
		SigningKeyLastValidatedAt: validated,
	}, nil
}

// apiError maps a non-2xx response onto the shared sentinels so callers can
// errors.Is against the same errors the services return.
func apiError(status int, message string) error {
	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = errs.ErrMalformedInput
	case http.StatusUnauthorized:
		sentinel = errs.ErrInvalidSignature
	case http.StatusNotFound:
		sentinel = errs.ErrNotFound
	case http.StatusConflict:
		if message == errs.ErrAlreadyExists.Error() {
			sentinel = errs.ErrAlreadyExists
		} else {
			sentinel = errs.ErrStaleWrite
		}
	default:
		return fmt.Errorf("registry returned %d: %s", status, message)
	}
	return fmt.Errorf("registry returned %d: %w", status, sentinel)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return apiError(resp.StatusCode, errResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterIdentity submits a self-signed registration and returns the stored
// record.
func (c *Client) RegisterIdentity(ctx context.Context, reg service.IdentityRegistration) (*model.Identity, error) {
	var rec identityRecord
	if err := c.do(ctx, http.MethodPost, "/api/identities", reg, &rec); err != nil {
		return nil, err
	}
	id, err := rec.toModel()
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// GetIdentity fetches one registration by public key. Revoked identities are
// returned with their status, not hidden.
func (c *Client) GetIdentity(ctx context.Context, identityPublicKey string) (*model.Identity, error) {
	var rec identityRecord
	path := "/api/identities/" + url.PathEscape(identityPublicKey)
	if err := c.do(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return nil, err
	}
	id, err := rec.toModel()
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ListIdentities returns the identities registered for a wallet.
func (c *Client) ListIdentities(ctx context.Context, wallet string) ([]model.Identity, error) {
	var out struct {
		Identities []identityRecord `json:"identities"`
	}
	path := "/api/identities?wallet=" + url.QueryEscape(wallet)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	ids := make([]model.Identity, 0, len(out.Identities))
	for _, rec := range out.Identities {
		id, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LinkFid submits a signed link request and returns the stored record.
func (c *Client) LinkFid(ctx context.Context, req service.LinkRequest) (*model.FidLink, error) {
	var rec fidLinkRecord
	if err := c.do(ctx, http.MethodPost, "/api/fid-links", req, &rec); err != nil {
		return nil, err
	}
	link, err := rec.toModel()
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// LookupFids returns the fids linked to an identity.
func (c *Client) LookupFids(ctx context.Context, identityPublicKey string) ([]int64, error) {
	var out struct {
		Fids []int64 `json:"fids"`
	}
	path := "/api/fid-links?identityPublicKey=" + url.QueryEscape(identityPublicKey)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Fids, nil
}
