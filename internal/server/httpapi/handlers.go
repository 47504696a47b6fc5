// Package httpapi is the JSON registry surface: identity registrations and
// fid links, both server-side re-verified before they are stored.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spacehost/spacesync/internal/limiter"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/service"
)

// Handler bundles the registry services behind the HTTP endpoints.
type Handler struct {
	identities *service.IdentityService
	links      *service.FidLinkService
	writes     limiter.Limiter
	log        *zap.Logger
}

// NewHandler constructs the API handler. writes may be nil to disable
// throttling.
func NewHandler(identities *service.IdentityService, links *service.FidLinkService, writes limiter.Limiter, log *zap.Logger) *Handler {
	return &Handler{identities: identities, links: links, writes: writes, log: log}
}

// identityResponse is the identity registration row in API responses.
type identityResponse struct {
	ID                string `json:"id"`
	IdentityPublicKey string `json:"identityPublicKey"`
	WalletAddress     string `json:"walletAddress"`
	Nonce             string `json:"nonce"`
	Signature         string `json:"signature"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
}

func toIdentityResponse(id *model.Identity) identityResponse {
	return identityResponse{
		ID:                id.ID.String(),
		IdentityPublicKey: id.IdentityPublicKey,
		WalletAddress:     id.WalletAddress,
		Nonce:             id.Nonce,
		Signature:         id.Signature,
		Status:            string(id.Status),
		CreatedAt:         id.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// fidLinkResponse is the stored fid registration echoed back to the caller.
type fidLinkResponse struct {
	Fid                       int64  `json:"fid"`
	IdentityPublicKey         string `json:"identityPublicKey"`
	SigningPublicKey          string `json:"signingPublicKey"`
	Signature                 string `json:"signature"`
	Created                   string `json:"created"`
	IsSigningKeyValid         bool   `json:"isSigningKeyValid"`
	SigningKeyLastValidatedAt string `json:"signingKeyLastValidatedAt"`
}

func toFidLinkResponse(link *model.FidLink) fidLinkResponse {
	return fidLinkResponse{
		Fid:                       link.Fid,
		IdentityPublicKey:         link.IdentityPublicKey,
		SigningPublicKey:          link.SigningPublicKey,
		Signature:                 link.Signature,
		Created:                   link.Created.UTC().Format(time.RFC3339),
		IsSigningKeyValid:         link.IsSigningKeyValid,
		SigningKeyLastValidatedAt: link.SigningKeyLastValidatedAt.UTC().Format(time.RFC3339),
	}
}

// throttle runs the write limiter for the subject; it reports whether the
// request may proceed and writes the 429 itself when not. Limiter failures
// never take the registry down; they are logged and the write proceeds.
func (h *Handler) throttle(w http.ResponseWriter, r *http.Request, subject string) bool {
	if h.writes == nil {
		return true
	}
	ok, retryAfter, err := h.writes.Allow(r.Context(), subject, limiter.HashIP(r.RemoteAddr))
	if err != nil {
		h.log.Warn("write limiter unavailable", zap.Error(err))
		return true
	}
	if !ok {
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		}
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// HandleRegisterIdentity handles POST /api/identities.
func (h *Handler) HandleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	var reg service.IdentityRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.throttle(w, r, reg.WalletAddress) {
		return
	}

	id, err := h.identities.Register(r.Context(), reg)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(id))
}

// HandleListIdentities handles GET /api/identities?wallet=0x...
func (h *Handler) HandleListIdentities(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		respondWithError(w, http.StatusBadRequest, "wallet is required")
		return
	}

	ids, err := h.identities.LoadIdentitiesForWallet(r.Context(), wallet)
	if err != nil {
		respondMapped(w, err)
		return
	}
	out := make([]identityResponse, 0, len(ids))
	for i := range ids {
		out = append(out, toIdentityResponse(&ids[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"identities": out})
}

// HandleGetIdentity handles GET /api/identities/{identityPublicKey}. Revoked
// identities are still returned; the status field carries their state.
func (h *Handler) HandleGetIdentity(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "identityPublicKey")
	id, err := h.identities.GetIdentity(r.Context(), key)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(id))
}

// HandleLinkFid handles POST /api/fid-links.
func (h *Handler) HandleLinkFid(w http.ResponseWriter, r *http.Request) {
	var req service.LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.throttle(w, r, req.IdentityPublicKey) {
		return
	}

	link, err := h.links.Link(r.Context(), req)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toFidLinkResponse(link))
}

// HandleLookupFids handles GET /api/fid-links?identityPublicKey=...
func (h *Handler) HandleLookupFids(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("identityPublicKey")
	if key == "" {
		respondWithError(w, http.StatusBadRequest, "identityPublicKey is required")
		return
	}

	fids, err := h.links.LookupFids(r.Context(), key)
	if err != nil {
		respondMapped(w, err)
		return
	}
	if fids == nil {
		fids = []int64{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"fids": fids})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
