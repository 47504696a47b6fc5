package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/spacehost/spacesync/internal/errs"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/service"
)

func TestRegisterIdentity_RoundTrip(t *testing.T) {
	t.Parallel()
	rowID := uuid.Must(uuid.NewV4())
	var gotBody service.IdentityRegistration

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/identities" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                rowID.String(),
			"identityPublicKey": gotBody.IdentityPublicKey,
			"walletAddress":     gotBody.WalletAddress,
			"nonce":             gotBody.Nonce,
			"signature":         gotBody.Signature,
			"status":            "active",
			"createdAt":         gotBody.Timestamp,
		})
	}))
	defer srv.Close()

	reg := service.IdentityRegistration{
		IdentityPublicKey: "pk",
		WalletAddress:     "0xwallet",
		Nonce:             "n",
		Timestamp:         "2026-08-30T10:00:00Z",
		Signature:         "sig",
	}
	got, err := New(srv.URL).RegisterIdentity(context.Background(), reg)
	if err != nil {
		t.Fatalf("RegisterIdentity: %v", err)
	}
	if gotBody != reg {
		t.Fatalf("posted body mismatch: %+v", gotBody)
	}
	if got.ID != rowID || got.Status != model.IdentityActive {
		t.Fatalf("record: %+v", got)
	}
	if !got.CreatedAt.Equal(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("createdAt: %v", got.CreatedAt)
	}
}

func TestIdentityRepo_CreateRebuildsWireBody(t *testing.T) {
	t.Parallel()
	var gotBody service.IdentityRegistration

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                uuid.Must(uuid.NewV4()).String(),
			"identityPublicKey": gotBody.IdentityPublicKey,
			"walletAddress":     gotBody.WalletAddress,
			"nonce":             gotBody.Nonce,
			"signature":         gotBody.Signature,
			"status":            "active",
			"createdAt":         gotBody.Timestamp,
		})
	}))
	defer srv.Close()

	created := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	repo := NewIdentityRepo(New(srv.URL))
	err := repo.Create(context.Background(), &model.Identity{
		IdentityPublicKey: "pk",
		WalletAddress:     "0xwallet",
		Nonce:             "n",
		Signature:         "sig",
		CreatedAt:         created,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if gotBody.Timestamp != "2026-08-30T10:00:00Z" {
		t.Fatalf("timestamp not rebuilt from CreatedAt: %q", gotBody.Timestamp)
	}
	if gotBody.Signature != "sig" || gotBody.Nonce != "n" {
		t.Fatalf("body: %+v", gotBody)
	}
}

func TestGetIdentity_ByPublicKey(t *testing.T) {
	t.Parallel()
	rowID := uuid.Must(uuid.NewV4())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/identities/pk" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                rowID.String(),
			"identityPublicKey": "pk",
			"walletAddress":     "0xwallet",
			"nonce":             "n",
			"signature":         "sig",
			"status":            "revoked",
			"createdAt":         "2026-08-30T10:00:00Z",
		})
	}))
	defer srv.Close()

	got, err := NewIdentityRepo(New(srv.URL)).GetByPublicKey(context.Background(), "pk")
	if err != nil {
		t.Fatalf("GetByPublicKey: %v", err)
	}
	if got.ID != rowID || got.Status != model.IdentityRevoked {
		t.Fatalf("record: %+v", got)
	}

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": "error",
			"error":  map[string]any{"message": "not found"},
		})
	}))
	defer missing.Close()
	if _, err := New(missing.URL).GetIdentity(context.Background(), "ghost"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLinkFid_AndLookup(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/fid-links":
			var req service.LinkRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"fid":                       req.Fid,
				"identityPublicKey":         req.IdentityPublicKey,
				"signingPublicKey":          req.SigningPublicKey,
				"signature":                 req.Signature,
				"created":                   req.Timestamp,
				"isSigningKeyValid":         true,
				"signingKeyLastValidatedAt": req.Timestamp,
			})
		case r.Method == http.MethodGet && r.URL.Path == "/api/fid-links":
			if r.URL.Query().Get("identityPublicKey") != "pk" {
				t.Errorf("query: %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"fids": []int64{7, 42}})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	link, err := c.LinkFid(context.Background(), service.LinkRequest{
		Fid:               7,
		IdentityPublicKey: "pk",
		Timestamp:         "2026-08-30T10:00:00Z",
		Signature:         "sig",
		SigningPublicKey:  "spk",
	})
	if err != nil {
		t.Fatalf("LinkFid: %v", err)
	}
	if link.Fid != 7 || !link.IsSigningKeyValid {
		t.Fatalf("link: %+v", link)
	}

	fids, err := c.LookupFids(context.Background(), "pk")
	if err != nil {
		t.Fatalf("LookupFids: %v", err)
	}
	if len(fids) != 2 || fids[0] != 7 || fids[1] != 42 {
		t.Fatalf("fids: %v", fids)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status  int
		message string
		want    error
	}{
		{http.StatusBadRequest, "malformed input", errs.ErrMalformedInput},
		{http.StatusUnauthorized, "invalid signature", errs.ErrInvalidSignature},
		{http.StatusNotFound, "not found", errs.ErrNotFound},
		{http.StatusConflict, errs.ErrStaleWrite.Error(), errs.ErrStaleWrite},
		{http.StatusConflict, errs.ErrAlreadyExists.Error(), errs.ErrAlreadyExists},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": "error",
				"error":  map[string]string{"message": tc.message},
			})
		}))
		_, err := New(srv.URL).LookupFids(context.Background(), "pk")
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d %q: got %v, want %v", tc.status, tc.message, err, tc.want)
		}
	}
}
