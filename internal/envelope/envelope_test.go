package envelope

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/spacehost/spacesync/internal/errs"
)

func testKeypair(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return hex.EncodeToString(pub), priv
}

func TestSignValidate_Roundtrip(t *testing.T) {
	t.Parallel()
	pubHex, priv := testKeypair(t)

	payload := map[string]any{
		"publicKey": pubHex,
		"fileData":  `{"a":1}`,
		"fileType":  "json",
		"timestamp": "2024-01-02T03:04:05Z",
	}
	env, err := Sign(payload, priv, "publicKey")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, ok := env[SignatureField].(string); !ok {
		t.Fatalf("envelope missing signature")
	}
	if err := Validate(env, "publicKey"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSignValidate_StructPayload(t *testing.T) {
	t.Parallel()
	pubHex, priv := testKeypair(t)

	type orderFile struct {
		SpaceID   string   `json:"spaceId"`
		TabOrder  []string `json:"tabOrder"`
		PublicKey string   `json:"publicKey"`
		Timestamp string   `json:"timestamp"`
	}
	env, err := Sign(orderFile{
		SpaceID:   "s1",
		TabOrder:  []string{"Profile", "Links"},
		PublicKey: pubHex,
		Timestamp: "2024-06-01T00:00:00Z",
	}, priv, "publicKey")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Validate(env, "publicKey"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RejectsMutation(t *testing.T) {
	t.Parallel()
	pubHex, priv := testKeypair(t)

	env, err := Sign(map[string]any{"publicKey": pubHex, "fileData": "x"}, priv, "publicKey")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	mutated := Envelope{}
	for k, v := range env {
		mutated[k] = v
	}
	mutated["fileData"] = "y"
	if err := Validate(mutated, "publicKey"); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("mutated field: want ErrInvalidSignature, got %v", err)
	}

	added := Envelope{}
	for k, v := range env {
		added[k] = v
	}
	added["extra"] = true
	if err := Validate(added, "publicKey"); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("added field: want ErrInvalidSignature, got %v", err)
	}
}

func TestCanonicalize_KeyOrderIndependent(t *testing.T) {
	t.Parallel()
	a := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"y": "v", "x": "u"}}
	b := map[string]any{"nested": map[string]any{"x": "u", "y": "v"}, "a": 1, "b": 2}

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("Canonicalize a: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("Canonicalize b: %v", err)
	}
	if !bytes.Equal(ca, cb) {
		t.Fatalf("canonical forms differ:\n%s\n%s", ca, cb)
	}
}

func TestCanonicalize_ExcludesFields(t *testing.T) {
	t.Parallel()
	with, err := Canonicalize(map[string]any{"a": 1, "signature": "s"}, "signature")
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	without, err := Canonicalize(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if !bytes.Equal(with, without) {
		t.Fatalf("exclude not applied: %s vs %s", with, without)
	}
}

func TestCanonicalize_PreservesNumberText(t *testing.T) {
	t.Parallel()
	out, err := Canonicalize(map[string]any{"n": 0.1, "big": int64(1) << 55})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	want := `{"big":36028797018963968,"n":0.1}`
	if string(out) != want {
		t.Fatalf("canonical=%s want=%s", out, want)
	}
}

func TestIsSignable(t *testing.T) {
	t.Parallel()
	ok := map[string]any{"signature": "ab", "publicKey": "cd"}
	if !IsSignable(ok, "publicKey") {
		t.Fatalf("valid shape rejected")
	}
	cases := []any{
		map[string]any{"publicKey": "cd"},                // no signature
		map[string]any{"signature": "ab"},                // no key field
		map[string]any{"signature": 5, "publicKey": "c"}, // non-string signature
		map[string]any{"signature": "a", "publicKey": 7}, // non-string key
		"not an object",
		nil,
	}
	for i, c := range cases {
		if IsSignable(c, "publicKey") {
			t.Fatalf("case %d: want not signable", i)
		}
	}
}

func TestValidate_UniformFailure(t *testing.T) {
	t.Parallel()
	pubHex, _ := testKeypair(t)
	_, otherPriv := func() (string, ed25519.PrivateKey) {
		_, p, _ := ed25519.GenerateKey(rand.Reader)
		return "", p
	}()

	wrongSigner, err := Sign(map[string]any{"publicKey": pubHex, "v": 1}, otherPriv, "publicKey")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	cases := []any{
		"not an object",
		map[string]any{"publicKey": pubHex},
		map[string]any{"publicKey": pubHex, "signature": "zz-not-hex"},
		map[string]any{"publicKey": "abcd", "signature": "00"}, // short key
		wrongSigner,
	}
	for i, c := range cases {
		if err := Validate(c, "publicKey"); !errors.Is(err, errs.ErrInvalidSignature) {
			t.Fatalf("case %d: want ErrInvalidSignature, got %v", i, err)
		}
	}
}

func TestSign_RequiresKeyField(t *testing.T) {
	t.Parallel()
	_, priv := testKeypair(t)
	if _, err := Sign(map[string]any{"v": 1}, priv, "publicKey"); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("want ErrMalformedInput, got %v", err)
	}
}
