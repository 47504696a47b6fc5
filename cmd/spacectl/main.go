// Command spacectl is a CLI client for the spacesync registry.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spacehost/spacesync/internal/client"
	"github.com/spacehost/spacesync/internal/envelope"
	"github.com/spacehost/spacesync/internal/model"
	"github.com/spacehost/spacesync/internal/objstore/fsstore"
	"github.com/spacehost/spacesync/internal/service"
	"github.com/spacehost/spacesync/internal/space"
)

// ---- config/wallet store ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "spacesync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "spacesync")
}

func walletPath() string { return filepath.Join(cfgDir(), "wallet.key") }

// walletSigner is a development wallet backed by a local ed25519 key.
// Signatures are deterministic, which the key-wrapping derivation requires.
type walletSigner struct {
	priv ed25519.PrivateKey
}

func (w *walletSigner) Address() string {
	return "0x" + hex.EncodeToString(w.priv.Public().(ed25519.PublicKey))
}

func (w *walletSigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	return ed25519.Sign(w.priv, message), nil
}

func generateWallet() (*walletSigner, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(walletPath(), []byte(hex.EncodeToString(priv.Seed())), 0o600); err != nil {
		return nil, err
	}
	return &walletSigner{priv: priv}, nil
}

func loadWallet() (*walletSigner, error) {
	b, err := os.ReadFile(walletPath())
	if err != nil {
		return nil, errors.New("no wallet key (run wallet-init first)")
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, errors.New("wallet key file corrupted")
	}
	return &walletSigner{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `spacectl CLI
Usage:
  spacectl [-addr URL] [-data DIR] <cmd> [args]

Commands:
  version
  wallet-init                                       (generates a dev wallet key)
  identity-create                                   (forge keys, store root key, register)
  identity-list    [-wallet 0x..]
  identity-show    -identity <pk>                   (registration incl. revocation status)
  identity-unlock  -identity <pk>                   (verify root key recovery)
  prekey-issue     -identity <pk> -prekey <pk>
  prekey-list      -identity <pk>
  fid-link         -identity <pk> -fid <n>
  fid-list         -identity <pk>
  space-show       -space <id> -identity <pk>
  tab-add          -space <id> -identity <pk> -name <tab> -file <config.json>
  tab-rm           -space <id> -identity <pk> -name <tab>
  tab-mv           -space <id> -identity <pk> -name <tab> -to <new>
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// unlock re-derives the session keys for an identity from the wallet.
func unlock(ctx context.Context, svc *service.IdentityService, wallet *walletSigner, identityPub string) (*model.SessionKeys, error) {
	if identityPub == "" {
		return nil, errors.New("need -identity")
	}
	return svc.DecryptIdentityKeys(ctx, wallet, identityPub)
}

// spaceStore opens the local space store for a session. Debounce is off; the
// CLI commits explicitly.
func spaceStore(remote *fsstore.Store, keys *model.SessionKeys, log *zap.Logger) *space.Store {
	return space.New(remote, keys, log, space.Policy{}, 0)
}

// main dispatches subcommands against the registry and the local data dir.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "registry base URL")
	dataDir := flag.String("data", filepath.Join(cfgDir(), "objects"), "object storage directory")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	store, err := fsstore.New(*dataDir)
	if err != nil {
		fail(err)
	}
	api := client.New(*addr)
	identitySvc := service.NewIdentityService(client.NewIdentityRepo(api), store, logger)
	prekeySvc := service.NewPreKeyService(store, logger)

	switch cmd {

	case "version":
		fmt.Printf("spacectl %s (%s)\n", version, buildDate)

	case "wallet-init":
		if _, err := os.Stat(walletPath()); err == nil {
			fail(errors.New("wallet key already exists"))
		}
		w, err := generateWallet()
		if err != nil {
			fail(err)
		}
		fmt.Println(w.Address())

	case "identity-create":
		wallet, err := loadWallet()
		if err != nil {
			fail(err)
		}
		identity, keys, err := identitySvc.CreateIdentity(ctx, wallet)
		if err != nil {
			fail(err)
		}
		printJSON(map[string]any{
			"identityPublicKey": keys.PublicKey,
			"walletAddress":     identity.WalletAddress,
			"status":            identity.Status,
		})

	case "identity-list":
		fs := flag.NewFlagSet("identity-list", flag.ExitOnError)
		walletAddr := fs.String("wallet", "", "wallet address (default: own wallet)")
		_ = fs.Parse(flag.Args()[1:])
		if *walletAddr == "" {
			wallet, err := loadWallet()
			if err != nil {
				fail(err)
			}
			*walletAddr = wallet.Address()
		}
		ids, err := identitySvc.LoadIdentitiesForWallet(ctx, *walletAddr)
		if err != nil {
			fail(err)
		}
		printJSON(ids)

	case "identity-show":
		fs := flag.NewFlagSet("identity-show", flag.ExitOnError)
		identityPub := fs.String("identity", "", "identity public key")
		_ = fs.Parse(flag.Args()[1:])
		if *identityPub == "" {
			fail(errors.New("need -identity"))
		}
		id, err := identitySvc.GetIdentity(ctx, *identityPub)
		if err != nil {
			fail(err)
		}
		printJSON(id)

	case "identity-unlock":
		fs := flag.NewFlagSet("identity-unlock", flag.ExitOnError)
		identityPub := fs.String("identity", "", "identity public key")
		_ = fs.Parse(flag.Args()[1:])
		wallet, err := loadWallet()
		if err != nil {
			fail(err)
		}
		keys, err := unlock(ctx, identitySvc, wallet, *identityPub)
		if err != nil {
			fail(err)
		}
		fmt.Println("ok", keys.PublicKey)

	case "prekey-issue":
		fs := flag.NewFlagSet("prekey-issue", flag.ExitOnError)
		identityPub := fs.String("identity", "", "identity public key")
		prekeyPub := fs.String("prekey", "", "prekey public key (hex)")
		_ = fs.Parse(flag.Args()[1:])
		if *prekeyPub == "" {
			fail(errors.New("need -prekey"))
		}
		wallet, err := loadWallet()
		if err != nil {
			fail(err)
		}
		keys, err := unlock(ctx, identitySvc, wallet, *identityPub)
		if err != nil {
			fail(err)
		}
		env, err := prekeySvc.IssuePrekey(ctx, keys, *prekeyPub)
		if err != nil {
			fail(err)
		}
		printJSON(env)

	case "prekey-list":
		fs := flag.NewFlagSet("prekey-list", flag.ExitOnError)
		identityPub := fs.String("identity", "", "identity public key")
		_ = fs.Parse(flag.Args()[1:])
		if *identityPub == "" {
			fail(errors.New("need -identity"))
		}
		keys, err := prekeySvc.ListPrekeys(ctx, *identityPub)
		if err != nil {
			fail(err)
		}
		printJSON(keys)

	case "fid-link":
		fs := flag.NewFlagSet("fid-link", flag.ExitOnError)
		identityPub := fs.String("identity", "", "identity public key")
		fid := fs.Int64("fid", 0, "farcaster id")
		_ = fs.Parse(flag.Args()[1:])
		if *fid <= 0 {
			fail(errors.New("need -fid"))
		}
		wallet, err := loadWallet()
		if err != nil {
			fail(err)
		}
		keys, err := unlock(ctx, identitySvc, wallet, *identityPub)
		if err != nil {
			fail(err)
		}
		env, err := envelope.Sign(map[string]any{
			"fid":               *fid,
			"identityPublicKey": keys.PublicKey,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"signingPublicKey":  keys.PublicKey,
		}, keys.Private, "signingPublicKey")
		if err != nil {
			fail(err)
		}
		raw, err := json.Marshal(env)
		if err != nil {
			fail(err)
		}
		var req service.LinkRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			fail(err)
		}
		link, err := api.LinkFid(ctx, req)
		if err != nil {
			fail(err)
		}
		printJSON(link)

	case "fid-list":
		fs := flag.NewFlagSet("fid-list", flag.ExitOnError)
		identityPub := fs.String("identity", "", "identity public key")
		_ = fs.Parse(flag.Args()[1:])
		if *identityPub == "" {
			fail(errors.New("need -identity"))
		}
		fids, err := api.LookupFids(ctx, *identityPub)
		if err != nil {
			fail(err)
		}
		printJSON(fids)

	case "space-show":
		fs := flag.NewFlagSet("space-show", flag.ExitOnError)
		spaceID := fs.String("space", "", "space id")
		identityPub := fs.String("identity", "", "identity public key")
		_ = fs.Parse(flag.Args()[1:])
		if *spaceID == "" {
			fail(errors.New("need -space"))
		}
		wallet, err := loadWallet()
		if err != nil {
			fail(err)
		}
		keys, err := unlock(ctx, identitySvc, wallet, *identityPub)
		if err != nil {
			fail(err)
		}
		st := spaceStore(store, keys, logger)
		if err := st.LoadSpace(ctx, *spaceID); err != nil {
			fail(err)
		}
		tabs, order := st.GetCurrentSpaceConfig(*spaceID)
		printJSON(map[string]any{"order": order, "tabs": tabs})

	case "tab-add":
		fs := flag.NewFlagSet("tab-add", flag.ExitOnError)
		spaceID := fs.String("space", "", "space id")
		identityPub := fs.String("identity", "", "identity public key")
		name := fs.String("name", "", "tab name")
		file := fs.String("file", "", "config json (- for stdin)")
		_ = fs.Parse(flag.Args()[1:])
		if *spaceID == "" || *name == "" || *file == "" {
			fail(errors.New("need -space, -name and -file"))
		}
		raw, err := readAll(*file)
		if err != nil {
			fail(err)
		}
		var candidate any
		if err := json.Unmarshal(raw, &candidate); err != nil {
			fail(fmt.Errorf("config json: %w", err))
		}
		wallet, err := loadWallet()
		if err != nil {
			fail(err)
		}
		keys, err := unlock(ctx, identitySvc, wallet, *identityPub)
		if err != nil {
			fail(err)
		}
		st := spaceStore(store, keys, logger)
		if err := st.LoadSpace(ctx, *spaceID); err != nil {
			fail(err)
		}
		st.SaveLocalTab(*spaceID, *name, candidate)
		tabs, _ := st.GetCurrentSpaceConfig(*spaceID)
		if _, ok := tabs[*name]; !ok {
			fail(errors.New("config rejected by the sanitizer"))
		}
		if err := st.CommitAll(ctx, *spaceID); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "tab-rm":
		fs := flag.NewFlagSet("tab-rm", flag.ExitOnError)
		spaceID := fs.String("space", "", "space id")
		identityPub := fs.String("identity", "", "identity public key")
		name := fs.String("name", "", "tab name")
		_ = fs.Parse(flag.Args()[1:])
		if *spaceID == "" || *name == "" {
			fail(errors.New("need -space and -name"))
		}
		wallet, err := loadWallet()
		if err != nil {
			fail(err)
		}
		keys, err := unlock(ctx, identitySvc, wallet, *identityPub)
		if err != nil {
			fail(err)
		}
		st := spaceStore(store, keys, logger)
		if err := st.LoadSpace(ctx, *spaceID); err != nil {
			fail(err)
		}
		fallback, err := st.DeleteTab(ctx, *spaceID, *name)
		if err != nil {
			fail(err)
		}
		fmt.Println("ok", fallback)

	case "tab-mv":
		fs := flag.NewFlagSet("tab-mv", flag.ExitOnError)
		spaceID := fs.String("space", "", "space id")
		identityPub := fs.String("identity", "", "identity public key")
		name := fs.String("name", "", "tab name")
		to := fs.String("to", "", "new tab name")
		_ = fs.Parse(flag.Args()[1:])
		if *spaceID == "" || *name == "" || *to == "" {
			fail(errors.New("need -space, -name and -to"))
		}
		wallet, err := loadWallet()
		if err != nil {
			fail(err)
		}
		keys, err := unlock(ctx, identitySvc, wallet, *identityPub)
		if err != nil {
			fail(err)
		}
		st := spaceStore(store, keys, logger)
		if err := st.LoadSpace(ctx, *spaceID); err != nil {
			fail(err)
		}
		actual, err := st.RenameTab(ctx, *spaceID, *name, *to)
		if err != nil {
			fail(err)
		}
		fmt.Println("ok", actual)

	default:
		usage()
	}
}
