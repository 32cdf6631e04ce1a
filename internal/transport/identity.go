package transport

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// peerIDBytes is how much of the key digest survives into the peer id.
const peerIDBytes = 32

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Identity holds the node's long-term key pair and the peer id derived
// from it.
type Identity struct {
	PeerID     string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// DeriveID computes the stable peer id for a public key.
func DeriveID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return strings.ToLower(idEncoding.EncodeToString(sum[:peerIDBytes]))
}

// LoadOrCreateIdentity reads the node key from keyPath, generating and
// persisting a fresh one on first run. The key file holds the hex-encoded
// ed25519 seed and is created with mode 0600.
func LoadOrCreateIdentity(keyPath string) (*Identity, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read identity key: %w", err)
		}
		pub, priv, genErr := ed25519.GenerateKey(nil)
		if genErr != nil {
			return nil, fmt.Errorf("generate identity: %w", genErr)
		}
		encoded := hex.EncodeToString(priv.Seed())
		if writeErr := os.WriteFile(keyPath, []byte(encoded+"\n"), 0600); writeErr != nil {
			return nil, fmt.Errorf("store identity key: %w", writeErr)
		}
		return &Identity{PeerID: DeriveID(pub), PublicKey: pub, PrivateKey: priv}, nil
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode identity key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity key has invalid size %d", len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{PeerID: DeriveID(pub), PublicKey: pub, PrivateKey: priv}, nil
}
