package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Keypair is an in-memory ed25519 signing identity.
type Keypair struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// ParseKeypair accepts a Base58 secret key or a JSON byte array
// (the solana-keygen file format).
func ParseKeypair(secret string) (*Keypair, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("private key is required")
	}

	var raw []byte
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("failed to parse keypair bytes: %w", err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("keypair byte %d out of range: %d", i, v)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode private key: %w", err)
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
	case ed25519.SeedSize:
		raw = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("invalid private key length %d", len(raw))
	}

	privateKey := solana.PrivateKey(raw)
	return &Keypair{
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
	}, nil
}

// PublicKey returns the wallet's public key.
func (k *Keypair) PublicKey() solana.PublicKey {
	return k.publicKey
}

// Sign signs a serialized transaction message.
func (k *Keypair) Sign(payload []byte) (solana.Signature, error) {
	return k.privateKey.Sign(payload)
}

// ShortAddress returns the abbreviated address shown in logs.
func (k *Keypair) ShortAddress() string {
	full := k.publicKey.String()
	if len(full) <= 8 {
		return full
	}
	return full[:5] + "..." + full[len(full)-3:]
}
