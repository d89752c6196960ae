package keys

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// Account key roles, in canonical order.
const (
	RoleOwner   = "owner"
	RoleActive  = "active"
	RolePosting = "posting"
	RoleMemo    = "memo"
)

// Roles lists the four roles every account is created with.
var Roles = []string{RoleOwner, RoleActive, RolePosting, RoleMemo}

const (
	// seedPrefix marks generated master passwords by convention.
	seedPrefix = "P"

	// seedLength is the number of random characters after the prefix.
	seedLength = 51

	// seedAlphabet is the base58 alphabet: no 0, O, I or l, so a seed can
	// be transcribed without ambiguity.
	seedAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

	wifVersion = 0x80
)

// KeyPair holds one role's derived key pair in its canonical text encodings.
type KeyPair struct {
	PublicKey  string `json:"public_key"`
	PrivateWIF string `json:"private_wif"`
}

// NewSeed generates a cryptographically random master password.
func NewSeed() (string, error) {
	var sb strings.Builder
	sb.WriteString(seedPrefix)
	max := big.NewInt(int64(len(seedAlphabet)))
	for i := 0; i < seedLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to draw random seed character: %w", err)
		}
		sb.WriteByte(seedAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// DeriveKeyPair deterministically derives one role key pair from
// (account, role, seed). Same inputs always yield the same keys.
func DeriveKeyPair(account, role, seed, addressPrefix string) KeyPair {
	digest := sha256.Sum256([]byte(account + role + seed))
	priv, pub := btcec.PrivKeyFromBytes(btcec.S256(), digest[:])
	return KeyPair{
		PublicKey:  EncodePublicKey(pub, addressPrefix),
		PrivateWIF: EncodeWIF(priv),
	}
}

// DeriveAll derives the four role key pairs for an account.
func DeriveAll(account, seed, addressPrefix string) map[string]KeyPair {
	pairs := make(map[string]KeyPair, len(Roles))
	for _, role := range Roles {
		pairs[role] = DeriveKeyPair(account, role, seed, addressPrefix)
	}
	return pairs
}

// EncodePublicKey encodes a public key in the graphene text form:
// prefix + base58(compressed pubkey + ripemd160 checksum[0:4]).
func EncodePublicKey(pub *btcec.PublicKey, addressPrefix string) string {
	raw := pub.SerializeCompressed()
	h := ripemd160.New()
	h.Write(raw)
	sum := h.Sum(nil)
	return addressPrefix + base58.Encode(append(raw, sum[:4]...))
}

// DecodePublicKey parses the graphene text form back into a public key.
func DecodePublicKey(encoded, addressPrefix string) (*btcec.PublicKey, error) {
	if !strings.HasPrefix(encoded, addressPrefix) {
		return nil, fmt.Errorf("public key %q does not carry prefix %q", encoded, addressPrefix)
	}
	data, err := base58.Decode(strings.TrimPrefix(encoded, addressPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to base58-decode public key: %w", err)
	}
	if len(data) != 37 {
		return nil, fmt.Errorf("public key payload must be 37 bytes, got %d", len(data))
	}
	raw, check := data[:33], data[33:]
	h := ripemd160.New()
	h.Write(raw)
	if !bytes.Equal(h.Sum(nil)[:4], check) {
		return nil, fmt.Errorf("public key checksum mismatch")
	}
	pub, err := btcec.ParsePubKey(raw, btcec.S256())
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key point: %w", err)
	}
	return pub, nil
}

// EncodeWIF encodes a private key in wallet import format.
func EncodeWIF(priv *btcec.PrivateKey) string {
	payload := append([]byte{wifVersion}, priv.Serialize()...)
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return base58.Encode(append(payload, second[:4]...))
}

// DecodeWIF parses a wallet-import-format private key.
func DecodeWIF(wif string) (*btcec.PrivateKey, error) {
	data, err := base58.Decode(wif)
	if err != nil {
		return nil, fmt.Errorf("failed to base58-decode WIF: %w", err)
	}
	if len(data) != 37 {
		return nil, fmt.Errorf("WIF payload must be 37 bytes, got %d", len(data))
	}
	if data[0] != wifVersion {
		return nil, fmt.Errorf("unexpected WIF version byte 0x%02x", data[0])
	}
	payload, check := data[:33], data[33:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:4], check) {
		return nil, fmt.Errorf("WIF checksum mismatch")
	}
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), payload[1:])
	return priv, nil
}
