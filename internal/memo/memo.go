// Package memo implements the graphene encrypted-memo envelope: an ECDH
// shared secret between the sender's private memo key and the recipient's
// public memo key drives an AES-256-CBC cipher, and the result is wrapped in
// a base58 envelope starting with '#'.
package memo

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mr-tron/base58"

	"acctforge/internal/keys"
)

// EnvelopePrefix marks an encrypted memo on the wire.
const EnvelopePrefix = "#"

// Encode encrypts message from the holder of fromWIF to the holder of the
// private key behind toPublic, and returns the '#'-prefixed envelope.
func Encode(fromWIF, toPublic, message, addressPrefix string) (string, error) {
	priv, err := keys.DecodeWIF(fromWIF)
	if err != nil {
		return "", fmt.Errorf("failed to decode sender memo key: %w", err)
	}
	pub, err := keys.DecodePublicKey(toPublic, addressPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to decode recipient memo key: %w", err)
	}

	var nonceBytes [8]byte
	if _, err := rand.Read(nonceBytes[:]); err != nil {
		return "", fmt.Errorf("failed to draw memo nonce: %w", err)
	}
	nonce := binary.LittleEndian.Uint64(nonceBytes[:])

	encKey := encryptionKey(priv, pub, nonce)
	check := checksum(encKey)

	plain := lengthPrefixed([]byte(message))
	encrypted, err := aesEncrypt(encKey, plain)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.Write(priv.PubKey().SerializeCompressed())
	buf.Write(pub.SerializeCompressed())
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], nonce)
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint32(scratch[:4], check)
	buf.Write(scratch[:4])
	writeVarint(&buf, uint64(len(encrypted)))
	buf.Write(encrypted)

	return EnvelopePrefix + base58.Encode(buf.Bytes()), nil
}

// Decode decrypts a '#'-prefixed envelope using the private memo key of
// either endpoint.
func Decode(privateWIF, envelope, addressPrefix string) (string, error) {
	if !strings.HasPrefix(envelope, EnvelopePrefix) {
		return "", fmt.Errorf("memo envelope must start with %q", EnvelopePrefix)
	}
	data, err := base58.Decode(strings.TrimPrefix(envelope, EnvelopePrefix))
	if err != nil {
		return "", fmt.Errorf("failed to base58-decode memo envelope: %w", err)
	}
	if len(data) < 33+33+8+4+1 {
		return "", fmt.Errorf("memo envelope too short: %d bytes", len(data))
	}

	priv, err := keys.DecodeWIF(privateWIF)
	if err != nil {
		return "", fmt.Errorf("failed to decode private memo key: %w", err)
	}

	fromPub, err := btcec.ParsePubKey(data[0:33], btcec.S256())
	if err != nil {
		return "", fmt.Errorf("failed to parse sender key in envelope: %w", err)
	}
	toPub, err := btcec.ParsePubKey(data[33:66], btcec.S256())
	if err != nil {
		return "", fmt.Errorf("failed to parse recipient key in envelope: %w", err)
	}
	nonce := binary.LittleEndian.Uint64(data[66:74])
	check := binary.LittleEndian.Uint32(data[74:78])

	// Use the counterparty's public key: the shared secret is symmetric.
	other := fromPub
	if bytes.Equal(priv.PubKey().SerializeCompressed(), fromPub.SerializeCompressed()) {
		other = toPub
	}

	encKey := encryptionKey(priv, other, nonce)
	if checksum(encKey) != check {
		return "", fmt.Errorf("memo checksum mismatch: wrong key or corrupted envelope")
	}

	encrypted, _ := readVarintSlice(data[78:])
	if encrypted == nil {
		return "", fmt.Errorf("malformed memo cipher length")
	}

	plain, err := aesDecrypt(encKey, encrypted)
	if err != nil {
		return "", err
	}
	msg, ok := stripLengthPrefix(plain)
	if !ok {
		return "", fmt.Errorf("malformed decrypted memo payload")
	}
	return string(msg), nil
}

// encryptionKey derives the 64-byte AES key material from the ECDH shared
// secret and the memo nonce.
func encryptionKey(priv *btcec.PrivateKey, pub *btcec.PublicKey, nonce uint64) [64]byte {
	shared := btcec.GenerateSharedSecret(priv, pub)
	ss := sha512.Sum512(shared)
	seed := strconv.FormatUint(nonce, 10) + hex.EncodeToString(ss[:])
	return sha512.Sum512([]byte(seed))
}

func checksum(encKey [64]byte) uint32 {
	sum := sha256.Sum256(encKey[:])
	return binary.LittleEndian.Uint32(sum[:4])
}

func aesEncrypt(encKey [64]byte, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(encKey[:32])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memo cipher: %w", err)
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, encKey[32:48]).CryptBlocks(out, padded)
	return out, nil
}

func aesDecrypt(encKey [64]byte, encrypted []byte) ([]byte, error) {
	if len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("memo cipher length %d is not a multiple of the block size", len(encrypted))
	}
	block, err := aes.NewCipher(encKey[:32])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memo cipher: %w", err)
	}
	out := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, encKey[32:48]).CryptBlocks(out, encrypted)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty padded payload")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-pad], nil
}

func lengthPrefixed(msg []byte) []byte {
	var buf bytes.Buffer
	writeVarint(&buf, uint64(len(msg)))
	buf.Write(msg)
	return buf.Bytes()
}

func stripLengthPrefix(data []byte) ([]byte, bool) {
	length, n := binary.Uvarint(data)
	if n <= 0 || uint64(len(data)-n) < length {
		return nil, false
	}
	return data[n : n+int(length)], true
}

func writeVarint(buf *bytes.Buffer, v uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v)
	buf.Write(scratch[:n])
}

func readVarintSlice(data []byte) ([]byte, int) {
	length, n := binary.Uvarint(data)
	if n <= 0 || uint64(len(data)-n) < length {
		return nil, 0
	}
	return data[n : n+int(length)], n + int(length)
}
