package condenser

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"acctforge/blockchain/types"
	"acctforge/internal/keys"
)

// encoder writes the canonical graphene binary serialization used for
// transaction signing digests. Integers are little-endian; lengths and
// counts are unsigned LEB128 varints.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func (e *encoder) writeVarint(v uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v)
	e.buf.Write(scratch[:n])
}

func (e *encoder) writeString(s string) {
	e.writeVarint(uint64(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) writeUint16(v uint16) {
	var scratch [2]byte
	binary.LittleEndian.PutUint16(scratch[:], v)
	e.buf.Write(scratch[:])
}

func (e *encoder) writeUint32(v uint32) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	e.buf.Write(scratch[:])
}

func (e *encoder) writeUint64(v uint64) {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], v)
	e.buf.Write(scratch[:])
}

// writePublicKey writes the 33-byte compressed point of a text-form key.
func (e *encoder) writePublicKey(encoded, addressPrefix string) error {
	pub, err := keys.DecodePublicKey(encoded, addressPrefix)
	if err != nil {
		return err
	}
	e.buf.Write(pub.SerializeCompressed())
	return nil
}

// writeAuthority serializes a weighted authority: threshold, account auths,
// key auths.
func (e *encoder) writeAuthority(a types.Authority, addressPrefix string) error {
	e.writeUint32(a.WeightThreshold)
	e.writeVarint(uint64(len(a.AccountAuths)))
	for _, entry := range a.AccountAuths {
		name, weight, err := authEntry(entry)
		if err != nil {
			return fmt.Errorf("malformed account auth: %w", err)
		}
		e.writeString(name)
		e.writeUint16(weight)
	}
	e.writeVarint(uint64(len(a.KeyAuths)))
	for _, entry := range a.KeyAuths {
		key, weight, err := authEntry(entry)
		if err != nil {
			return fmt.Errorf("malformed key auth: %w", err)
		}
		if err := e.writePublicKey(key, addressPrefix); err != nil {
			return err
		}
		e.writeUint16(weight)
	}
	return nil
}

// writeAsset serializes an asset: int64 amount, precision byte, symbol name
// zero-padded to 7 bytes.
func (e *encoder) writeAsset(a types.Asset) error {
	if len(a.Symbol) > 7 {
		return fmt.Errorf("asset symbol %q longer than 7 bytes", a.Symbol)
	}
	e.writeUint64(uint64(a.Amount))
	e.buf.WriteByte(a.Precision)
	var symbol [7]byte
	copy(symbol[:], a.Symbol)
	e.buf.Write(symbol[:])
	return nil
}

func authEntry(entry []interface{}) (string, uint16, error) {
	if len(entry) != 2 {
		return "", 0, fmt.Errorf("auth entry must have 2 elements, got %d", len(entry))
	}
	name, ok := entry[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("auth entry key must be a string")
	}
	switch w := entry[1].(type) {
	case int:
		return name, uint16(w), nil
	case uint16:
		return name, w, nil
	case float64: // decoded from JSON
		return name, uint16(w), nil
	default:
		return "", 0, fmt.Errorf("auth entry weight has unsupported type %T", entry[1])
	}
}
