package condenser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec"

	"acctforge/blockchain/types"
)

// chainTimeFormat is the expiration/timestamp layout used by the condenser
// API (UTC, no zone suffix).
const chainTimeFormat = "2006-01-02T15:04:05"

// Binary operation ids of the ops this client broadcasts.
const (
	opIDTransfer             = 2
	opIDCreateClaimedAccount = 23
)

// broadcastOp is an operation the client can both JSON-encode for the RPC
// call and binary-encode for the signing digest.
type broadcastOp interface {
	Name() string
	Body() interface{}
	Encode(e *encoder, addressPrefix string) error
}

type createClaimedAccountOp struct {
	Creator        string          `json:"creator"`
	NewAccountName string          `json:"new_account_name"`
	Owner          types.Authority `json:"owner"`
	Active         types.Authority `json:"active"`
	Posting        types.Authority `json:"posting"`
	MemoKey        string          `json:"memo_key"`
	JSONMetadata   string          `json:"json_metadata"`
	Extensions     []interface{}   `json:"extensions"`
}

func (op *createClaimedAccountOp) Name() string      { return "create_claimed_account" }
func (op *createClaimedAccountOp) Body() interface{} { return op }

func (op *createClaimedAccountOp) Encode(e *encoder, addressPrefix string) error {
	e.writeVarint(opIDCreateClaimedAccount)
	e.writeString(op.Creator)
	e.writeString(op.NewAccountName)
	for _, auth := range []types.Authority{op.Owner, op.Active, op.Posting} {
		if err := e.writeAuthority(auth, addressPrefix); err != nil {
			return fmt.Errorf("failed to encode authority for %s: %w", op.NewAccountName, err)
		}
	}
	if err := e.writePublicKey(op.MemoKey, addressPrefix); err != nil {
		return fmt.Errorf("failed to encode memo key for %s: %w", op.NewAccountName, err)
	}
	e.writeString(op.JSONMetadata)
	e.writeVarint(0) // extensions
	return nil
}

type transferOp struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Amount types.Asset `json:"amount"`
	Memo   string      `json:"memo"`
}

func (op *transferOp) Name() string      { return "transfer" }
func (op *transferOp) Body() interface{} { return op }

func (op *transferOp) Encode(e *encoder, _ string) error {
	e.writeVarint(opIDTransfer)
	e.writeString(op.From)
	e.writeString(op.To)
	if err := e.writeAsset(op.Amount); err != nil {
		return fmt.Errorf("failed to encode transfer amount: %w", err)
	}
	e.writeString(op.Memo)
	return nil
}

// buildSignedTransaction assembles a transaction referencing the current
// head block, serializes it, and signs it with the client's active key. The
// chain requires canonical signatures; non-canonical results are retried
// with the expiration shifted by one second, which changes the digest.
func (c *Client) buildSignedTransaction(dgp *types.DynamicGlobalProperties, ops []broadcastOp) (*types.Transaction, error) {
	refBlockNum := uint16(dgp.HeadBlockNumber & 0xFFFF)
	refBlockPrefix, err := refBlockPrefix(dgp.HeadBlockID)
	if err != nil {
		return nil, err
	}

	headTime, err := time.Parse(chainTimeFormat, dgp.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chain head time %q: %w", dgp.Time, err)
	}
	baseExpiration := headTime.Add(time.Duration(c.ccfg.ExpirationSeconds) * time.Second)

	chainID, err := hex.DecodeString(c.ccfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chain id: %w", err)
	}

	jsonOps := make([]types.Operation, 0, len(ops))
	for _, op := range ops {
		jo, err := types.NewOperation(op.Name(), op.Body())
		if err != nil {
			return nil, err
		}
		jsonOps = append(jsonOps, jo)
	}

	const maxCanonicalAttempts = 32
	for attempt := 0; attempt < maxCanonicalAttempts; attempt++ {
		expiration := baseExpiration.Add(time.Duration(attempt) * time.Second)
		tx := &types.Transaction{
			RefBlockNum:    refBlockNum,
			RefBlockPrefix: refBlockPrefix,
			Expiration:     expiration.UTC().Format(chainTimeFormat),
			Operations:     jsonOps,
			Extensions:     []interface{}{},
		}

		digest, err := signingDigest(chainID, tx, ops, c.ccfg.AddressPrefix, uint32(expiration.Unix()))
		if err != nil {
			return nil, err
		}

		sig, err := btcec.SignCompact(btcec.S256(), c.signingKey, digest, true)
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}
		if !isCanonicalSignature(sig) {
			continue
		}
		tx.Signatures = []string{hex.EncodeToString(sig)}
		return tx, nil
	}
	return nil, fmt.Errorf("failed to produce a canonical signature after %d attempts", maxCanonicalAttempts)
}

// signingDigest computes sha256(chainID || serialized transaction).
func signingDigest(chainID []byte, tx *types.Transaction, ops []broadcastOp, addressPrefix string, expirationUnix uint32) ([]byte, error) {
	e := &encoder{}
	e.buf.Write(chainID)
	e.writeUint16(tx.RefBlockNum)
	e.writeUint32(tx.RefBlockPrefix)
	e.writeUint32(expirationUnix)
	e.writeVarint(uint64(len(ops)))
	for _, op := range ops {
		if err := op.Encode(e, addressPrefix); err != nil {
			return nil, err
		}
	}
	e.writeVarint(0) // extensions
	digest := sha256.Sum256(e.bytes())
	return digest[:], nil
}

// refBlockPrefix extracts the little-endian uint32 at bytes 4..8 of the head
// block id.
func refBlockPrefix(headBlockID string) (uint32, error) {
	raw, err := hex.DecodeString(headBlockID)
	if err != nil {
		return 0, fmt.Errorf("failed to decode head block id %q: %w", headBlockID, err)
	}
	if len(raw) < 8 {
		return 0, fmt.Errorf("head block id %q too short", headBlockID)
	}
	return uint32(raw[4]) | uint32(raw[5])<<8 | uint32(raw[6])<<16 | uint32(raw[7])<<24, nil
}

// isCanonicalSignature applies the chain's canonicality rule to a 65-byte
// recoverable signature (header byte, then R and S).
func isCanonicalSignature(sig []byte) bool {
	if len(sig) != 65 {
		return false
	}
	return sig[1]&0x80 == 0 &&
		!(sig[1] == 0 && sig[2]&0x80 == 0) &&
		sig[33]&0x80 == 0 &&
		!(sig[33] == 0 && sig[34]&0x80 == 0)
}

// broadcastResult is the reply of broadcast_transaction_synchronous.
type broadcastResult struct {
	ID       string `json:"id"`
	BlockNum uint32 `json:"block_num"`
	TrxNum   int    `json:"trx_num"`
	Expired  bool   `json:"expired"`
}
