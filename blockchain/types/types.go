package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Block is a signed block as returned by the condenser API.
type Block struct {
	Previous       string        `json:"previous"`
	Timestamp      string        `json:"timestamp"`
	Witness        string        `json:"witness"`
	TransactionIDs []string      `json:"transaction_ids"`
	Transactions   []Transaction `json:"transactions"`
}

// Transaction carries its operations in block order. The same shape is used
// for transactions read out of blocks and for transactions built locally for
// broadcast.
type Transaction struct {
	RefBlockNum    uint16        `json:"ref_block_num"`
	RefBlockPrefix uint32        `json:"ref_block_prefix"`
	Expiration     string        `json:"expiration"`
	Operations     []Operation   `json:"operations"`
	Extensions     []interface{} `json:"extensions"`
	Signatures     []string      `json:"signatures,omitempty"`
}

// Operation is the ["name", {body}] tuple used by the condenser API.
type Operation struct {
	Name string
	Body json.RawMessage
}

// UnmarshalJSON decodes the two-element operation tuple.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("operation tuple must have 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &o.Name); err != nil {
		return fmt.Errorf("failed to decode operation name: %w", err)
	}
	o.Body = tuple[1]
	return nil
}

// MarshalJSON re-encodes the operation as its tuple form.
func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{o.Name, o.Body})
}

// NewOperation builds an Operation from a name and a JSON-serializable body.
func NewOperation(name string, body interface{}) (Operation, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Operation{}, fmt.Errorf("failed to marshal %s operation body: %w", name, err)
	}
	return Operation{Name: name, Body: raw}, nil
}

// CustomJSONOperation is the payload of a "custom_json" operation. The first
// posting (or active) auth identifies the signer and therefore the requester.
type CustomJSONOperation struct {
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	ID                   string   `json:"id"`
	JSON                 string   `json:"json"`
}

// Signer returns the account that authorized the operation, preferring the
// posting authority. Empty string when the operation carries no auths.
func (op *CustomJSONOperation) Signer() string {
	if len(op.RequiredPostingAuths) > 0 {
		return op.RequiredPostingAuths[0]
	}
	if len(op.RequiredAuths) > 0 {
		return op.RequiredAuths[0]
	}
	return ""
}

// Authority is a weighted key/account authority attached to an account role.
type Authority struct {
	WeightThreshold uint32          `json:"weight_threshold"`
	AccountAuths    [][]interface{} `json:"account_auths"`
	KeyAuths        [][]interface{} `json:"key_auths"`
}

// SingleKeyAuthority builds the common single-key authority with weight 1.
func SingleKeyAuthority(publicKey string) Authority {
	return Authority{
		WeightThreshold: 1,
		AccountAuths:    [][]interface{}{},
		KeyAuths:        [][]interface{}{{publicKey, 1}},
	}
}

// CreateAccountParams names the four role public keys of the account to be
// created, plus the creator paying with a claimed-account credit.
type CreateAccountParams struct {
	Creator        string
	NewAccountName string
	OwnerKey       string
	ActiveKey      string
	PostingKey     string
	MemoKey        string
	JSONMetadata   string
}

// Account is the subset of on-chain account state the service consumes.
type Account struct {
	ID                     int64  `json:"id"`
	Name                   string `json:"name"`
	MemoKey                string `json:"memo_key"`
	Balance                Asset  `json:"balance"`
	PendingClaimedAccounts int64  `json:"pending_claimed_accounts"`
}

// DynamicGlobalProperties is the subset of chain head state needed for
// transaction reference fields.
type DynamicGlobalProperties struct {
	HeadBlockNumber uint32 `json:"head_block_number"`
	HeadBlockID     string `json:"head_block_id"`
	Time            string `json:"time"`
}

// Asset is a chain-native amount with its symbol, serialized in the legacy
// "1.234 SYM" string form the condenser API expects.
type Asset struct {
	Amount    int64 // in base units, i.e. 10^-Precision of a whole token
	Precision uint8
	Symbol    string
}

func (a Asset) String() string {
	scale := int64(1)
	for i := uint8(0); i < a.Precision; i++ {
		scale *= 10
	}
	whole := a.Amount / scale
	frac := a.Amount % scale
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%0*d %s", whole, int(a.Precision), frac, a.Symbol)
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAsset(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAsset parses the legacy "1.234 SYM" asset string.
func ParseAsset(s string) (Asset, error) {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) != 2 {
		return Asset{}, fmt.Errorf("malformed asset string %q", s)
	}
	numParts := strings.SplitN(parts[0], ".", 2)
	frac := ""
	if len(numParts) == 2 {
		frac = numParts[1]
	}
	raw := numParts[0] + frac
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Asset{}, fmt.Errorf("malformed asset amount %q: %w", parts[0], err)
	}
	return Asset{Amount: amount, Precision: uint8(len(frac)), Symbol: parts[1]}, nil
}

// LessThan compares two amounts of the same symbol, scaling both to a
// common precision first so "1 HIVE" and "1.000 HIVE" compare equal.
// Assets of different symbols have no ordering and report false; callers
// that need an ordering must check Symbol themselves.
func (a Asset) LessThan(other Asset) bool {
	if a.Symbol != other.Symbol {
		return false
	}
	x, y := a.Amount, other.Amount
	for p := a.Precision; p < other.Precision; p++ {
		x *= 10
	}
	for p := other.Precision; p < a.Precision; p++ {
		y *= 10
	}
	return x < y
}
