// Package provision turns an approved account request into an on-chain
// account with freshly generated key material.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	blockchain "acctforge/blockchain/client"
	"acctforge/blockchain/types"
	"acctforge/internal/keys"
)

// ErrNameTaken is returned when the requested account name already exists,
// whether found by the pre-flight lookup or rejected by the network itself.
var ErrNameTaken = errors.New("account name already taken")

// Result carries everything generated for one provisioned account. The
// caller owns it until it is handed to the pending-credentials ledger.
type Result struct {
	AccountName  string
	Seed         string
	Keys         map[string]keys.KeyPair // role -> pair
	CreationTxID string
	CreatedAt    time.Time
}

// Provisioner derives deterministic key material from a random seed and
// submits the account creation transaction.
type Provisioner struct {
	chain         blockchain.ChainClient
	creator       string
	addressPrefix string
	logger        *log.Logger
}

// New creates a Provisioner.
func New(chain blockchain.ChainClient, creator, addressPrefix string, logger *log.Logger) *Provisioner {
	return &Provisioner{
		chain:         chain,
		creator:       creator,
		addressPrefix: addressPrefix,
		logger:        logger,
	}
}

// Provision creates accountName on chain. On any failure no token has been
// consumed and no pending record exists, so retrying the same request later
// is safe.
func (p *Provisioner) Provision(ctx context.Context, accountName string) (*Result, error) {
	// 1. Pre-flight name check. Racy against other creators; the network's
	// own duplicate rejection below is the backstop.
	existing, err := p.chain.GetAccount(ctx, accountName)
	if err != nil {
		return nil, fmt.Errorf("failed to check name availability for %s: %w", accountName, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, accountName)
	}

	// 2. Generate the master seed and derive all four role key pairs.
	seed, err := keys.NewSeed()
	if err != nil {
		return nil, fmt.Errorf("failed to generate seed for %s: %w", accountName, err)
	}
	pairs := keys.DeriveAll(accountName, seed, p.addressPrefix)

	// 3. Build and submit the creation transaction.
	txID, err := p.chain.CreateClaimedAccount(ctx, types.CreateAccountParams{
		Creator:        p.creator,
		NewAccountName: accountName,
		OwnerKey:       pairs[keys.RoleOwner].PublicKey,
		ActiveKey:      pairs[keys.RoleActive].PublicKey,
		PostingKey:     pairs[keys.RolePosting].PublicKey,
		MemoKey:        pairs[keys.RoleMemo].PublicKey,
		JSONMetadata:   "",
	})
	if err != nil {
		if isDuplicateAccountError(err) {
			return nil, fmt.Errorf("%w: %s", ErrNameTaken, accountName)
		}
		// Keep the node's error text verbatim for operator diagnosis.
		return nil, fmt.Errorf("account creation broadcast failed for %s: %w", accountName, err)
	}

	p.logger.Printf("Account %s created in tx %s", accountName, txID)
	return &Result{
		AccountName:  accountName,
		Seed:         seed,
		Keys:         pairs,
		CreationTxID: txID,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// isDuplicateAccountError maps the network's duplicate-name rejection onto
// ErrNameTaken so both detection paths fail identically.
func isDuplicateAccountError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "could not create account named")
}
