package blockchain

import (
	"context"

	"acctforge/blockchain/types"
)

// ChainClient defines the generic interface for ledger interactions.
// This interface is chain-agnostic and can be implemented by different
// blockchain clients.
type ChainClient interface {
	// GetBlock fetches the block at the given height. Returns (nil, nil)
	// when the block has not been produced yet.
	GetBlock(ctx context.Context, height uint32) (*types.Block, error)

	// GetDynamicGlobalProperties returns the current chain head state.
	GetDynamicGlobalProperties(ctx context.Context) (*types.DynamicGlobalProperties, error)

	// GetAccount looks up an account by name. Returns (nil, nil) when the
	// account does not exist.
	GetAccount(ctx context.Context, name string) (*types.Account, error)

	// CreateClaimedAccount broadcasts a create_claimed_account operation
	// signed with the creator's active key and returns the transaction id.
	CreateClaimedAccount(ctx context.Context, params types.CreateAccountParams) (string, error)

	// TransferWithMemo broadcasts a transfer carrying the given memo and
	// returns the transaction id.
	TransferWithMemo(ctx context.Context, from, to string, amount types.Asset, memo string) (string, error)

	// Close closes the chain client and releases resources.
	Close() error

	// Config returns the configuration associated with the client.
	Config() any // Return any to accommodate different config types
}
