package provision

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctforge/blockchain/types"
	"acctforge/internal/keys"
)

type fakeChainClient struct {
	accounts  map[string]*types.Account
	createErr error
	created   []types.CreateAccountParams
}

func (f *fakeChainClient) GetBlock(ctx context.Context, height uint32) (*types.Block, error) {
	return nil, nil
}

func (f *fakeChainClient) GetDynamicGlobalProperties(ctx context.Context) (*types.DynamicGlobalProperties, error) {
	return &types.DynamicGlobalProperties{}, nil
}

func (f *fakeChainClient) GetAccount(ctx context.Context, name string) (*types.Account, error) {
	return f.accounts[name], nil
}

func (f *fakeChainClient) CreateClaimedAccount(ctx context.Context, params types.CreateAccountParams) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, params)
	return "T1", nil
}

func (f *fakeChainClient) TransferWithMemo(ctx context.Context, from, to string, amount types.Asset, memo string) (string, error) {
	return "", errors.New("not supported in this fake")
}

func (f *fakeChainClient) Close() error { return nil }
func (f *fakeChainClient) Config() any  { return nil }

func newTestProvisioner(chain *fakeChainClient) *Provisioner {
	return New(chain, "creator", "STM", log.New(os.Stderr, "[TEST] ", log.LstdFlags))
}

func TestProvisionSuccess(t *testing.T) {
	chain := &fakeChainClient{accounts: map[string]*types.Account{}}
	p := newTestProvisioner(chain)

	result, err := p.Provision(context.Background(), "newuser1")
	require.NoError(t, err)

	assert.Equal(t, "newuser1", result.AccountName)
	assert.Equal(t, "T1", result.CreationTxID)
	assert.Len(t, result.Seed, 52)
	require.Len(t, result.Keys, 4)

	// The derivation is reproducible from the stored seed alone.
	assert.Equal(t, keys.DeriveAll("newuser1", result.Seed, "STM"), result.Keys)

	require.Len(t, chain.created, 1)
	params := chain.created[0]
	assert.Equal(t, "creator", params.Creator)
	assert.Equal(t, result.Keys[keys.RoleOwner].PublicKey, params.OwnerKey)
	assert.Equal(t, result.Keys[keys.RoleActive].PublicKey, params.ActiveKey)
	assert.Equal(t, result.Keys[keys.RolePosting].PublicKey, params.PostingKey)
	assert.Equal(t, result.Keys[keys.RoleMemo].PublicKey, params.MemoKey)
}

func TestProvisionNameTakenPreflight(t *testing.T) {
	chain := &fakeChainClient{accounts: map[string]*types.Account{
		"newuser1": {Name: "newuser1"},
	}}
	p := newTestProvisioner(chain)

	_, err := p.Provision(context.Background(), "newuser1")
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Empty(t, chain.created, "no broadcast for a taken name")
}

func TestProvisionMapsNetworkDuplicateRejection(t *testing.T) {
	// The pre-flight check is racy; the node's own rejection must map onto
	// the same failure.
	tests := []struct {
		name    string
		nodeErr string
	}{
		{"already exists wording", `assert exception: account "newuser1" already exists`},
		{"could not create wording", "could not create account named newuser1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &fakeChainClient{
				accounts:  map[string]*types.Account{},
				createErr: errors.New(tt.nodeErr),
			}
			p := newTestProvisioner(chain)

			_, err := p.Provision(context.Background(), "newuser1")
			assert.ErrorIs(t, err, ErrNameTaken)
		})
	}
}

func TestProvisionBroadcastFailureKeepsNodeError(t *testing.T) {
	chain := &fakeChainClient{
		accounts:  map[string]*types.Account{},
		createErr: errors.New("missing required active authority"),
	}
	p := newTestProvisioner(chain)

	_, err := p.Provision(context.Background(), "newuser1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNameTaken)
	assert.Contains(t, err.Error(), "missing required active authority")
}
