package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctforge/blockchain/types"
	"acctforge/config"
	"acctforge/internal/keys"
	"acctforge/storage/pending"
)

// fakeChainClient serves canned accounts and records memo transfers.
type fakeChainClient struct {
	accounts    map[string]*types.Account
	transferErr error
	transfers   []string
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
	return "", errors.New("not supported in this fake")
}

func (f *fakeChainClient) TransferWithMemo(ctx context.Context, from, to string, amount types.Asset, memo string) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transfers = append(f.transfers, memo)
	return fmt.Sprintf("memotx%d", len(f.transfers)), nil
}

func (f *fakeChainClient) Close() error { return nil }
func (f *fakeChainClient) Config() any  { return nil }

// fakeMailer records sent mail or fails on demand.
type fakeMailer struct {
	sendErr error
	sent    []string
}

func (m *fakeMailer) Send(to, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, to)
	return nil
}

type routerFixture struct {
	router *Router
	chain  *fakeChainClient
	mailer *fakeMailer
	rec    *pending.Record
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := log.New(os.Stderr, "[TEST] ", log.LstdFlags)

	creatorMemo := testMemoKeyPair(t, "creator")
	requesterMemo := testMemoKeyPair(t, "alice")

	chain := &fakeChainClient{accounts: map[string]*types.Account{
		"creator": {
			Name:    "creator",
			MemoKey: creatorMemo.PublicKey,
			Balance: types.Asset{Amount: 10000, Precision: 3, Symbol: "HIVE"},
		},
		"alice": {
			Name:    "alice",
			MemoKey: requesterMemo.PublicKey,
			Balance: types.Asset{Amount: 500, Precision: 3, Symbol: "HIVE"},
		},
	}}

	cfg := config.DeliveryConfig{
		CreatorAccount: "creator",
		Memo: config.MemoConfig{
			PrivateWIF:     creatorMemo.PrivateWIF,
			MinBalance:     "0.100 HIVE",
			TransferAmount: "0.001 HIVE",
		},
	}

	mailer := &fakeMailer{}
	router, err := NewRouter(chain, mailer, cfg, "STM", logger)
	require.NoError(t, err)

	seed, err := keys.NewSeed()
	require.NoError(t, err)
	rec := &pending.Record{
		AccountName:  "newuser1",
		Seed:         seed,
		Keys:         keys.DeriveAll("newuser1", seed, "STM"),
		CreationTxID: "T1",
		RequesterID:  "alice",
		CreatedAt:    time.Now().UTC(),
	}

	return &routerFixture{router: router, chain: chain, mailer: mailer, rec: rec}
}

func testMemoKeyPair(t *testing.T, account string) keys.KeyPair {
	t.Helper()
	seed, err := keys.NewSeed()
	require.NoError(t, err)
	return keys.DeriveKeyPair(account, keys.RoleMemo, seed, "STM")
}

func TestDeliverEmailOnly(t *testing.T) {
	f := newRouterFixture(t)

	out := f.router.Deliver(context.Background(), f.rec, MethodEmail, "alice@example.com")
	assert.True(t, out.OverallSuccess)
	assert.True(t, out.Email.Delivered)
	assert.False(t, out.Memo.Attempted)
	assert.Equal(t, []string{"alice@example.com"}, f.mailer.sent)
	assert.Empty(t, f.chain.transfers)
}

func TestDeliverEmailNoAddress(t *testing.T) {
	f := newRouterFixture(t)

	out := f.router.Deliver(context.Background(), f.rec, MethodEmail, "")
	assert.False(t, out.OverallSuccess)
	assert.ErrorIs(t, out.Email.Err, ErrNoRegisteredEmail)
	assert.Empty(t, f.mailer.sent)
}

func TestDeliverEmailNoTransport(t *testing.T) {
	f := newRouterFixture(t)
	f.router.mailer = nil

	out := f.router.Deliver(context.Background(), f.rec, MethodEmail, "alice@example.com")
	assert.False(t, out.OverallSuccess)
	assert.ErrorIs(t, out.Email.Err, ErrNoMailTransport)
}

func TestDeliverMemoOnly(t *testing.T) {
	f := newRouterFixture(t)

	out := f.router.Deliver(context.Background(), f.rec, MethodMemo, "")
	assert.True(t, out.OverallSuccess)
	assert.True(t, out.Memo.Delivered)
	assert.Equal(t, "memotx1", out.Memo.TxID)
	assert.False(t, out.Email.Attempted)

	// The broadcast memo is an encrypted envelope, never the plaintext.
	require.Len(t, f.chain.transfers, 1)
	assert.NotContains(t, f.chain.transfers[0], f.rec.Seed)
	assert.NotContains(t, f.chain.transfers[0], "password")
}

func TestDeliverMemoNoSigningKey(t *testing.T) {
	f := newRouterFixture(t)
	f.router.cfg.Memo.PrivateWIF = ""

	out := f.router.Deliver(context.Background(), f.rec, MethodMemo, "")
	assert.False(t, out.OverallSuccess)
	assert.ErrorIs(t, out.Memo.Err, ErrNoMemoKey)
	assert.Empty(t, f.chain.transfers)
}

func TestDeliverMemoInsufficientBalance(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.accounts["creator"].Balance = types.Asset{Amount: 50, Precision: 3, Symbol: "HIVE"}

	out := f.router.Deliver(context.Background(), f.rec, MethodMemo, "")
	assert.False(t, out.OverallSuccess)
	assert.ErrorIs(t, out.Memo.Err, ErrInsufficientBalance)
	assert.Empty(t, f.chain.transfers)
}

func TestDeliverMemoInsufficientBalanceMixedPrecision(t *testing.T) {
	f := newRouterFixture(t)
	// Minimum written without decimals, balance reported at precision 3.
	min, err := types.ParseAsset("1 HIVE")
	require.NoError(t, err)
	f.router.minBalance = min
	f.chain.accounts["creator"].Balance = types.Asset{Amount: 1, Precision: 3, Symbol: "HIVE"}

	out := f.router.Deliver(context.Background(), f.rec, MethodMemo, "")
	assert.False(t, out.OverallSuccess)
	assert.ErrorIs(t, out.Memo.Err, ErrInsufficientBalance)
	assert.Empty(t, f.chain.transfers)
}

func TestDeliverMemoBalanceSymbolMismatch(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.accounts["creator"].Balance = types.Asset{Amount: 10000, Precision: 3, Symbol: "HBD"}

	out := f.router.Deliver(context.Background(), f.rec, MethodMemo, "")
	assert.False(t, out.OverallSuccess)
	assert.ErrorIs(t, out.Memo.Err, ErrInsufficientBalance)
	assert.Empty(t, f.chain.transfers)
}

func TestDeliverMemoUnknownRequesterAccount(t *testing.T) {
	f := newRouterFixture(t)
	delete(f.chain.accounts, "alice")

	out := f.router.Deliver(context.Background(), f.rec, MethodMemo, "")
	assert.False(t, out.OverallSuccess)
	assert.Error(t, out.Memo.Err)
	assert.Empty(t, f.chain.transfers)
}

func TestDeliverMemoEncryptionLeakAborts(t *testing.T) {
	f := newRouterFixture(t)
	f.router.encodeMemo = func(fromWIF, toPublic, message, addressPrefix string) (string, error) {
		return "#leaky " + message, nil
	}

	out := f.router.Deliver(context.Background(), f.rec, MethodMemo, "")
	assert.False(t, out.OverallSuccess)
	assert.ErrorIs(t, out.Memo.Err, ErrEncryptionLeak)
	assert.Empty(t, f.chain.transfers, "a leaking envelope must never be broadcast")
}

func TestDeliverMemoTransferFailure(t *testing.T) {
	f := newRouterFixture(t)
	f.chain.transferErr = errors.New("node refused broadcast")

	out := f.router.Deliver(context.Background(), f.rec, MethodMemo, "")
	assert.False(t, out.OverallSuccess)
	assert.Error(t, out.Memo.Err)
}

func TestDeliverBothRequiresBoth(t *testing.T) {
	tests := []struct {
		name      string
		breakMail bool
		breakMemo bool
		want      bool
	}{
		{"both succeed", false, false, true},
		{"email fails", true, false, false},
		{"memo fails", false, true, false},
		{"both fail", true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			if tt.breakMail {
				f.mailer.sendErr = errors.New("smtp down")
			}
			if tt.breakMemo {
				f.chain.transferErr = errors.New("node down")
			}

			out := f.router.Deliver(context.Background(), f.rec, MethodBoth, "alice@example.com")
			assert.Equal(t, tt.want, out.OverallSuccess)
			assert.True(t, out.Email.Attempted)
			assert.True(t, out.Memo.Attempted)
			if !tt.want {
				assert.NotEmpty(t, out.Reasons())
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, s := range []string{"email", "memo", "both"} {
		m, ok := ParseMethod(s)
		assert.True(t, ok)
		assert.Equal(t, Method(s), m)
	}
	for _, s := range []string{"", "Email", "pigeon", "BOTH"} {
		_, ok := ParseMethod(s)
		assert.False(t, ok, "method %q must be rejected", s)
	}
}
