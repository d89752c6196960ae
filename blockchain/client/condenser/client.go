package condenser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/go-resty/resty/v2"

	"acctforge/blockchain/types"
	"acctforge/config"
	"acctforge/internal/keys"
)

// Client speaks the condenser JSON-RPC 2.0 API over HTTP.
type Client struct {
	http       *resty.Client
	cfg        *config.ChainConfig
	ccfg       *CondenserConfig
	signingKey *btcec.PrivateKey
	logger     *log.Logger
	nextID     uint64
}

// NewClient initializes the condenser client with the combined configuration
func NewClient(cfg *config.ChainConfig, logger *log.Logger) (*Client, error) {
	ccfg, ok := cfg.ChainSpecific.(*CondenserConfig)
	if !ok {
		return nil, fmt.Errorf("invalid condenser configuration type")
	}
	if len(ccfg.Nodes) == 0 {
		return nil, fmt.Errorf("no API node URLs provided in config")
	}
	if ccfg.ChainID == "" {
		return nil, fmt.Errorf("chain_id is required")
	}
	if ccfg.CreatorAccount == "" || ccfg.CreatorActiveWIF == "" {
		return nil, fmt.Errorf("creator_account and creator_active_wif are required")
	}

	signingKey, err := keys.DecodeWIF(ccfg.CreatorActiveWIF)
	if err != nil {
		return nil, fmt.Errorf("failed to decode creator active key: %w", err)
	}

	httpClient := resty.New().
		SetHostURL(ccfg.Nodes[0]).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.RetryLimit > 0 {
		httpClient.SetRetryCount(cfg.RetryLimit).
			SetRetryWaitTime(time.Duration(cfg.RetryInterval) * time.Millisecond)
	}

	logger.Printf("Condenser client initialized, primary node: %s", ccfg.Nodes[0])

	return &Client{
		http:       httpClient,
		cfg:        cfg,
		ccfg:       ccfg,
		signingKey: signingKey,
		logger:     logger,
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// call performs one JSON-RPC request and decodes the result into out. A JSON
// "null" result leaves out untouched and returns errNullResult.
var errNullResult = fmt.Errorf("rpc result is null")

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	}

	var rpcResp rpcResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&rpcResp).
		Post("")
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode())
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s failed: %w", method, rpcResp.Error)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return errNullResult
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// GetBlock fetches one block; (nil, nil) when not yet produced.
func (c *Client) GetBlock(ctx context.Context, height uint32) (*types.Block, error) {
	var block types.Block
	err := c.call(ctx, "condenser_api.get_block", []interface{}{height}, &block)
	if err == errNullResult {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// GetDynamicGlobalProperties returns the chain head state.
func (c *Client) GetDynamicGlobalProperties(ctx context.Context) (*types.DynamicGlobalProperties, error) {
	var dgp types.DynamicGlobalProperties
	if err := c.call(ctx, "condenser_api.get_dynamic_global_properties", nil, &dgp); err != nil {
		return nil, err
	}
	return &dgp, nil
}

// GetAccount looks up one account; (nil, nil) when it does not exist.
func (c *Client) GetAccount(ctx context.Context, name string) (*types.Account, error) {
	var accounts []types.Account
	err := c.call(ctx, "condenser_api.get_accounts", []interface{}{[]string{name}}, &accounts)
	if err == errNullResult {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	acct := accounts[0]
	return &acct, nil
}

// CreateClaimedAccount broadcasts a create_claimed_account operation,
// consuming one of the creator's claimed-account credits.
func (c *Client) CreateClaimedAccount(ctx context.Context, params types.CreateAccountParams) (string, error) {
	op := &createClaimedAccountOp{
		Creator:        params.Creator,
		NewAccountName: params.NewAccountName,
		Owner:          types.SingleKeyAuthority(params.OwnerKey),
		Active:         types.SingleKeyAuthority(params.ActiveKey),
		Posting:        types.SingleKeyAuthority(params.PostingKey),
		MemoKey:        params.MemoKey,
		JSONMetadata:   params.JSONMetadata,
		Extensions:     []interface{}{},
	}
	return c.broadcast(ctx, []broadcastOp{op})
}

// TransferWithMemo broadcasts a transfer carrying the given memo.
func (c *Client) TransferWithMemo(ctx context.Context, from, to string, amount types.Asset, memoText string) (string, error) {
	op := &transferOp{From: from, To: to, Amount: amount, Memo: memoText}
	return c.broadcast(ctx, []broadcastOp{op})
}

// broadcast builds, signs and synchronously broadcasts a transaction.
func (c *Client) broadcast(ctx context.Context, ops []broadcastOp) (string, error) {
	dgp, err := c.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch chain head state: %w", err)
	}

	tx, err := c.buildSignedTransaction(dgp, ops)
	if err != nil {
		return "", err
	}

	var result broadcastResult
	if err := c.call(ctx, "condenser_api.broadcast_transaction_synchronous", []interface{}{tx}, &result); err != nil {
		return "", err
	}
	if result.Expired {
		return "", fmt.Errorf("transaction %s expired before inclusion", result.ID)
	}
	return result.ID, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.logger.Println("Closing condenser client...")
	return nil
}

// Config returns the configuration associated with the client.
func (c *Client) Config() any {
	return c.ccfg
}
