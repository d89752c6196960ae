// Package delivery routes generated credentials to the requester over the
// channels they asked for and decides overall success.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	blockchain "acctforge/blockchain/client"
	"acctforge/blockchain/types"
	"acctforge/config"
	"acctforge/internal/memo"
	"acctforge/storage/pending"
)

// Method is the requester's chosen delivery method.
type Method string

const (
	MethodEmail Method = "email"
	MethodMemo  Method = "memo"
	MethodBoth  Method = "both"
)

// ParseMethod validates a delivery method string.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodEmail, MethodMemo, MethodBoth:
		return Method(s), true
	default:
		return "", false
	}
}

func (m Method) includesEmail() bool { return m == MethodEmail || m == MethodBoth }
func (m Method) includesMemo() bool  { return m == MethodMemo || m == MethodBoth }

// Channel failure reasons.
var (
	ErrNoRegisteredEmail   = errors.New("requester has no registered email")
	ErrNoMailTransport     = errors.New("email transport not configured")
	ErrNoMemoKey           = errors.New("memo signing key not configured")
	ErrInsufficientBalance = errors.New("creator balance below memo channel minimum")

	// ErrEncryptionLeak means the encrypted payload contained the plaintext
	// account name or seed. Security-critical: the channel fails regardless
	// of transport success and the condition is escalated to the operator.
	ErrEncryptionLeak = errors.New("encrypted memo leaks plaintext credential material")
)

// ChannelResult is one channel's outcome.
type ChannelResult struct {
	Attempted bool
	Delivered bool
	TxID      string // memo channel transfer id, when delivered
	Err       error
}

// Outcome aggregates both channels and the overall success decision.
type Outcome struct {
	Email          ChannelResult
	Memo           ChannelResult
	OverallSuccess bool
}

// Reasons joins the failure reasons of attempted, undelivered channels.
func (o Outcome) Reasons() string {
	var parts []string
	if o.Email.Attempted && !o.Email.Delivered && o.Email.Err != nil {
		parts = append(parts, "email: "+o.Email.Err.Error())
	}
	if o.Memo.Attempted && !o.Memo.Delivered && o.Memo.Err != nil {
		parts = append(parts, "memo: "+o.Memo.Err.Error())
	}
	return strings.Join(parts, "; ")
}

// Router attempts the requested delivery channels.
type Router struct {
	chain  blockchain.ChainClient
	mailer Mailer
	cfg    config.DeliveryConfig
	logger *log.Logger

	addressPrefix  string
	minBalance     types.Asset
	transferAmount types.Asset

	// encodeMemo is swappable so the leak check is testable.
	encodeMemo func(fromWIF, toPublic, message, addressPrefix string) (string, error)
}

// NewRouter creates a Router. mailer may be nil when the email transport is
// not configured; the email channel then fails with ErrNoMailTransport.
func NewRouter(chain blockchain.ChainClient, mailer Mailer, cfg config.DeliveryConfig, addressPrefix string, logger *log.Logger) (*Router, error) {
	minBalance, err := types.ParseAsset(cfg.Memo.MinBalance)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery.memo.min_balance: %w", err)
	}
	transferAmount, err := types.ParseAsset(cfg.Memo.TransferAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery.memo.transfer_amount: %w", err)
	}
	return &Router{
		chain:          chain,
		mailer:         mailer,
		cfg:            cfg,
		logger:         logger,
		addressPrefix:  addressPrefix,
		minBalance:     minBalance,
		transferAmount: transferAmount,
		encodeMemo:     memo.Encode,
	}, nil
}

// Deliver attempts every channel the method names. A method of "both"
// succeeds only when both channels individually succeed; a single-channel
// method succeeds on that channel alone.
func (r *Router) Deliver(ctx context.Context, rec *pending.Record, method Method, requesterEmail string) Outcome {
	var out Outcome

	if method.includesEmail() {
		out.Email = r.deliverEmail(rec, requesterEmail)
	}
	if method.includesMemo() {
		out.Memo = r.deliverMemo(ctx, rec)
	}

	switch method {
	case MethodBoth:
		out.OverallSuccess = out.Email.Delivered && out.Memo.Delivered
	case MethodEmail:
		out.OverallSuccess = out.Email.Delivered
	case MethodMemo:
		out.OverallSuccess = out.Memo.Delivered
	}
	return out
}

func (r *Router) deliverEmail(rec *pending.Record, requesterEmail string) ChannelResult {
	res := ChannelResult{Attempted: true}

	if requesterEmail == "" {
		res.Err = ErrNoRegisteredEmail
		return res
	}
	if r.mailer == nil {
		res.Err = ErrNoMailTransport
		return res
	}

	subject := fmt.Sprintf("Account %s created", rec.AccountName)
	if err := r.mailer.Send(requesterEmail, subject, credentialEmailBody(rec)); err != nil {
		res.Err = err
		return res
	}

	r.logger.Printf("Credentials for %s delivered by email", rec.AccountName)
	res.Delivered = true
	return res
}

func (r *Router) deliverMemo(ctx context.Context, rec *pending.Record) ChannelResult {
	res := ChannelResult{Attempted: true}

	if r.cfg.Memo.PrivateWIF == "" {
		res.Err = ErrNoMemoKey
		return res
	}

	creator, err := r.chain.GetAccount(ctx, r.cfg.CreatorAccount)
	if err != nil {
		res.Err = fmt.Errorf("failed to look up creator account: %w", err)
		return res
	}
	if creator == nil {
		res.Err = fmt.Errorf("creator account %s not found on chain", r.cfg.CreatorAccount)
		return res
	}
	if creator.Balance.Symbol != r.minBalance.Symbol {
		res.Err = fmt.Errorf("%w: balance %s not comparable with minimum %s",
			ErrInsufficientBalance, creator.Balance, r.minBalance)
		return res
	}
	if creator.Balance.LessThan(r.minBalance) {
		res.Err = fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, creator.Balance, r.minBalance)
		return res
	}

	recipient, err := r.chain.GetAccount(ctx, rec.RequesterID)
	if err != nil {
		res.Err = fmt.Errorf("failed to look up requester account: %w", err)
		return res
	}
	if recipient == nil {
		res.Err = fmt.Errorf("requester account %s not found on chain", rec.RequesterID)
		return res
	}

	message := fmt.Sprintf("account:%s password:%s", rec.AccountName, rec.Seed)
	encoded, err := r.encodeMemo(r.cfg.Memo.PrivateWIF, recipient.MemoKey, message, r.addressPrefix)
	if err != nil {
		res.Err = fmt.Errorf("failed to encrypt memo: %w", err)
		return res
	}

	// The encrypted envelope must never contain the plaintext name or seed.
	if strings.Contains(encoded, rec.AccountName) || strings.Contains(encoded, rec.Seed) {
		r.logger.Printf("SECURITY: memo encryption leak detected for %s, delivery aborted", rec.AccountName)
		res.Err = ErrEncryptionLeak
		return res
	}

	txID, err := r.chain.TransferWithMemo(ctx, r.cfg.CreatorAccount, rec.RequesterID, r.transferAmount, encoded)
	if err != nil {
		res.Err = fmt.Errorf("memo transfer failed: %w", err)
		return res
	}

	r.logger.Printf("Credentials for %s delivered by memo in tx %s", rec.AccountName, txID)
	res.Delivered = true
	res.TxID = txID
	return res
}
