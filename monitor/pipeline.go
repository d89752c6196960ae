package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"acctforge/blockchain/types"
	"acctforge/internal/models"
	"acctforge/storage/pending"
)

// processBlock walks a block in canonical order: transactions in block
// order, operations in transaction order. This ordering decides quota races
// between requests landing in the same block.
func (m *Monitor) processBlock(ctx context.Context, height uint32, block *types.Block) {
	for ti, tx := range block.Transactions {
		txID := ""
		if ti < len(block.TransactionIDs) {
			txID = block.TransactionIDs[ti]
		}
		for _, op := range tx.Operations {
			if op.Name != "custom_json" {
				continue
			}
			var cj types.CustomJSONOperation
			if err := json.Unmarshal(op.Body, &cj); err != nil {
				m.logger.Printf("Block %d tx %s: undecodable custom_json operation: %v", height, txID, err)
				continue
			}
			if cj.ID != m.customJSONID {
				continue
			}
			m.handleOperation(ctx, height, txID, &cj)
		}
	}
}

// handleOperation runs one request through the pipeline:
// validate -> authorize -> provision -> persist credential -> deliver ->
// commit token -> remove pending record.
func (m *Monitor) handleOperation(ctx context.Context, height uint32, txID string, cj *types.CustomJSONOperation) {
	requester := cj.Signer()
	if requester == "" {
		m.logger.Printf("Block %d tx %s: request without auths, ignored", height, txID)
		return
	}

	// 1. Validate. Fails closed; no state mutated, the request is dropped.
	req, ok := ValidateRequest(cj.JSON)
	if !ok {
		m.logger.Printf("Block %d tx %s: invalid request payload from %s, rejected", height, txID, requester)
		m.publishEvent(ctx, models.EventRejected, requester, "", height, txID, "validation failed")
		return
	}
	req.RequesterID = requester
	req.SourceBlockHeight = height
	req.SourceTxID = txID

	// 2. Authorize. Read-only gate; no token consumed.
	remaining, err := m.quota.Authorize(ctx, requester)
	if err != nil {
		m.logger.Printf("Block %d tx %s: request for %q by %s rejected: %v", height, txID, req.AccountName, requester, err)
		m.publishEvent(ctx, models.EventRejected, requester, req.AccountName, height, txID, err.Error())
		return
	}
	m.logger.Printf("Block %d: processing request for %q by %s (%d token(s) remaining, method %s)",
		height, req.AccountName, requester, remaining, req.Method)

	// 3. Provision. On failure nothing was committed; the same request can
	// safely be re-submitted later.
	result, err := m.provisioner.Provision(ctx, req.AccountName)
	if err != nil {
		m.logger.Printf("Block %d tx %s: provisioning %q failed: %v", height, txID, req.AccountName, err)
		m.publishEvent(ctx, models.EventRejected, requester, req.AccountName, height, txID, err.Error())
		return
	}

	// 4. Persist the credential BEFORE any delivery attempt. If the process
	// dies during delivery, the secret is recoverable from the ledger.
	rec := pending.Record{
		AccountName:  result.AccountName,
		Seed:         result.Seed,
		Keys:         result.Keys,
		CreationTxID: result.CreationTxID,
		RequesterID:  requester,
		CreatedAt:    result.CreatedAt,
	}
	pendingDurable := true
	if err := m.pendingLedg.Add(rec); err != nil {
		// The account exists on chain but its secret is not durable. Dump
		// the record so an operator can recover it from the log.
		pendingDurable = false
		recJSON, _ := json.Marshal(rec)
		m.logger.Printf("CRITICAL: failed to persist pending credential for %s: %v; record follows for manual recovery: %s",
			result.AccountName, err, recJSON)
	}

	// 5. Deliver over the requested channels.
	outcome := m.router.Deliver(ctx, &rec, req.Method, m.requesterEmail(ctx, requester, req.Email))

	if !outcome.OverallSuccess {
		// Credential stays in the pending ledger, token is not consumed;
		// the operator must redeliver manually and then remove the record.
		m.logger.Printf("Block %d: delivery for %q incomplete, credential retained (%s)",
			height, req.AccountName, outcome.Reasons())
		m.publishEvent(ctx, models.EventStranded, requester, req.AccountName, height, result.CreationTxID, outcome.Reasons())
		return
	}

	// 6. Commit the token, then remove the pending record, in that order.
	// A crash between the two leaves a spent token with a stale pending
	// record, which an operator can reconcile; the reverse order could
	// lose the only evidence that a secret was never billed. A credential
	// that was never durably recorded is never billed either.
	if pendingDurable {
		if !m.quota.Commit(ctx, requester) {
			m.logger.Printf("Warning: token commit for %s failed after fulfilled delivery of %q", requester, req.AccountName)
		}
		if err := m.pendingLedg.Remove(req.AccountName); err != nil {
			m.logger.Printf("Warning: failed to remove pending record for %q: %v", req.AccountName, err)
		}
	} else {
		m.logger.Printf("Warning: token for %s left unconsumed, credential for %q was delivered but never durably recorded",
			requester, req.AccountName)
	}

	m.logger.Printf("Block %d: request for %q by %s fulfilled (tx %s)", height, req.AccountName, requester, result.CreationTxID)
	m.publishEvent(ctx, models.EventFulfilled, requester, req.AccountName, height, result.CreationTxID, "")
}

// requesterEmail prefers the address registered in the quota ledger and
// falls back to the one carried in the request envelope.
func (m *Monitor) requesterEmail(ctx context.Context, requester, envelopeEmail string) string {
	if r, err := m.quota.Get(ctx, requester); err == nil && r.Email != "" {
		return r.Email
	}
	return envelopeEmail
}

func (m *Monitor) publishEvent(ctx context.Context, kind models.EventKind, requester, account string, height uint32, txID, reason string) {
	event := &models.PipelineEvent{
		EventID:     uuid.NewString(),
		Kind:        kind,
		Requester:   requester,
		Account:     account,
		BlockHeight: height,
		TxID:        txID,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Printf("Failed to publish %s event for %s: %v", kind, requester, err)
	}
}
