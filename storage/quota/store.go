// Package quota is the durable per-requester authorization and token
// balance ledger. The file store is the primary backend; the Postgres store
// implements the same interface for deployments that need a transactional
// store shared across processes.
package quota

import (
	"context"
	"errors"
	"time"
)

// Authorization failure reasons.
var (
	ErrUnknownRequester = errors.New("requester unknown")
	ErrInactive         = errors.New("requester inactive")
	ErrExhausted        = errors.New("no tokens remaining")
	ErrExists           = errors.New("requester already exists")
)

// Requester is one authorized requester's quota record.
type Requester struct {
	ID              string     `json:"id"`
	TokensAllocated int        `json:"tokens_allocated"`
	TokensUsed      int        `json:"tokens_used"`
	Email           string     `json:"email,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
}

// TokensRemaining is always TokensAllocated - TokensUsed.
func (r *Requester) TokensRemaining() int {
	return r.TokensAllocated - r.TokensUsed
}

// Stats is the aggregate metadata block kept consistent with the
// per-requester records under every mutation.
type Stats struct {
	TotalRequesters  int       `json:"total_requesters"`
	ActiveRequesters int       `json:"active_requesters"`
	TokensAllocated  int       `json:"tokens_allocated"`
	TokensUsed       int       `json:"tokens_used"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store is the quota ledger interface shared by the pipeline and the admin
// tooling.
type Store interface {
	// Authorize is the read-only authorization gate. It returns the tokens
	// remaining on success, or ErrUnknownRequester / ErrInactive /
	// ErrExhausted.
	Authorize(ctx context.Context, id string) (int, error)

	// Commit consumes one token after a fulfilled request. It returns false
	// for an unknown requester or one already at zero remaining; this is a
	// defensive re-check, not the primary gate.
	Commit(ctx context.Context, id string) bool

	// Administrative surface.
	List(ctx context.Context) ([]Requester, error)
	Get(ctx context.Context, id string) (*Requester, error)
	Add(ctx context.Context, id string, tokens int, email string) error
	GrantTokens(ctx context.Context, id string, delta int) error
	SetTokens(ctx context.Context, id string, total int) error
	SetActive(ctx context.Context, id string, active bool) error
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
