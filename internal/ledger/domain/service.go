package domain

import "context"

// Service manages the credit ledger and its balance projection.
type Service interface {
	// AddCredits appends a grant to the ledger. A repeated idempotencyKey is
	// a silent no-op returning the current balance.
	AddCredits(ctx context.Context, userID string, amount int64, reason EntryReason, idempotencyKey string, metadata map[string]any) (int64, error)

	// DeductCredits atomically spends credits for an operation. It fails with
	// ErrInsufficientCredits when the balance cannot cover the amount.
	DeductCredits(ctx context.Context, userID string, amount int64, operation string, idempotencyKey string, metadata map[string]any) (int64, error)

	// GetBalance returns the current balance, zero for unknown users.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// HasEnoughCredits reports whether the balance covers amount.
	HasEnoughCredits(ctx context.Context, userID string, amount int64) (bool, error)

	// ListEntries returns the user's ledger history, newest first.
	ListEntries(ctx context.Context, userID string, limit, offset int) ([]LedgerEntry, error)

	// VerifyProjection returns every user whose balance row disagrees with
	// the sum of their ledger deltas.
	VerifyProjection(ctx context.Context) ([]Drift, error)
}
