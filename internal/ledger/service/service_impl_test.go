package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ledgerdomain "github.com/pathlight-ai/pathlight/internal/ledger/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	err = db.AutoMigrate(
		&ledgerdomain.CreditBalance{},
		&ledgerdomain.LedgerEntry{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Service{
		db:    setupTestDB(t),
		log:   zap.NewNop(),
		genID: node,
	}
}

func TestAddCreditsNewUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	balance, err := svc.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	got, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)
}

func TestAddCreditsIdempotentReplay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	balance, err := svc.AddCredits(ctx, "user-1", 500, ledgerdomain.ReasonSubscriptionGrant, "sub_123:created", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	balance, err = svc.AddCredits(ctx, "user-1", 500, ledgerdomain.ReasonSubscriptionGrant, "sub_123:created", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	entries, err := svc.ListEntries(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddCreditsDistinctKeysAccumulate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonPackPurchase, "cs_1", nil)
	require.NoError(t, err)
	balance, err := svc.AddCredits(ctx, "user-1", 500, ledgerdomain.ReasonPackPurchase, "cs_2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance)
}

func TestAddCreditsValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "", 100, ledgerdomain.ReasonSignupGrant, "k", nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidUser)

	_, err = svc.AddCredits(ctx, "user-1", 0, ledgerdomain.ReasonSignupGrant, "k", nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)

	_, err = svc.AddCredits(ctx, "user-1", -5, ledgerdomain.ReasonSignupGrant, "k", nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)

	_, err = svc.AddCredits(ctx, "user-1", 10, "", "k", nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidReason)
}

func TestDeductCreditsSequence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)

	balance, err := svc.DeductCredits(ctx, "user-1", 50, "ai_generate", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	balance, err = svc.DeductCredits(ctx, "user-1", 50, "ai_generate", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	_, err = svc.DeductCredits(ctx, "user-1", 1, "ai_chat", "", nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)
}

func TestDeductCreditsInsufficientLeavesLedgerUntouched(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "user-1", 5, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)

	_, err = svc.DeductCredits(ctx, "user-1", 10, "ai_generate", "", nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)

	entries, err := svc.ListEntries(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDeductCreditsUnknownUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.DeductCredits(context.Background(), "ghost", 10, "ai_generate", "", nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)
}

func TestDeductCreditsIdempotentReplay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)

	balance, err := svc.DeductCredits(ctx, "user-1", 10, "ai_generate", "req-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)

	balance, err = svc.DeductCredits(ctx, "user-1", 10, "ai_generate", "req-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)
}

func TestDeductCreditsConcurrentSingleWinner(t *testing.T) {
	// File-backed database so the two writers contend on a real lock
	// instead of sharing an in-memory connection.
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=busy_timeout(10000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.CreditBalance{},
		&ledgerdomain.LedgerEntry{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	svc := &Service{db: db, log: zap.NewNop(), genID: node}
	ctx := context.Background()

	_, err = svc.AddCredits(ctx, "user-1", 50, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.DeductCredits(ctx, "user-1", 50, "ai_generate", "", nil)
		}(i)
	}
	wg.Wait()

	var succeeded, denied int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
			denied++
		default:
			t.Fatalf("unexpected deduction error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, denied)

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	entries, err := svc.ListEntries(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGetBalanceUnknownUser(t *testing.T) {
	svc := newTestService(t)

	balance, err := svc.GetBalance(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestHasEnoughCredits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "user-1", 10, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)

	ok, err := svc.HasEnoughCredits(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasEnoughCredits(ctx, "user-1", 11)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasEnoughCredits(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListEntriesNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)
	_, err = svc.DeductCredits(ctx, "user-1", 10, "ai_generate", "", nil)
	require.NoError(t, err)

	entries, err := svc.ListEntries(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(-10), entries[0].Delta)
	assert.Equal(t, int64(100), entries[1].Delta)
}

func TestVerifyProjectionDetectsDrift(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)

	drifts, err := svc.VerifyProjection(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	// Corrupt the projection behind the ledger's back.
	require.NoError(t, svc.db.Exec(
		`UPDATE credit_balances SET balance = 999 WHERE user_id = ?`, "user-1",
	).Error)

	drifts, err = svc.VerifyProjection(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, "user-1", drifts[0].UserID)
	assert.Equal(t, int64(999), drifts[0].Balance)
	assert.Equal(t, int64(100), drifts[0].LedgerSum)
}
