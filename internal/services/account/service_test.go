package account

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)
	return NewService(db, zap.NewNop())
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAccountRequest{
		UserID:      "acme",
		AccountName: "Acme Corp",
		BudgetUSD:   100,
	})
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Equal(t, models.BudgetPeriodTotal, created.BudgetPeriod)
	assert.Zero(t, created.SpentUSD)

	got, err := svc.GetByUserID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetByUserID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateRejectsDuplicateUserID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountRequest{UserID: "acme", BudgetUSD: 10})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateAccountRequest{UserID: "acme", BudgetUSD: 20})
	assert.ErrorIs(t, err, ErrDuplicateUserID)
}

func TestUpdatePartialFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountRequest{
		UserID:      "acme",
		AccountName: "Acme Corp",
		BudgetUSD:   100,
	})
	require.NoError(t, err)

	newBudget := 250.0
	updated, err := svc.Update(ctx, "acme", UpdateAccountRequest{BudgetUSD: &newBudget})
	require.NoError(t, err)
	assert.Equal(t, 250.0, updated.BudgetUSD)
	assert.Equal(t, "Acme Corp", updated.AccountName, "untouched fields survive")

	inactive := false
	updated, err = svc.Update(ctx, "acme", UpdateAccountRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = svc.Update(ctx, "nobody", UpdateAccountRequest{BudgetUSD: &newBudget})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDebit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountRequest{UserID: "acme", BudgetUSD: 10})
	require.NoError(t, err)

	matched, err := svc.Debit(ctx, "acme", 2.5)
	require.NoError(t, err)
	assert.True(t, matched)

	got, err := svc.GetByUserID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2.5, got.SpentUSD)

	// Debits apply even past the budget line; admission control is the
	// caller's job.
	matched, err = svc.Debit(ctx, "acme", 20)
	require.NoError(t, err)
	assert.True(t, matched)

	got, err = svc.GetByUserID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 22.5, got.SpentUSD)
	assert.True(t, got.IsOverBudget())
}

func TestDebitSkipsInactiveAndMissingAccounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	inactive := false
	_, err := svc.Create(ctx, CreateAccountRequest{
		UserID:    "dormant",
		BudgetUSD: 10,
		IsActive:  &inactive,
	})
	require.NoError(t, err)

	matched, err := svc.Debit(ctx, "dormant", 1)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = svc.Debit(ctx, "nobody", 1)
	require.NoError(t, err)
	assert.False(t, matched)

	got, err := svc.GetByUserID(ctx, "dormant")
	require.NoError(t, err)
	assert.Zero(t, got.SpentUSD)
}

func TestDebitConcurrentLosesNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountRequest{UserID: "acme", BudgetUSD: 1000})
	require.NoError(t, err)

	const workers = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			matched, err := svc.Debit(ctx, "acme", 0.01)
			assert.NoError(t, err)
			assert.True(t, matched)
		}()
	}
	wg.Wait()

	got, err := svc.GetByUserID(ctx, "acme")
	require.NoError(t, err)
	assert.InDelta(t, 1.00, got.SpentUSD, 1e-9, "no debit may be lost to a race")
}
