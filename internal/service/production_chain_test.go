package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

type chainDebiterStub struct {
	available map[models.Stage]int
	debited   []models.Stage
	failWith  error
}

func (c *chainDebiterStub) Debit(ctx context.Context, exec sqlx.ExtContext, productID string, stage models.Stage, quantity int) error {
	if c.failWith != nil {
		return c.failWith
	}
	if c.available[stage] < quantity {
		return appErrors.ErrInsufficientStock
	}
	c.available[stage] -= quantity
	c.debited = append(c.debited, stage)
	return nil
}

func TestResolveSourceEntryStageReservesNothing(t *testing.T) {
	ledger := &chainDebiterStub{}

	source, err := ResolveSource(context.Background(), nil, ledger, "prod-1", models.StageCarving, 5)
	require.NoError(t, err)
	assert.Nil(t, source)
	assert.Empty(t, ledger.debited)
}

func TestResolveSourcePicksFirstSufficientPredecessor(t *testing.T) {
	ledger := &chainDebiterStub{available: map[models.Stage]int{
		models.StageCarving: 2,
		models.StageCutting: 10,
	}}

	source, err := ResolveSource(context.Background(), nil, ledger, "prod-1", models.StageSanding, 5)
	require.NoError(t, err)
	require.NotNil(t, source)
	assert.Equal(t, models.StageCutting, *source)
	assert.Equal(t, []models.Stage{models.StageCutting}, ledger.debited)
	assert.Equal(t, 2, ledger.available[models.StageCarving], "a short stage must not be partially drawn")
}

func TestResolveSourcePrefersDeclaredOrder(t *testing.T) {
	ledger := &chainDebiterStub{available: map[models.Stage]int{
		models.StageCarving: 10,
		models.StageCutting: 10,
	}}

	source, err := ResolveSource(context.Background(), nil, ledger, "prod-1", models.StageSanding, 5)
	require.NoError(t, err)
	require.NotNil(t, source)
	assert.Equal(t, models.StageCarving, *source)
}

func TestResolveSourceAllPredecessorsShort(t *testing.T) {
	ledger := &chainDebiterStub{available: map[models.Stage]int{}}

	source, err := ResolveSource(context.Background(), nil, ledger, "prod-1", models.StageSanding, 5)
	assert.Nil(t, source)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoAvailableStock))
	assert.Contains(t, err.Error(), "CARVING")
	assert.Contains(t, err.Error(), "CUTTING")
}

func TestResolveSourcePropagatesLedgerFailure(t *testing.T) {
	boom := errors.New("connection reset")
	ledger := &chainDebiterStub{failWith: boom}

	_, err := ResolveSource(context.Background(), nil, ledger, "prod-1", models.StagePainting, 1)
	assert.ErrorIs(t, err, boom)
}
