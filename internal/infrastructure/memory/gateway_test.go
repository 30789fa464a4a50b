package memory

import (
	"context"
	"errors"
	"testing"

	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentGateway_PrepareCompleteLookup(t *testing.T) {
	g := NewPaymentGateway()
	ctx := context.Background()

	_, err := g.Complete("ref-1", 0)
	assert.ErrorIs(t, err, dompay.ErrNotFound)

	require.NoError(t, g.Prepare(ctx, "ref-1", 1000))
	txID, err := g.Complete("ref-1", 0)
	require.NoError(t, err)

	again, err := g.Complete("ref-1", 0)
	require.NoError(t, err)
	assert.Equal(t, txID, again)

	p, err := g.Lookup(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", p.OrderRef)
	assert.Equal(t, dompay.StatusPaid, p.Status)
	assert.Equal(t, int64(1000), p.Amount)

	_, err = g.Lookup(ctx, "imp_missing")
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}

func TestPaymentGateway_CompleteWithDifferentAmount(t *testing.T) {
	g := NewPaymentGateway()
	ctx := context.Background()
	require.NoError(t, g.Prepare(ctx, "ref-1", 1000))

	txID, err := g.Complete("ref-1", 900)
	require.NoError(t, err)
	p, err := g.Lookup(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), p.Amount)
}

func TestPaymentGateway_Cancel(t *testing.T) {
	g := NewPaymentGateway()
	ctx := context.Background()
	require.NoError(t, g.Prepare(ctx, "ref-1", 1000))
	txID, err := g.Complete("ref-1", 0)
	require.NoError(t, err)

	require.NoError(t, g.Cancel(ctx, "ref-1", 400, "partial"))
	assert.Equal(t, []string{"partial"}, g.Cancellations("ref-1"))
	p, err := g.Lookup(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusCancelled, p.Status)
	assert.Equal(t, int64(600), p.Captured())

	assert.ErrorIs(t, g.Cancel(ctx, "ref-1", 700, "too much"), dompay.ErrGatewayFailure)

	require.NoError(t, g.Prepare(ctx, "ref-2", 500))
	require.NoError(t, g.Cancel(ctx, "ref-2", 500, "never paid"))
	_, ok := g.Prepared("ref-2")
	assert.False(t, ok)
}

func TestPaymentGateway_FailWith(t *testing.T) {
	g := NewPaymentGateway()
	ctx := context.Background()
	g.FailWith(errors.New("upstream down"))

	assert.ErrorIs(t, g.Prepare(ctx, "ref-1", 1000), dompay.ErrGatewayFailure)
	_, ok := g.Prepared("ref-1")
	assert.False(t, ok)

	g.FailWith(nil)
	assert.NoError(t, g.Prepare(ctx, "ref-1", 1000))
}
