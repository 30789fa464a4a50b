package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newPlaced(t *testing.T) *Order {
	t.Helper()
	o, err := New("order-1", "member-1", "260301093000abcd", []Line{
		{ItemID: "coffee-1", ItemName: "Coffee", Quantity: 2, UnitPrice: 1000},
		{ItemID: "cake-1", ItemName: "Cake", Quantity: 1, UnitPrice: 3500},
	}, t0)
	require.NoError(t, err)
	return o
}

func TestNewComputesTotalAndHistory(t *testing.T) {
	o := newPlaced(t)

	assert.Equal(t, StatusPlaced, o.Status)
	assert.Equal(t, int64(5500), o.Total)
	assert.Equal(t, map[string]int{"coffee-1": 2, "cake-1": 1}, o.Quantities())
	require.Len(t, o.PendingTransitions(), 1)
	assert.Equal(t, CausePlaced, o.History[0].Cause)

	o.MarkPersisted()
	assert.Empty(t, o.PendingTransitions())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
		want  error
	}{
		{name: "no lines", lines: nil, want: ErrNoLines},
		{name: "zero quantity", lines: []Line{{ItemID: "a", Quantity: 0, UnitPrice: 1}}, want: ErrInvalidQuantity},
		{name: "negative price", lines: []Line{{ItemID: "a", Quantity: 1, UnitPrice: -1}}, want: ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("id", "member", "ref", tt.lines, t0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(StatusPlaced, StatusPaid))
	assert.True(t, CanTransition(StatusPaid, StatusRefunded))
	assert.True(t, CanTransition(StatusDeliveryPreparing, StatusAwaitingDelivery))
	assert.False(t, CanTransition(StatusDelivered, StatusPaid))
	assert.False(t, CanTransition(StatusDeliveryPreparing, StatusCancelled))
	for _, terminal := range []Status{StatusDelivered, StatusCancelled, StatusRefunded} {
		for _, to := range Statuses {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestApplyPayment(t *testing.T) {
	t.Run("matching amount pays", func(t *testing.T) {
		o := newPlaced(t)
		effect, err := o.ApplyPayment(5500, "imp_1", t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, EffectNone, effect)
		assert.Equal(t, StatusPaid, o.Status)
		assert.Equal(t, t0.Add(time.Minute), o.UpdatedAt)
	})

	t.Run("duplicate is already processed", func(t *testing.T) {
		o := newPlaced(t)
		_, err := o.ApplyPayment(5500, "imp_1", t0)
		require.NoError(t, err)
		history := len(o.History)

		effect, err := o.ApplyPayment(5500, "imp_1", t0)
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.Equal(t, EffectNone, effect)
		assert.Equal(t, StatusPaid, o.Status)
		assert.Len(t, o.History, history)
	})

	t.Run("mismatch cancels and releases", func(t *testing.T) {
		o := newPlaced(t)
		effect, err := o.ApplyPayment(900, "imp_1", t0)
		assert.ErrorIs(t, err, ErrPaymentMismatch)
		assert.Equal(t, EffectReleaseStock, effect)
		assert.Equal(t, StatusCancelled, o.Status)
		assert.Equal(t, CausePaymentMismatch, o.History[len(o.History)-1].Cause)
	})

	t.Run("payment on cancelled order is inconsistent", func(t *testing.T) {
		o := newPlaced(t)
		_, err := o.Cancel(CauseMemberCancelled, "", t0)
		require.NoError(t, err)

		effect, err := o.ApplyPayment(5500, "imp_1", t0)
		assert.ErrorIs(t, err, ErrPaymentMismatch)
		assert.Equal(t, EffectNone, effect)
		assert.Equal(t, StatusCancelled, o.Status)
	})
}

func TestCancel(t *testing.T) {
	o := newPlaced(t)
	effect, err := o.Cancel(CauseMemberCancelled, "member-1", t0)
	require.NoError(t, err)
	assert.Equal(t, EffectReleaseStock, effect)
	assert.Equal(t, StatusCancelled, o.Status)

	_, err = o.Cancel(CauseMemberCancelled, "member-1", t0)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestCancelPaidRefundsInFull(t *testing.T) {
	o := newPlaced(t)
	_, err := o.ApplyPayment(5500, "imp_1", t0)
	require.NoError(t, err)

	effect, err := o.Cancel(CauseMemberCancelled, "", t0)
	require.NoError(t, err)
	assert.Equal(t, EffectReleaseStock, effect)
	assert.Equal(t, StatusRefunded, o.Status)
	assert.Equal(t, int64(0), o.Total)
}

func TestCancelRefusedOnceShippingStarts(t *testing.T) {
	o := newPlaced(t)
	_, err := o.ApplyPayment(5500, "imp_1", t0)
	require.NoError(t, err)
	require.NoError(t, o.Advance(StatusDeliveryPreparing, CauseAdmin, "admin", t0))

	_, err = o.Cancel(CauseMemberCancelled, "", t0)
	assert.ErrorIs(t, err, ErrCancellationRefused)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusDeliveryPreparing, o.Status)
}

func TestPartialRefundLowersTotal(t *testing.T) {
	o := newPlaced(t)
	_, err := o.ApplyPayment(5500, "imp_1", t0)
	require.NoError(t, err)

	_, err = o.Refund(6000, CauseGatewayCancelled, "cancel_1", t0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, StatusPaid, o.Status)

	_, err = o.Refund(1000, CauseGatewayCancelled, "cancel_1", t0)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, o.Status)
	assert.Equal(t, int64(4500), o.Total)
}

func TestAdjustRefundFollowsFurtherCancellations(t *testing.T) {
	o := newPlaced(t)
	assert.ErrorIs(t, o.AdjustRefund(1000, t0), ErrInvalidTransition)

	_, err := o.ApplyPayment(5500, "imp_1", t0)
	require.NoError(t, err)
	_, err = o.Refund(1000, CauseGatewayCancelled, "cancel_1", t0)
	require.NoError(t, err)
	o.MarkPersisted()

	assert.ErrorIs(t, o.AdjustRefund(4500, t0), ErrAlreadyProcessed)
	assert.ErrorIs(t, o.AdjustRefund(-1, t0), ErrInvalidAmount)

	require.NoError(t, o.AdjustRefund(3000, t0.Add(time.Minute)))
	assert.Equal(t, int64(3000), o.Total)
	assert.Equal(t, StatusRefunded, o.Status)
	assert.Empty(t, o.PendingTransitions())
	assert.Equal(t, t0.Add(time.Minute), o.UpdatedAt)
}

func TestAdvance(t *testing.T) {
	o := newPlaced(t)

	err := o.Advance(StatusInDelivery, CauseAdmin, "", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPlaced, o.Status)

	err = o.Advance(StatusCancelled, CauseAdmin, "", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = o.ApplyPayment(5500, "imp_1", t0)
	require.NoError(t, err)
	for _, to := range []Status{StatusDeliveryPreparing, StatusAwaitingDelivery, StatusInDelivery, StatusDelivered} {
		require.NoError(t, o.Advance(to, CauseAdmin, "", t0))
	}
	assert.True(t, o.Status.IsTerminal())

	err = o.Advance(StatusInDelivery, CauseAdmin, "", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdatedAtNeverMovesBackwards(t *testing.T) {
	o := newPlaced(t)
	_, err := o.ApplyPayment(5500, "imp_1", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, t0, o.UpdatedAt)
}

func TestNextDeliveryStatus(t *testing.T) {
	morning := time.Date(2026, 3, 1, 13, 59, 0, 0, time.UTC)
	afternoon := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	next, err := NextDeliveryStatus(StatusPaid, morning, 14)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingDelivery, next)

	next, err = NextDeliveryStatus(StatusPaid, afternoon, 14)
	require.NoError(t, err)
	assert.Equal(t, StatusDeliveryPreparing, next)

	next, err = NextDeliveryStatus(StatusInDelivery, afternoon, 14)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, next)

	_, err = NextDeliveryStatus(StatusPlaced, afternoon, 14)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("IN_DELIVERY")
	assert.True(t, ok)
	assert.Equal(t, StatusInDelivery, s)

	_, ok = ParseStatus("SHIPPED")
	assert.False(t, ok)
}
