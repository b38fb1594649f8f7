package mailbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, PutID(ctx, m, 1, SlotCheckoutDeal, 42))

	id, ok, err := TakeID(ctx, m, 1, SlotCheckoutDeal)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok, err = TakeID(ctx, m, 1, SlotCheckoutDeal)
	require.NoError(t, err)
	assert.False(t, ok, "second take must find the slot empty")
}

func TestMemory_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, PutID(ctx, m, 1, SlotCheckoutDeal, 1))
	require.NoError(t, PutID(ctx, m, 1, SlotCheckoutDeal, 2))

	id, ok, err := TakeID(ctx, m, 1, SlotCheckoutDeal)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	_, ok, _ = m.Take(ctx, 1, SlotCheckoutDeal)
	assert.False(t, ok, "slot must not queue values")
}

func TestMemory_SlotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, PutID(ctx, m, 1, SlotCheckoutDeal, 5))
	require.NoError(t, PutID(ctx, m, 1, SlotInspectionOrder, 6))
	require.NoError(t, PutID(ctx, m, 2, SlotCheckoutDeal, 7))

	require.NoError(t, m.Clear(ctx, 1, SlotInspectionOrder))

	id, ok, _ := TakeID(ctx, m, 1, SlotCheckoutDeal)
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	_, ok, _ = TakeID(ctx, m, 1, SlotInspectionOrder)
	assert.False(t, ok)

	id, ok, _ = TakeID(ctx, m, 2, SlotCheckoutDeal)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestMemory_UnknownSlot(t *testing.T) {
	m := NewMemory()

	err := m.Put(context.Background(), 1, Slot("cart"), "1")
	assert.True(t, errors.Is(err, ErrUnknownSlot))
}

func TestTakeID_NonNumericIsAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, 1, SlotCheckoutDeal, "undefined"))

	_, ok, err := TakeID(ctx, m, 1, SlotCheckoutDeal)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "mailbox:12:lastCheckoutDealId", Key(12, SlotCheckoutDeal))
	assert.Equal(t, "mailbox:12:pendingInspectionOrderId", Key(12, SlotInspectionOrder))
}
