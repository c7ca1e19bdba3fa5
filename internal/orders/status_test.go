package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusDelivered, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, true},
		{StatusProcessing, StatusPending, false},
		{StatusShipped, StatusProcessing, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParseStatus(t *testing.T) {
	st, ok := ParseStatus("shipped")
	assert.True(t, ok)
	assert.Equal(t, StatusShipped, st)

	_, ok = ParseStatus("returned")
	assert.False(t, ok)

	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())
}

func TestOrderCancel(t *testing.T) {
	now := time.Now()

	o := &Order{ID: "o1", Status: StatusShipped}
	err := o.Cancel("alice", "", false, now)
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Equal(t, StatusShipped, o.Status)

	require.NoError(t, o.Cancel("root", "damaged", true, now))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "damaged", o.CancelReason)
}

func TestOrderClone(t *testing.T) {
	paid := time.Now()
	o := &Order{
		ID:     "o1",
		Items:  []OrderItem{{ProductID: "P", Quantity: 1, Variant: &ItemVariant{Name: "42"}}},
		PaidAt: &paid,
	}
	c := o.Clone()
	c.Items[0].Variant.Name = "41"
	c.Items[0].Quantity = 9
	*c.PaidAt = paid.Add(time.Hour)

	assert.Equal(t, "42", o.Items[0].Variant.Name)
	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, paid, *o.PaidAt)
}
