package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_RoundTrip(t *testing.T) {
	e, err := New(TransactionCreated, 42, map[string]string{"type": "expense"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)

	raw, err := e.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, TransactionCreated, decoded.Kind)
	assert.Equal(t, int64(42), decoded.EntityID)
	assert.JSONEq(t, `{"type":"expense"}`, string(decoded.Payload))
}

func TestNew_UniqueIDs(t *testing.T) {
	a, err := New(BudgetRenewed, 1, nil)
	require.NoError(t, err)
	b, err := New(BudgetRenewed, 1, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Nil(t, a.Payload)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	e1, _ := New(TransactionCreated, 1, nil)
	e2, _ := New(TransactionDeleted, 1, nil)
	require.NoError(t, r.Publish(ctx, e1))
	require.NoError(t, r.Publish(ctx, e2))

	assert.Equal(t, []Kind{TransactionCreated, TransactionDeleted}, r.Kinds())
	assert.Len(t, r.Events(), 2)
}
