package notify

import (
	"context"
	"encoding/json"
	"errors"
	"regdesk/internal/model"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisNotifier, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisNotifier(client, "regdesk:notifications"), mr
}

func testInvoice() *model.Invoice {
	return &model.Invoice{
		ID:     7,
		UserID: "user-1",
		Status: model.InvoicePaid,
		Value:  decimal.RequireFromString("25.50"),
	}
}

func TestRedisNotifier_PushesEvent(t *testing.T) {
	n, mr := setupTestRedis(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ev := NewEvent(InvoiceUpdated, testInvoice(), model.InvoiceUnpaid, at)
	require.NoError(t, n.Notify(context.Background(), ev))

	items, err := mr.List("regdesk:notifications")
	require.NoError(t, err)
	require.Len(t, items, 1)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(items[0]), &got))
	assert.Equal(t, InvoiceUpdated, got.Kind)
	assert.Equal(t, "user-1", got.Recipient)
	assert.Equal(t, uint(7), got.InvoiceID)
	assert.Equal(t, model.InvoicePaid, got.Status)
	assert.Equal(t, model.InvoiceUnpaid, got.PreviousStatus)
	assert.True(t, got.Value.Equal(decimal.RequireFromString("25.50")))
}

func TestRedisNotifier_TrimsOldEvents(t *testing.T) {
	n, mr := setupTestRedis(t)
	n.maxLen = 2

	for i := 0; i < 3; i++ {
		inv := testInvoice()
		inv.ID = uint(i + 1)
		require.NoError(t, n.Notify(context.Background(), NewEvent(InvoiceCreated, inv, "", time.Now())))
	}

	items, err := mr.List("regdesk:notifications")
	require.NoError(t, err)
	require.Len(t, items, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(items[0]), &first))
	assert.Equal(t, uint(2), first.InvoiceID)
}

func TestRedisNotifier_ServerDown(t *testing.T) {
	n, mr := setupTestRedis(t)
	mr.Close()

	err := n.Notify(context.Background(), NewEvent(InvoiceCreated, testInvoice(), "", time.Now()))
	require.Error(t, err)
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(ctx context.Context, ev Event) error {
	f.calls++
	return errors.New("mailer unavailable")
}

func TestMulti_DeliversToAllAndReportsFirstError(t *testing.T) {
	n, mr := setupTestRedis(t)
	failing := &failingNotifier{}

	err := Multi{failing, n}.Notify(context.Background(), NewEvent(InvoiceCreated, testInvoice(), "", time.Now()))
	require.EqualError(t, err, "mailer unavailable")
	assert.Equal(t, 1, failing.calls)

	items, err := mr.List("regdesk:notifications")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
