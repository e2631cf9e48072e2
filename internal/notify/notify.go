// Package notify tells attendees about invoice changes. Delivery is best
// effort; callers log failures and carry on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regdesk/internal/model"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	InvoiceCreated Kind = "invoice_created"
	InvoiceUpdated Kind = "invoice_updated"
)

type Event struct {
	Kind           Kind                `json:"kind"`
	Recipient      string              `json:"recipient"`
	InvoiceID      uint                `json:"invoice_id"`
	Status         model.InvoiceStatus `json:"status"`
	PreviousStatus model.InvoiceStatus `json:"previous_status,omitempty"`
	Value          decimal.Decimal     `json:"value"`
	At             time.Time           `json:"at"`
}

// NewEvent describes inv as it is now.
func NewEvent(kind Kind, inv *model.Invoice, previous model.InvoiceStatus, at time.Time) Event {
	return Event{
		Kind:           kind,
		Recipient:      inv.UserID,
		InvoiceID:      inv.ID,
		Status:         inv.Status,
		PreviousStatus: previous,
		Value:          inv.Value,
		At:             at,
	}
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	log.Printf("[notify] %s invoice %d for %s: %s", ev.Kind, ev.InvoiceID, ev.Recipient, ev.Status)
	return nil
}

// RedisNotifier appends events to a redis list for a mailer to drain.
type RedisNotifier struct {
	client *redis.Client
	queue  string
	maxLen int64
}

func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		queue:  queue,
		maxLen: 10000,
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}

	pipe := n.client.TxPipeline()
	pipe.RPush(ctx, n.queue, payload)
	// oldest events go first once the mailer falls behind
	pipe.LTrim(ctx, n.queue, -n.maxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push failed: %w", err)
	}
	return nil
}

// Multi fans an event out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
