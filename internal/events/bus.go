// Package events persists domain events and fans them out to notifiers.
// Services collect events while a settlement transaction is open and
// emit them only after the commit succeeds, so consumers never observe
// rolled-back state.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/techhaven/backend-pos/internal/store"
)

// Topics emitted by the settlement and loyalty paths.
const (
	TopicSaleSettled    = "sale.settled"
	TopicSaleRefunded   = "sale.refunded"
	TopicPointsRedeemed = "points.redeemed"
	TopicLowStock       = "product.low_stock"
	TopicTierChanged    = "customer.tier_changed"
)

// EventStore defines the persistence operations required by the bus.
type EventStore interface {
	InsertEvent(ctx context.Context, e store.Event) (store.Event, error)
}

// Notifier reacts to emitted events (logging, metrics, integrations).
type Notifier interface {
	Notify(ctx context.Context, event store.Event) error
}

// Pending is an event collected during a transaction for emission after
// commit.
type Pending struct {
	Topic       string
	AggregateID string
	Payload     any
}

// Bus persists domain events and dispatches them to notifiers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit records the event and dispatches it to all configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (store.Event, error) {
	if b == nil || b.Store == nil {
		return store.Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return store.Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return store.Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return store.Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertEvent(ctx, store.Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
	})
	if err != nil {
		return store.Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

// EmitAll emits a batch of pending events, joining notifier failures.
// Emission failures never unwind the settlement that produced them.
func (b *Bus) EmitAll(ctx context.Context, pending []Pending) error {
	var joined error
	for _, p := range pending {
		if _, err := b.Emit(ctx, p.Topic, p.AggregateID, p.Payload); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		return encodePayload([]byte(v))
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		data := []byte(v)
		if !json.Valid(data) {
			return nil, errors.New("payload is not valid json")
		}
		return data, nil
	default:
		return json.Marshal(v)
	}
}

// LogNotifier writes every emitted event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event store.Event) error {
	n.Logger.Info().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Msg("domain_event")
	return nil
}
