package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/techhaven/backend-pos/internal/store"
)

type fakeEventStore struct {
	inserted []store.Event
	fail     error
}

func (f *fakeEventStore) InsertEvent(_ context.Context, e store.Event) (store.Event, error) {
	if f.fail != nil {
		return store.Event{}, f.fail
	}
	f.inserted = append(f.inserted, e)
	return e, nil
}

type recordingNotifier struct {
	seen []store.Event
	fail error
}

func (n *recordingNotifier) Notify(_ context.Context, e store.Event) error {
	n.seen = append(n.seen, e)
	return n.fail
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	fs := &fakeEventStore{}
	notifier := &recordingNotifier{}
	bus := &Bus{Store: fs, Notifiers: []Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), TopicSaleSettled, "42", map[string]any{"total": "22.00"})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, TopicSaleSettled, ev.Topic)
	require.Len(t, fs.inserted, 1)
	require.Len(t, notifier.seen, 1)
	require.JSONEq(t, `{"total":"22.00"}`, string(ev.Payload))
}

func TestEmitRejectsBlankTopicAndAggregate(t *testing.T) {
	bus := &Bus{Store: &fakeEventStore{}}
	_, err := bus.Emit(context.Background(), " ", "42", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), TopicSaleSettled, "", nil)
	require.Error(t, err)
}

func TestEmitNotifierFailureDoesNotDropEvent(t *testing.T) {
	fs := &fakeEventStore{}
	notifier := &recordingNotifier{fail: errors.New("boom")}
	bus := &Bus{Store: fs, Notifiers: []Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), TopicLowStock, "7", nil)
	require.Error(t, err)
	require.NotEmpty(t, ev.ID)
	require.Len(t, fs.inserted, 1)
}

func TestEmitAllContinuesPastFailures(t *testing.T) {
	fs := &fakeEventStore{}
	bus := &Bus{Store: fs}
	pending := []Pending{
		{Topic: "", AggregateID: "1"},
		{Topic: TopicTierChanged, AggregateID: "2", Payload: map[string]string{"tier": "vip"}},
	}
	err := bus.EmitAll(context.Background(), pending)
	require.Error(t, err)
	require.Len(t, fs.inserted, 1)
}

func TestEncodePayloadRejectsInvalidJSON(t *testing.T) {
	bus := &Bus{Store: &fakeEventStore{}}
	_, err := bus.Emit(context.Background(), TopicSaleSettled, "1", []byte("{not json"))
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), TopicSaleSettled, "1", "{not json")
	require.Error(t, err)
}
