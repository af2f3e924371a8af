package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
)

type stubStore struct {
	last events.Event
}

func (s *stubStore) Insert(_ context.Context, event events.Event) (events.Event, error) {
	s.last = event
	return event, nil
}

type captureScheduler struct {
	events []events.Event
}

func (c *captureScheduler) Schedule(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Scheduler: scheduler,
		Notifiers: []events.Notifier{notifier},
	}

	payload := map[string]any{"id_reserva": int64(123)}
	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicBudgetCreated, "reserva:123", payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicBudgetCreated, store.last.Topic)
	require.Equal(t, "reserva:123", store.last.AggregateID)
	require.JSONEq(t, `{"id_reserva":123}`, string(store.last.Payload))
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, scheduler.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, float64(123), decoded["id_reserva"])
}

func TestEmitRejectsMissingTopicAndAggregate(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "  ", "reserva:1", nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicStockMoved, "", nil)
	require.Error(t, err)
}

func TestEmitRejectsInvalidJSONPayload(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), events.TopicStockMoved, "produto:1", "{not json")
	require.Error(t, err)
}
