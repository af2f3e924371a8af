package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/PILOTO-ORG/cunha-sub000/internal/budget"
	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
	"github.com/PILOTO-ORG/cunha-sub000/internal/reservation"
	"github.com/PILOTO-ORG/cunha-sub000/internal/stock"
)

type fakeStore struct {
	lines []budget.Line
}

func (f *fakeStore) LinesByGroup(_ context.Context, groupID int64) ([]budget.Line, error) {
	var out []budget.Line
	for _, l := range f.lines {
		if l.GroupID == groupID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) GroupStatus(_ context.Context, groupID int64) (string, error) {
	for _, l := range f.lines {
		if l.GroupID == groupID {
			return l.Status, nil
		}
	}
	return "", budget.ErrNotFound
}

func (f *fakeStore) UpdateGroupStatus(_ context.Context, groupID int64, allowedFrom []string, to string) (int64, error) {
	var changed int64
	for i, l := range f.lines {
		if l.GroupID != groupID {
			continue
		}
		for _, from := range allowedFrom {
			if l.Status == from {
				f.lines[i].Status = to
				changed++
				break
			}
		}
	}
	return changed, nil
}

type fakeStock struct {
	available map[int64]int
	recorded  []stock.Movement
}

func (f *fakeStock) Availability(_ context.Context, productID int64, _, _ string) (stock.Availability, error) {
	return stock.Availability{ProductID: productID, Available: f.available[productID]}, nil
}

func (f *fakeStock) Record(_ context.Context, m stock.Movement) (stock.Movement, error) {
	f.recorded = append(f.recorded, m)
	return m, nil
}

type serialLocker struct {
	keys []string
}

func (l *serialLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	return fn(ctx)
}

type stubBus struct {
	topics []string
}

func (s *stubBus) Emit(_ context.Context, topic, _ string, _ any) (events.Event, error) {
	s.topics = append(s.topics, topic)
	return events.Event{}, nil
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func fixture(t *testing.T, status string) (*reservation.Service, *fakeStore, *fakeStock, *serialLocker, *stubBus) {
	t.Helper()
	store := &fakeStore{lines: []budget.Line{
		{ID: 1, GroupID: 5, ProductID: 10, Quantity: 4, Start: day("2025-06-01"), End: day("2025-06-04"), Status: status},
		{ID: 2, GroupID: 5, ProductID: 20, Quantity: 1, Start: day("2025-06-01"), End: day("2025-06-04"), Status: status},
	}}
	st := &fakeStock{available: map[int64]int{10: 10, 20: 3}}
	lk := &serialLocker{}
	bus := &stubBus{}
	svc, err := reservation.NewService(reservation.ServiceConfig{
		Store:  store,
		Stock:  st,
		Locker: lk,
		Bus:    bus,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc, store, st, lk, bus
}

func TestConfirmRecordsStockOut(t *testing.T) {
	svc, store, st, lk, bus := fixture(t, budget.StatusSent)
	ctx := context.Background()

	require.NoError(t, svc.Confirm(ctx, 5))
	require.Equal(t, budget.StatusConfirmed, store.lines[0].Status)
	require.Equal(t, budget.StatusConfirmed, store.lines[1].Status)
	require.Len(t, st.recorded, 2)
	require.Equal(t, stock.KindOut, st.recorded[0].Kind)
	require.Equal(t, 4, st.recorded[0].Quantity)
	require.Equal(t, []string{"reserva:confirm:5"}, lk.keys)
	require.Equal(t, []string{events.TopicReservationConfirmed}, bus.topics)
}

func TestConfirmFailsOnInsufficientStock(t *testing.T) {
	svc, store, st, _, _ := fixture(t, budget.StatusDraft)
	st.available[20] = 0

	err := svc.Confirm(context.Background(), 5)
	var stockErr *reservation.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(20), stockErr.ProductID)
	require.Equal(t, budget.StatusDraft, store.lines[0].Status)
	require.Empty(t, st.recorded)
}

func TestConfirmRejectsWrongStatus(t *testing.T) {
	svc, _, _, _, _ := fixture(t, budget.StatusCancelled)
	require.ErrorIs(t, svc.Confirm(context.Background(), 5), reservation.ErrInvalidTransition)

	svc2, _, _, _, _ := fixture(t, budget.StatusSent)
	require.ErrorIs(t, svc2.Confirm(context.Background(), 99), reservation.ErrNotFound)
}

func TestCancelConfirmedReturnsStock(t *testing.T) {
	svc, store, st, _, bus := fixture(t, budget.StatusConfirmed)
	ctx := context.Background()

	require.NoError(t, svc.Cancel(ctx, 5))
	require.Equal(t, budget.StatusCancelled, store.lines[0].Status)
	require.Len(t, st.recorded, 2)
	require.Equal(t, stock.KindReturn, st.recorded[0].Kind)
	require.Equal(t, []string{events.TopicReservationCancelled}, bus.topics)

	require.ErrorIs(t, svc.Cancel(ctx, 5), reservation.ErrInvalidTransition)
}

func TestCancelDraftSkipsStockReturn(t *testing.T) {
	svc, store, st, _, _ := fixture(t, budget.StatusDraft)

	require.NoError(t, svc.Cancel(context.Background(), 5))
	require.Equal(t, budget.StatusCancelled, store.lines[0].Status)
	require.Empty(t, st.recorded)
}
