package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
	"github.com/PILOTO-ORG/cunha-sub000/internal/stock"
)

type fakeRepo struct {
	owned     map[int64]int
	reserved  map[int64]int
	movements []stock.Movement
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{owned: map[int64]int{}, reserved: map[int64]int{}, nextID: 1}
}

func (f *fakeRepo) Insert(_ context.Context, m stock.Movement) (stock.Movement, error) {
	m.ID = f.nextID
	m.CreatedAt = time.Now()
	f.nextID++
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeRepo) ListByProduct(_ context.Context, productID int64, limit, offset int) ([]stock.Movement, int, error) {
	var all []stock.Movement
	for _, m := range f.movements {
		if m.ProductID == productID {
			all = append(all, m)
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeRepo) OwnedQty(_ context.Context, productID int64) (int, error) {
	owned, ok := f.owned[productID]
	if !ok {
		return 0, stock.ErrProductNotFound
	}
	return owned, nil
}

func (f *fakeRepo) ReservedQty(_ context.Context, productID int64, _, _ time.Time) (int, error) {
	return f.reserved[productID], nil
}

type stubBus struct {
	emitted []string
}

func (s *stubBus) Emit(_ context.Context, topic, _ string, _ any) (events.Event, error) {
	s.emitted = append(s.emitted, topic)
	return events.Event{}, nil
}

func newTestService(t *testing.T) (*stock.Service, *fakeRepo, *stubBus) {
	t.Helper()
	repo := newFakeRepo()
	bus := &stubBus{}
	svc, err := stock.NewService(stock.ServiceConfig{Repo: repo, Bus: bus, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return svc, repo, bus
}

func TestAvailability(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.owned[1] = 40
	repo.reserved[1] = 25

	av, err := svc.Availability(context.Background(), 1, "2025-06-01", "2025-06-03")
	require.NoError(t, err)
	require.Equal(t, 40, av.Owned)
	require.Equal(t, 25, av.Reserved)
	require.Equal(t, 15, av.Available)
}

func TestAvailabilityOversoldGoesNegative(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.owned[1] = 10
	repo.reserved[1] = 12

	av, err := svc.Availability(context.Background(), 1, "2025-06-01", "2025-06-03")
	require.NoError(t, err)
	require.Equal(t, -2, av.Available)
}

func TestAvailabilityRejectsBadDates(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.owned[1] = 10

	_, err := svc.Availability(context.Background(), 1, "not-a-date", "2025-06-03")
	require.ErrorIs(t, err, stock.ErrInvalidInput)

	_, err = svc.Availability(context.Background(), 1, "2025-06-05", "2025-06-03")
	require.ErrorIs(t, err, stock.ErrInvalidInput)
}

func TestRecordValidatesAndEmits(t *testing.T) {
	svc, repo, bus := newTestService(t)
	repo.owned[1] = 10

	_, err := svc.Record(context.Background(), stock.Movement{ProductID: 1, Kind: "whatever", Quantity: 1})
	require.ErrorIs(t, err, stock.ErrInvalidInput)

	_, err = svc.Record(context.Background(), stock.Movement{ProductID: 1, Kind: stock.KindOut, Quantity: 0})
	require.ErrorIs(t, err, stock.ErrInvalidInput)

	_, err = svc.Record(context.Background(), stock.Movement{ProductID: 1, Kind: stock.KindOut, Quantity: -3})
	require.ErrorIs(t, err, stock.ErrInvalidInput)

	_, err = svc.Record(context.Background(), stock.Movement{ProductID: 99, Kind: stock.KindOut, Quantity: 1})
	require.ErrorIs(t, err, stock.ErrProductNotFound)

	m, err := svc.Record(context.Background(), stock.Movement{ProductID: 1, Kind: stock.KindAdjust, Quantity: -2})
	require.NoError(t, err)
	require.Equal(t, int64(1), m.ID)
	require.Equal(t, []string{events.TopicStockMoved}, bus.emitted)
}
