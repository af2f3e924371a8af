package venue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PILOTO-ORG/cunha-sub000/internal/venue"
)

type fakeRepo struct {
	venues map[int64]venue.Venue
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{venues: map[int64]venue.Venue{}, nextID: 1}
}

func (f *fakeRepo) List(_ context.Context, _ string, limit, offset int) ([]venue.Venue, int, error) {
	var all []venue.Venue
	for _, v := range f.venues {
		all = append(all, v)
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

func (f *fakeRepo) Get(_ context.Context, id int64) (venue.Venue, error) {
	v, ok := f.venues[id]
	if !ok {
		return venue.Venue{}, venue.ErrNotFound
	}
	return v, nil
}

func (f *fakeRepo) Create(_ context.Context, v venue.Venue) (venue.Venue, error) {
	v.ID = f.nextID
	f.nextID++
	f.venues[v.ID] = v
	return v, nil
}

func (f *fakeRepo) Update(_ context.Context, v venue.Venue) (venue.Venue, error) {
	if _, ok := f.venues[v.ID]; !ok {
		return venue.Venue{}, venue.ErrNotFound
	}
	f.venues[v.ID] = v
	return v, nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.venues[id]; !ok {
		return venue.ErrNotFound
	}
	delete(f.venues, id)
	return nil
}

func TestServiceValidation(t *testing.T) {
	svc, err := venue.NewService(newFakeRepo())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Create(ctx, venue.Venue{Name: "  "})
	require.ErrorIs(t, err, venue.ErrInvalidInput)

	negative := -1
	_, err = svc.Create(ctx, venue.Venue{Name: "Salão Azul", Capacity: &negative})
	require.ErrorIs(t, err, venue.ErrInvalidInput)

	created, err := svc.Create(ctx, venue.Venue{Name: " Salão Azul "})
	require.NoError(t, err)
	require.Equal(t, "Salão Azul", created.Name)

	_, err = svc.Update(ctx, venue.Venue{ID: 0, Name: "x"})
	require.ErrorIs(t, err, venue.ErrInvalidInput)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, venue.ErrNotFound)
}
