package budget_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/PILOTO-ORG/cunha-sub000/internal/budget"
	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
	"github.com/PILOTO-ORG/cunha-sub000/internal/pricing"
)

type fakeRepo struct {
	lines     []budget.Line
	nextGroup int64
	nextLine  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextGroup: 1, nextLine: 1}
}

func (f *fakeRepo) NextGroupID(context.Context) (int64, error) {
	id := f.nextGroup
	f.nextGroup++
	return id, nil
}

func (f *fakeRepo) InsertLines(_ context.Context, lines []budget.Line) ([]budget.Line, error) {
	out := make([]budget.Line, 0, len(lines))
	for _, l := range lines {
		l.ID = f.nextLine
		l.CreatedAt = time.Now()
		l.UpdatedAt = l.CreatedAt
		f.nextLine++
		f.lines = append(f.lines, l)
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeRepo) LinesByGroup(_ context.Context, groupID int64) ([]budget.Line, error) {
	var out []budget.Line
	for _, l := range f.lines {
		if l.GroupID == groupID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) Lines(_ context.Context, filter budget.ListFilter) ([]budget.Line, error) {
	var out []budget.Line
	for _, l := range f.lines {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.ClientID > 0 && l.ClientID != filter.ClientID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeRepo) GroupStatus(_ context.Context, groupID int64) (string, error) {
	for _, l := range f.lines {
		if l.GroupID == groupID {
			return l.Status, nil
		}
	}
	return "", budget.ErrNotFound
}

func (f *fakeRepo) UpdateGroupStatus(_ context.Context, groupID int64, allowedFrom []string, to string) (int64, error) {
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

type stubProducts struct {
	lookup pricing.ProductLookup
}

func (s *stubProducts) Lookup(context.Context) (pricing.ProductLookup, error) {
	return s.lookup, nil
}

type stubClients struct {
	lookup pricing.ClientLookup
}

func (s *stubClients) Lookup(context.Context) (pricing.ClientLookup, error) {
	return s.lookup, nil
}

type stubBus struct {
	topics []string
}

func (s *stubBus) Emit(_ context.Context, topic, _ string, _ any) (events.Event, error) {
	s.topics = append(s.topics, topic)
	return events.Event{}, nil
}

func price(v float64) *float64 { return &v }

func fixture(t *testing.T) (*budget.Service, *fakeRepo, *stubBus) {
	t.Helper()
	repo := newFakeRepo()
	bus := &stubBus{}
	svc, err := budget.NewService(budget.ServiceConfig{
		Repo: repo,
		Products: &stubProducts{lookup: pricing.ProductLookup{
			10: {ID: 10, Name: "Toalha redonda", DailyPrice: price(5), ReplacementValue: price(40), OwnedQty: 50},
			20: {ID: 20, Name: "Mesa redonda", DailyPrice: price(10), ReplacementValue: price(200), OwnedQty: 40},
		}},
		Clients: &stubClients{lookup: pricing.ClientLookup{
			7: {ID: 7, Name: "Maria Souza"},
		}},
		Bus:               bus,
		Logger:            zerolog.Nop(),
		MaxRentalDays:     30,
		DefaultDepositPct: 30,
	})
	require.NoError(t, err)
	return svc, repo, bus
}

func validInput() budget.CreateInput {
	return budget.CreateInput{
		ClientID: 7,
		VenueID:  3,
		Start:    "2025-06-01",
		End:      "2025-06-04",
		Freight:  40,
		Discount: 30,
		Items: []budget.ItemInput{
			{ProductID: 10, Quantity: 4},
			{ProductID: 20, Quantity: 1},
		},
	}
}

func TestCreatePricesAndStoresGroup(t *testing.T) {
	svc, repo, bus := fixture(t)

	quote, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, int64(1), quote.GroupID)
	require.Equal(t, "Maria Souza", quote.ClientName)
	require.Len(t, quote.Items, 2)

	// 4 towels * 5 * 3 days + 1 table * 10 * 3 days
	require.InDelta(t, 90.0, quote.Total, 1e-9)

	require.Len(t, repo.lines, 2)
	for _, l := range repo.lines {
		require.Equal(t, budget.StatusDraft, l.Status)
		require.Equal(t, 3, l.Days)
		require.Equal(t, 30.0, l.DepositPct)
	}
	require.InDelta(t, 60.0, repo.lines[0].LineTotal, 1e-9)
	require.InDelta(t, 30.0, repo.lines[1].LineTotal, 1e-9)
	require.Equal(t, []string{events.TopicBudgetCreated}, bus.topics)
}

func TestGetRepricesAgainstCurrentCatalog(t *testing.T) {
	repo := newFakeRepo()
	products := &stubProducts{lookup: pricing.ProductLookup{
		10: {ID: 10, Name: "Toalha redonda", DailyPrice: price(5), OwnedQty: 50},
		20: {ID: 20, Name: "Mesa redonda", DailyPrice: price(10), OwnedQty: 40},
	}}
	svc, err := budget.NewService(budget.ServiceConfig{
		Repo:              repo,
		Products:          products,
		Clients:           &stubClients{lookup: pricing.ClientLookup{7: {ID: 7, Name: "Maria Souza"}}},
		Bus:               &stubBus{},
		Logger:            zerolog.Nop(),
		MaxRentalDays:     30,
		DefaultDepositPct: 30,
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	// The stored rows keep the quote as submitted.
	require.InDelta(t, 60.0, repo.lines[0].LineTotal, 1e-9)

	// A catalog price change shows up on the next read.
	products.lookup[10] = pricing.Product{ID: 10, Name: "Toalha redonda", DailyPrice: price(8), OwnedQty: 50}

	got, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	// 4 towels * 8 * 3 days + 1 table * 10 * 3 days
	require.InDelta(t, 126.0, got.Total, 1e-9)
}

func TestCreateRejectsInvalidSubmission(t *testing.T) {
	svc, repo, _ := fixture(t)

	in := validInput()
	in.Items = append(in.Items, budget.ItemInput{ProductID: 99, Quantity: 1})
	in.ClientID = 42
	in.End = ""

	_, err := svc.Create(context.Background(), in)
	var verr *budget.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Reasons, 3)
	require.Empty(t, repo.lines)
}

func TestPreviewReturnsQuoteAndReasonsWithoutPersisting(t *testing.T) {
	svc, repo, _ := fixture(t)

	in := validInput()
	in.Items[0].Quantity = -1
	quote, reasons, err := svc.Preview(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, reasons, 1)
	require.Len(t, quote.Lines, 2)
	require.Zero(t, quote.Lines[0].Subtotal)
	require.Empty(t, repo.lines)
}

func TestSendTransition(t *testing.T) {
	svc, _, bus := fixture(t)
	ctx := context.Background()

	quote, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Send(ctx, quote.GroupID))

	got, err := svc.Get(ctx, quote.GroupID)
	require.NoError(t, err)
	require.Equal(t, budget.StatusSent, got.Status)

	// already SENT
	require.ErrorIs(t, svc.Send(ctx, quote.GroupID), budget.ErrInvalidTransition)
	require.ErrorIs(t, svc.Send(ctx, 999), budget.ErrNotFound)
	require.Equal(t, []string{events.TopicBudgetCreated, events.TopicBudgetStatusChanged}, bus.topics)
}

func TestListOrdersCancelledLast(t *testing.T) {
	svc, repo, _ := fixture(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	second := validInput()
	second.Start = "2025-07-01"
	second.End = "2025-07-02"
	other, err := svc.Create(ctx, second)
	require.NoError(t, err)

	_, err = repo.UpdateGroupStatus(ctx, other.GroupID, []string{budget.StatusDraft}, budget.StatusCancelled)
	require.NoError(t, err)

	quotes, err := svc.List(ctx, budget.ListFilter{})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, first.GroupID, quotes[0].GroupID)
	require.Equal(t, budget.StatusCancelled, quotes[1].Status)
}
