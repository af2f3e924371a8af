package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
	"github.com/PILOTO-ORG/cunha-sub000/internal/obs"
	"github.com/PILOTO-ORG/cunha-sub000/internal/pricing"
)

// ErrInvalidTransition indicates the requested status change is not allowed
// from the group's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError carries every reason a submission was rejected.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "budget validation failed: " + strings.Join(e.Reasons, "; ")
}

type repository interface {
	NextGroupID(ctx context.Context) (int64, error)
	InsertLines(ctx context.Context, lines []Line) ([]Line, error)
	LinesByGroup(ctx context.Context, groupID int64) ([]Line, error)
	Lines(ctx context.Context, f ListFilter) ([]Line, error)
	GroupStatus(ctx context.Context, groupID int64) (string, error)
	UpdateGroupStatus(ctx context.Context, groupID int64, allowedFrom []string, to string) (int64, error)
}

type productSource interface {
	Lookup(ctx context.Context) (pricing.ProductLookup, error)
}

type clientSource interface {
	Lookup(ctx context.Context) (pricing.ClientLookup, error)
}

type eventBus interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service prices, validates, stores, and reassembles budgets.
type Service struct {
	repo       repository
	products   productSource
	clients    clientSource
	bus        eventBus
	logger     zerolog.Logger
	maxDays    int
	depositPct float64
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo     repository
	Products productSource
	Clients  clientSource
	Bus      eventBus
	Logger   zerolog.Logger
	// MaxRentalDays caps the rental window accepted at submission.
	MaxRentalDays int
	// DefaultDepositPct applies when the payload does not set one.
	DefaultDepositPct float64
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("budget: repository is required")
	}
	if cfg.Products == nil {
		return nil, errors.New("budget: product source is required")
	}
	if cfg.Clients == nil {
		return nil, errors.New("budget: client source is required")
	}
	maxDays := cfg.MaxRentalDays
	if maxDays <= 0 {
		maxDays = pricing.DefaultMaxRentalDays
	}
	return &Service{
		repo:       cfg.Repo,
		products:   cfg.Products,
		clients:    cfg.Clients,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		maxDays:    maxDays,
		depositPct: cfg.DefaultDepositPct,
	}, nil
}

// ItemInput is one requested product/quantity pair.
type ItemInput struct {
	ProductID int64 `json:"id_produto"`
	Quantity  int   `json:"quantidade"`
}

// CreateInput is the budget submission payload.
type CreateInput struct {
	ClientID   int64       `json:"id_cliente"`
	VenueID    int64       `json:"id_local"`
	Start      string      `json:"data_inicio"`
	End        string      `json:"data_fim"`
	Freight    float64     `json:"frete"`
	Discount   float64     `json:"desconto"`
	DepositPct *float64    `json:"percentual_caucao"`
	Notes      string      `json:"observacoes"`
	Items      []ItemInput `json:"itens"`
}

// Preview prices a submission without persisting anything. Validation
// reasons are returned alongside the quote so the caller can render both.
func (s *Service) Preview(ctx context.Context, in CreateInput) (pricing.Quote, []string, error) {
	products, err := s.products.Lookup(ctx)
	if err != nil {
		return pricing.Quote{}, nil, err
	}
	lines := toLineInputs(in.Items)
	period := pricing.Period{Start: in.Start, End: in.End}
	reasons := pricing.Validate(lines, products, period, pricing.ValidateOptions{MaxDays: s.maxDays})
	quote := pricing.Price(lines, products, period, s.adjustments(in))
	return quote, reasons, nil
}

// Create validates, prices, and stores a new DRAFT budget. The priced
// per-line values are written to the rows as a record of the submitted
// quote; reads re-price against the current catalog, so detail and list
// views reflect whatever the products cost today.
func (s *Service) Create(ctx context.Context, in CreateInput) (pricing.AggregatedQuote, error) {
	products, err := s.products.Lookup(ctx)
	if err != nil {
		return pricing.AggregatedQuote{}, err
	}
	clients, err := s.clients.Lookup(ctx)
	if err != nil {
		return pricing.AggregatedQuote{}, err
	}

	lines := toLineInputs(in.Items)
	period := pricing.Period{Start: in.Start, End: in.End}
	reasons := pricing.Validate(lines, products, period, pricing.ValidateOptions{MaxDays: s.maxDays})
	if _, ok := clients[in.ClientID]; !ok {
		reasons = append(reasons, fmt.Sprintf("client %d not found", in.ClientID))
	}
	if len(reasons) > 0 {
		s.countCreated("invalid")
		return pricing.AggregatedQuote{}, &ValidationError{Reasons: reasons}
	}

	quote := pricing.Price(lines, products, period, s.adjustments(in))
	start, _ := pricing.ParseDate(in.Start)
	end, _ := pricing.ParseDate(in.End)

	groupID, err := s.repo.NextGroupID(ctx)
	if err != nil {
		s.countCreated("error")
		return pricing.AggregatedQuote{}, err
	}
	rows := make([]Line, 0, len(quote.Lines))
	for _, pl := range quote.Lines {
		rows = append(rows, Line{
			GroupID:    groupID,
			ClientID:   in.ClientID,
			VenueID:    in.VenueID,
			ProductID:  pl.ProductID,
			Quantity:   pl.Quantity,
			Start:      start,
			End:        end,
			Status:     StatusDraft,
			Freight:    quote.Freight,
			Discount:   quote.Discount,
			DepositPct: s.resolveDepositPct(in),
			Days:       pl.Days,
			UnitPrice:  pl.UnitPrice,
			LineTotal:  pl.Subtotal,
			Notes:      in.Notes,
		})
	}
	stored, err := s.repo.InsertLines(ctx, rows)
	if err != nil {
		s.countCreated("error")
		return pricing.AggregatedQuote{}, err
	}
	s.countCreated("success")
	s.emit(ctx, events.TopicBudgetCreated, groupID, map[string]any{
		"id_reserva":  groupID,
		"id_cliente":  in.ClientID,
		"status":      StatusDraft,
		"valor_total": quote.GrandTotal,
	})
	return s.aggregate(stored, clients, products), nil
}

// Get reassembles one budget group.
func (s *Service) Get(ctx context.Context, groupID int64) (pricing.AggregatedQuote, error) {
	stored, err := s.repo.LinesByGroup(ctx, groupID)
	if err != nil {
		return pricing.AggregatedQuote{}, err
	}
	if len(stored) == 0 {
		return pricing.AggregatedQuote{}, ErrNotFound
	}
	products, err := s.products.Lookup(ctx)
	if err != nil {
		return pricing.AggregatedQuote{}, err
	}
	clients, err := s.clients.Lookup(ctx)
	if err != nil {
		return pricing.AggregatedQuote{}, err
	}
	return s.aggregate(stored, clients, products), nil
}

// List reassembles recent budgets, cancelled groups last, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]pricing.AggregatedQuote, error) {
	stored, err := s.repo.Lines(ctx, f)
	if err != nil {
		return nil, err
	}
	products, err := s.products.Lookup(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := s.clients.Lookup(ctx)
	if err != nil {
		return nil, err
	}
	flat := make([]pricing.FlatLine, 0, len(stored))
	for _, l := range stored {
		flat = append(flat, l.Flat())
	}
	quotes := pricing.Aggregate(flat, clients, products)
	return pricing.OrderForDisplay(quotes, pricing.DisplayOrder{
		CancelledLast: true,
		StartDateDesc: true,
	}), nil
}

// Send moves a DRAFT budget to SENT.
func (s *Service) Send(ctx context.Context, groupID int64) error {
	return s.transition(ctx, groupID, []string{StatusDraft}, StatusSent)
}

func (s *Service) transition(ctx context.Context, groupID int64, allowedFrom []string, to string) error {
	changed, err := s.repo.UpdateGroupStatus(ctx, groupID, allowedFrom, to)
	if err != nil {
		return err
	}
	if changed == 0 {
		if _, err := s.repo.GroupStatus(ctx, groupID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	if obs.BudgetStatusTotal != nil {
		obs.BudgetStatusTotal.WithLabelValues(to).Inc()
	}
	s.emit(ctx, events.TopicBudgetStatusChanged, groupID, map[string]any{
		"id_reserva": groupID,
		"status":     to,
	})
	return nil
}

func (s *Service) aggregate(stored []Line, clients pricing.ClientLookup, products pricing.ProductLookup) pricing.AggregatedQuote {
	flat := make([]pricing.FlatLine, 0, len(stored))
	for _, l := range stored {
		flat = append(flat, l.Flat())
	}
	quotes := pricing.Aggregate(flat, clients, products)
	if len(quotes) == 0 {
		return pricing.AggregatedQuote{}
	}
	return quotes[0]
}

func (s *Service) adjustments(in CreateInput) pricing.Adjustments {
	return pricing.Adjustments{
		Freight:    in.Freight,
		Discount:   in.Discount,
		DepositPct: s.resolveDepositPct(in),
	}
}

func (s *Service) resolveDepositPct(in CreateInput) float64 {
	if in.DepositPct != nil {
		return *in.DepositPct
	}
	return s.depositPct
}

func (s *Service) countCreated(result string) {
	if obs.BudgetsCreatedTotal != nil {
		obs.BudgetsCreatedTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) emit(ctx context.Context, topic string, groupID int64, payload any) {
	if s.bus == nil {
		return
	}
	aggregate := "reserva:" + strconv.FormatInt(groupID, 10)
	if _, err := s.bus.Emit(ctx, topic, aggregate, payload); err != nil {
		s.logger.Warn().Err(err).Int64("id_reserva", groupID).Str("topic", topic).Msg("budget event emit failed")
	}
}

func toLineInputs(items []ItemInput) []pricing.LineInput {
	lines := make([]pricing.LineInput, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.LineInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}
