package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/PILOTO-ORG/cunha-sub000/internal/budget"
	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
	"github.com/PILOTO-ORG/cunha-sub000/internal/obs"
	"github.com/PILOTO-ORG/cunha-sub000/internal/stock"
)

// ErrNotFound indicates the reservation group does not exist.
var ErrNotFound = errors.New("reservation not found")

// ErrInvalidTransition indicates the group is not in a confirmable or
// cancellable status.
var ErrInvalidTransition = errors.New("invalid status transition")

// InsufficientStockError reports the first product that cannot be covered in
// the requested window.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %d: requested %d, only %d available", e.ProductID, e.Requested, e.Available)
}

type budgetStore interface {
	LinesByGroup(ctx context.Context, groupID int64) ([]budget.Line, error)
	GroupStatus(ctx context.Context, groupID int64) (string, error)
	UpdateGroupStatus(ctx context.Context, groupID int64, allowedFrom []string, to string) (int64, error)
}

type stockKeeper interface {
	Availability(ctx context.Context, productID int64, start, end string) (stock.Availability, error)
	Record(ctx context.Context, m stock.Movement) (stock.Movement, error)
}

type locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

type eventBus interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service turns budgets into effective reservations and back.
type Service struct {
	store   budgetStore
	stock   stockKeeper
	locker  locker
	bus     eventBus
	logger  zerolog.Logger
	lockTTL time.Duration
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store   budgetStore
	Stock   stockKeeper
	Locker  locker
	Bus     eventBus
	Logger  zerolog.Logger
	LockTTL time.Duration
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("reservation: budget store is required")
	}
	if cfg.Stock == nil {
		return nil, errors.New("reservation: stock keeper is required")
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Service{
		store:   cfg.Store,
		stock:   cfg.Stock,
		locker:  cfg.Locker,
		bus:     cfg.Bus,
		logger:  cfg.Logger,
		lockTTL: ttl,
	}, nil
}

// Confirm checks stock availability for every line of the group and, when
// everything fits, moves the group to CONFIRMED and records the stock-out
// movements. The whole check-then-commit runs under a per-group lock, so the
// same group cannot be confirmed twice concurrently. Confirmations of
// different groups sharing a product are not serialized against each other;
// the availability check can race across groups.
func (s *Service) Confirm(ctx context.Context, groupID int64) error {
	run := func(ctx context.Context) error {
		return s.confirmLocked(ctx, groupID)
	}
	var err error
	if s.locker != nil {
		key := "reserva:confirm:" + strconv.FormatInt(groupID, 10)
		err = s.locker.WithLock(ctx, key, s.lockTTL, run)
	} else {
		err = run(ctx)
	}
	s.countConfirm(err)
	return err
}

func (s *Service) confirmLocked(ctx context.Context, groupID int64) error {
	status, err := s.store.GroupStatus(ctx, groupID)
	if err != nil {
		if errors.Is(err, budget.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if status != budget.StatusDraft && status != budget.StatusSent {
		return ErrInvalidTransition
	}

	lines, err := s.store.LinesByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		av, err := s.stock.Availability(ctx, l.ProductID, l.Start.Format("2006-01-02"), l.End.Format("2006-01-02"))
		if err != nil {
			return err
		}
		if l.Quantity > av.Available {
			return &InsufficientStockError{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Available: av.Available,
			}
		}
	}

	changed, err := s.store.UpdateGroupStatus(ctx, groupID,
		[]string{budget.StatusDraft, budget.StatusSent}, budget.StatusConfirmed)
	if err != nil {
		return err
	}
	if changed == 0 {
		return ErrInvalidTransition
	}

	s.recordMovements(ctx, lines, stock.KindOut)
	s.emit(ctx, events.TopicReservationConfirmed, groupID, budget.StatusConfirmed)
	return nil
}

// Cancel moves a group to CANCELLED. Confirmed groups also get their stock
// returned to the ledger.
func (s *Service) Cancel(ctx context.Context, groupID int64) error {
	status, err := s.store.GroupStatus(ctx, groupID)
	if err != nil {
		if errors.Is(err, budget.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if status == budget.StatusCancelled {
		return ErrInvalidTransition
	}

	changed, err := s.store.UpdateGroupStatus(ctx, groupID,
		[]string{budget.StatusDraft, budget.StatusSent, budget.StatusConfirmed}, budget.StatusCancelled)
	if err != nil {
		return err
	}
	if changed == 0 {
		return ErrInvalidTransition
	}

	if status == budget.StatusConfirmed {
		lines, err := s.store.LinesByGroup(ctx, groupID)
		if err != nil {
			s.logger.Error().Err(err).Int64("id_reserva", groupID).Msg("stock return skipped")
		} else {
			s.recordMovements(ctx, lines, stock.KindReturn)
		}
	}
	s.emit(ctx, events.TopicReservationCancelled, groupID, budget.StatusCancelled)
	return nil
}

func (s *Service) recordMovements(ctx context.Context, lines []budget.Line, kind string) {
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		gid := l.GroupID
		_, err := s.stock.Record(ctx, stock.Movement{
			ProductID:     l.ProductID,
			ReservationID: &gid,
			Kind:          kind,
			Quantity:      l.Quantity,
		})
		if err != nil {
			s.logger.Error().Err(err).
				Int64("id_reserva", l.GroupID).
				Int64("id_produto", l.ProductID).
				Str("tipo", kind).
				Msg("stock movement not recorded")
		}
	}
}

func (s *Service) countConfirm(err error) {
	if obs.ReservationsConfirmedTotal == nil {
		return
	}
	result := "success"
	var stockErr *InsufficientStockError
	switch {
	case err == nil:
	case errors.As(err, &stockErr):
		result = "insufficient_stock"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
		result = "rejected"
	default:
		result = "error"
	}
	obs.ReservationsConfirmedTotal.WithLabelValues(result).Inc()
}

func (s *Service) emit(ctx context.Context, topic string, groupID int64, status string) {
	if obs.BudgetStatusTotal != nil {
		obs.BudgetStatusTotal.WithLabelValues(status).Inc()
	}
	if s.bus == nil {
		return
	}
	aggregate := "reserva:" + strconv.FormatInt(groupID, 10)
	payload := map[string]any{"id_reserva": groupID, "status": status}
	if _, err := s.bus.Emit(ctx, topic, aggregate, payload); err != nil {
		s.logger.Warn().Err(err).Int64("id_reserva", groupID).Str("topic", topic).Msg("reservation event emit failed")
	}
}
