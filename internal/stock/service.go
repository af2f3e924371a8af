package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
	"github.com/PILOTO-ORG/cunha-sub000/internal/obs"
	"github.com/PILOTO-ORG/cunha-sub000/internal/pricing"
)

// ErrInvalidInput is returned for movements that fail domain checks.
var ErrInvalidInput = errors.New("invalid input")

type repository interface {
	Insert(ctx context.Context, m Movement) (Movement, error)
	ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]Movement, int, error)
	OwnedQty(ctx context.Context, productID int64) (int, error)
	ReservedQty(ctx context.Context, productID int64, start, end time.Time) (int, error)
}

type eventBus interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service maintains the stock ledger and answers availability queries.
type Service struct {
	repo   repository
	bus    eventBus
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo   repository
	Bus    eventBus
	Logger zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("stock: repository is required")
	}
	return &Service{repo: cfg.Repo, bus: cfg.Bus, logger: cfg.Logger}, nil
}

// Availability describes how many units can still be rented in a window.
type Availability struct {
	ProductID int64     `json:"id_produto"`
	Start     time.Time `json:"data_inicio"`
	End       time.Time `json:"data_fim"`
	Owned     int       `json:"quantidade_total"`
	Reserved  int       `json:"quantidade_reservada"`
	Available int       `json:"quantidade_disponivel"`
}

// Availability computes owned minus confirmed overlapping reservations. The
// result can be negative when the window is oversold.
func (s *Service) Availability(ctx context.Context, productID int64, start, end string) (Availability, error) {
	startAt, ok := pricing.ParseDate(start)
	if !ok {
		return Availability{}, fmt.Errorf("start date is invalid: %w", ErrInvalidInput)
	}
	endAt, ok := pricing.ParseDate(end)
	if !ok {
		return Availability{}, fmt.Errorf("end date is invalid: %w", ErrInvalidInput)
	}
	if endAt.Before(startAt) {
		return Availability{}, fmt.Errorf("end date must not precede start date: %w", ErrInvalidInput)
	}
	owned, err := s.repo.OwnedQty(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	reserved, err := s.repo.ReservedQty(ctx, productID, startAt, endAt)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		ProductID: productID,
		Start:     startAt,
		End:       endAt,
		Owned:     owned,
		Reserved:  reserved,
		Available: owned - reserved,
	}, nil
}

// Record validates and appends a ledger movement, then emits stock.moved.
func (s *Service) Record(ctx context.Context, m Movement) (Movement, error) {
	switch m.Kind {
	case KindOut, KindReturn, KindAdjust:
	default:
		return Movement{}, fmt.Errorf("unknown movement kind %q: %w", m.Kind, ErrInvalidInput)
	}
	if m.ProductID <= 0 {
		return Movement{}, fmt.Errorf("product id is required: %w", ErrInvalidInput)
	}
	if m.Quantity == 0 {
		return Movement{}, fmt.Errorf("quantity must not be zero: %w", ErrInvalidInput)
	}
	if m.Quantity < 0 && m.Kind != KindAdjust {
		return Movement{}, fmt.Errorf("only adjustments may be negative: %w", ErrInvalidInput)
	}
	if _, err := s.repo.OwnedQty(ctx, m.ProductID); err != nil {
		return Movement{}, err
	}
	created, err := s.repo.Insert(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	if obs.StockMovementsTotal != nil {
		obs.StockMovementsTotal.WithLabelValues(created.Kind).Inc()
	}
	if s.bus != nil {
		aggregate := "produto:" + strconv.FormatInt(created.ProductID, 10)
		if _, err := s.bus.Emit(ctx, events.TopicStockMoved, aggregate, created); err != nil {
			s.logger.Warn().Err(err).Int64("product_id", created.ProductID).Msg("stock event emit failed")
		}
	}
	return created, nil
}

// ListResult contains movement rows and pagination metadata.
type ListResult struct {
	Items []Movement
	Total int
	Page  int
	Limit int
}

// Movements returns the ledger for a product.
func (s *Service) Movements(ctx context.Context, productID int64, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	items, total, err := s.repo.ListByProduct(ctx, productID, limit, (page-1)*limit)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}
