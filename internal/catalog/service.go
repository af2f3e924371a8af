package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PILOTO-ORG/cunha-sub000/internal/pricing"
)

// ErrInvalidInput is returned for payloads that fail domain checks.
var ErrInvalidInput = errors.New("invalid input")

type repository interface {
	List(ctx context.Context, search string, limit, offset int) ([]Product, int, error)
	All(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, p Product) (Product, error)
	Deactivate(ctx context.Context, id int64) error
}

// Service orchestrates catalog queries, pricing lookups, and caching.
type Service struct {
	repo  repository
	cache *Cache
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo  repository
	Cache *Cache
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("catalog: repository is required")
	}
	return &Service{repo: cfg.Repo, cache: cfg.Cache}, nil
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Product
	Total int
	Page  int
	Limit int
}

// List returns a page of active products, optionally filtered by name.
func (s *Service) List(ctx context.Context, search string, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	items, total, err := s.repo.List(ctx, search, limit, (page-1)*limit)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

const lookupCacheKey = "catalog:lookup"

// Lookup loads every active product keyed by id, the shape the pricing core
// consumes. The result is cached; writes invalidate it.
func (s *Service) Lookup(ctx context.Context) (pricing.ProductLookup, error) {
	var cached []Product
	if ok, err := s.cache.GetJSON(ctx, lookupCacheKey, &cached); err == nil && ok {
		return toLookup(cached), nil
	}
	products, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	_ = s.cache.SetJSON(ctx, lookupCacheKey, products)
	return toLookup(products), nil
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and persists a new product.
func (s *Service) Create(ctx context.Context, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

// Update validates and persists changes to an existing product.
func (s *Service) Update(ctx context.Context, p Product) (Product, error) {
	if p.ID <= 0 {
		return Product{}, fmt.Errorf("product id is required: %w", ErrInvalidInput)
	}
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Deactivate soft-deletes a product.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	_ = s.cache.Delete(ctx, lookupCacheKey)
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidInput)
	}
	if p.OwnedQty < 0 {
		return fmt.Errorf("owned quantity cannot be negative: %w", ErrInvalidInput)
	}
	if p.DailyPrice != nil && *p.DailyPrice < 0 {
		return fmt.Errorf("daily price cannot be negative: %w", ErrInvalidInput)
	}
	if p.ReplacementValue != nil && *p.ReplacementValue < 0 {
		return fmt.Errorf("replacement value cannot be negative: %w", ErrInvalidInput)
	}
	return nil
}

func toLookup(products []Product) pricing.ProductLookup {
	lookup := make(pricing.ProductLookup, len(products))
	for _, p := range products {
		lookup[p.ID] = pricing.Product{
			ID:               p.ID,
			Name:             p.Name,
			DailyPrice:       p.DailyPrice,
			ReplacementValue: p.ReplacementValue,
			OwnedQty:         p.OwnedQty,
		}
	}
	return lookup
}
