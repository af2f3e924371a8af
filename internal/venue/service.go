package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned for payloads that fail domain checks.
var ErrInvalidInput = errors.New("invalid input")

type repository interface {
	List(ctx context.Context, search string, limit, offset int) ([]Venue, int, error)
	Get(ctx context.Context, id int64) (Venue, error)
	Create(ctx context.Context, v Venue) (Venue, error)
	Update(ctx context.Context, v Venue) (Venue, error)
	Delete(ctx context.Context, id int64) error
}

// Service orchestrates venue CRUD.
type Service struct {
	repo repository
}

// NewService constructs a Service instance.
func NewService(repo repository) (*Service, error) {
	if repo == nil {
		return nil, errors.New("venue: repository is required")
	}
	return &Service{repo: repo}, nil
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Venue
	Total int
	Page  int
	Limit int
}

// List returns a page of venues, optionally filtered by name or city.
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

// Get returns a single venue.
func (s *Service) Get(ctx context.Context, id int64) (Venue, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and persists a new venue.
func (s *Service) Create(ctx context.Context, v Venue) (Venue, error) {
	if err := validateVenue(&v); err != nil {
		return Venue{}, err
	}
	return s.repo.Create(ctx, v)
}

// Update validates and persists changes to an existing venue.
func (s *Service) Update(ctx context.Context, v Venue) (Venue, error) {
	if v.ID <= 0 {
		return Venue{}, fmt.Errorf("venue id is required: %w", ErrInvalidInput)
	}
	if err := validateVenue(&v); err != nil {
		return Venue{}, err
	}
	return s.repo.Update(ctx, v)
}

// Delete removes a venue.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func validateVenue(v *Venue) error {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidInput)
	}
	if v.Capacity != nil && *v.Capacity < 0 {
		return fmt.Errorf("capacity cannot be negative: %w", ErrInvalidInput)
	}
	return nil
}
