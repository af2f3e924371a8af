package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/PILOTO-ORG/cunha-sub000/internal/pricing"
)

// ErrInvalidInput is returned for payloads that fail domain checks.
var ErrInvalidInput = errors.New("invalid input")

type repository interface {
	List(ctx context.Context, search string, limit, offset int) ([]Client, int, error)
	All(ctx context.Context) ([]Client, error)
	Get(ctx context.Context, id int64) (Client, error)
	Create(ctx context.Context, c Client) (Client, error)
	Update(ctx context.Context, c Client) (Client, error)
	Delete(ctx context.Context, id int64) error
}

// Input carries client fields for create and update operations.
type Input struct {
	Name     string  `json:"nome" validate:"required,min=2,max=160"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"telefone" validate:"omitempty,min=8,max=20"`
	Document *string `json:"documento" validate:"omitempty,min=11,max=18"`
	Address  *string `json:"endereco"`
	City     *string `json:"cidade"`
	ZipCode  *string `json:"cep" validate:"omitempty,len=8|len=9"`
	Notes    *string `json:"observacoes"`
}

// Service orchestrates client CRUD and the lookup the aggregator consumes.
type Service struct {
	repo     repository
	validate *validator.Validate
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo     repository
	Validate *validator.Validate
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("client: repository is required")
	}
	v := cfg.Validate
	if v == nil {
		v = validator.New()
	}
	return &Service{repo: cfg.Repo, validate: v}, nil
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Client
	Total int
	Page  int
	Limit int
}

// List returns a page of clients, optionally filtered by name or document.
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

// Lookup loads every client keyed by id for quote aggregation.
func (s *Service) Lookup(ctx context.Context) (pricing.ClientLookup, error) {
	clients, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("client lookup: %w", err)
	}
	lookup := make(pricing.ClientLookup, len(clients))
	for _, c := range clients {
		lookup[c.ID] = pricing.Client{ID: c.ID, Name: c.Name}
	}
	return lookup, nil
}

// Get returns a single client.
func (s *Service) Get(ctx context.Context, id int64) (Client, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and persists a new client.
func (s *Service) Create(ctx context.Context, in Input) (Client, error) {
	if err := s.check(in); err != nil {
		return Client{}, err
	}
	return s.repo.Create(ctx, fromInput(in, 0))
}

// Update validates and persists changes to an existing client.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Client, error) {
	if id <= 0 {
		return Client{}, fmt.Errorf("client id is required: %w", ErrInvalidInput)
	}
	if err := s.check(in); err != nil {
		return Client{}, err
	}
	return s.repo.Update(ctx, fromInput(in, id))
}

// Delete removes a client.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) check(in Input) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) && len(verr) > 0 {
			f := verr[0]
			return fmt.Errorf("field %s failed %s validation: %w", strings.ToLower(f.Field()), f.Tag(), ErrInvalidInput)
		}
		return fmt.Errorf("%s: %w", err, ErrInvalidInput)
	}
	return nil
}

func fromInput(in Input, id int64) Client {
	return Client{
		ID:       id,
		Name:     strings.TrimSpace(in.Name),
		Email:    in.Email,
		Phone:    in.Phone,
		Document: in.Document,
		Address:  in.Address,
		City:     in.City,
		ZipCode:  in.ZipCode,
		Notes:    in.Notes,
	}
}
