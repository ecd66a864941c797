package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Repository is the persistence surface used by the service.
type Repository interface {
	Get(ctx context.Context, id int64) (Customer, error)
	GetByName(ctx context.Context, name string) (Customer, error)
	List(ctx context.Context, search string) ([]Customer, error)
	Insert(ctx context.Context, customer Customer) (Customer, error)
	Update(ctx context.Context, customer Customer) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, input CreateCustomerInput) (Customer, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Customer{}, fmt.Errorf("%w: customer name is required", shared.ErrValidation)
	}
	customer, err := s.repo.Insert(ctx, Customer{
		Name:      name,
		Phone:     strings.TrimSpace(input.Phone),
		Notes:     input.Notes,
		CreatedBy: input.Actor,
	})
	if err != nil {
		return Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return customer, nil
}

// Ensure returns the customer with the given name, creating one when it does
// not exist yet. Partial-payment sales call this so every credit balance has
// a customer to hang off.
func (s *Service) Ensure(ctx context.Context, name, phone, actor string) (Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Customer{}, fmt.Errorf("%w: customer name is required for credit sales", shared.ErrValidation)
	}
	existing, err := s.repo.GetByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return Customer{}, fmt.Errorf("lookup customer: %w", err)
	}
	return s.Create(ctx, CreateCustomerInput{Name: name, Phone: phone, Actor: actor})
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, search string) ([]Customer, error) {
	return s.repo.List(ctx, strings.TrimSpace(search))
}

func (s *Service) Update(ctx context.Context, id int64, input CreateCustomerInput) (Customer, error) {
	customer, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		customer.Name = name
	}
	customer.Phone = strings.TrimSpace(input.Phone)
	customer.Notes = input.Notes
	if err := s.repo.Update(ctx, customer); err != nil {
		return Customer{}, fmt.Errorf("update customer: %w", err)
	}
	return customer, nil
}
