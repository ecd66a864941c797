package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Repository is the persistence surface used by the service.
type Repository interface {
	Get(ctx context.Context, id int64) (Client, error)
	List(ctx context.Context, search string) ([]Client, error)
	Insert(ctx context.Context, client Client) (Client, error)
	Update(ctx context.Context, client Client) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, input ClientInput) (Client, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Client{}, fmt.Errorf("%w: client name is required", shared.ErrValidation)
	}
	client, err := s.repo.Insert(ctx, Client{
		Name:      name,
		NIN:       strings.TrimSpace(input.NIN),
		Phone:     strings.TrimSpace(input.Phone),
		Address:   strings.TrimSpace(input.Address),
		CreatedBy: input.Actor,
	})
	if err != nil {
		return Client{}, fmt.Errorf("insert client: %w", err)
	}
	return client, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Client, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, search string) ([]Client, error) {
	return s.repo.List(ctx, strings.TrimSpace(search))
}

func (s *Service) Update(ctx context.Context, id int64, input ClientInput) (Client, error) {
	client, err := s.repo.Get(ctx, id)
	if err != nil {
		return Client{}, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		client.Name = name
	}
	client.NIN = strings.TrimSpace(input.NIN)
	client.Phone = strings.TrimSpace(input.Phone)
	client.Address = strings.TrimSpace(input.Address)
	if err := s.repo.Update(ctx, client); err != nil {
		return Client{}, fmt.Errorf("update client: %w", err)
	}
	return client, nil
}
