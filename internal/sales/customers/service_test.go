package customers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

type memoryRepo struct {
	customers map[int64]Customer
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: map[int64]Customer{}, nextID: 1}
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (r *memoryRepo) GetByName(_ context.Context, name string) (Customer, error) {
	for _, c := range r.customers {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return Customer{}, ErrCustomerNotFound
}

func (r *memoryRepo) List(_ context.Context, _ string) ([]Customer, error) {
	out := make([]Customer, 0, len(r.customers))
	for _, c := range r.customers {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepo) Insert(_ context.Context, customer Customer) (Customer, error) {
	customer.ID = r.nextID
	r.nextID++
	r.customers[customer.ID] = customer
	return customer, nil
}

func (r *memoryRepo) Update(_ context.Context, customer Customer) error {
	if _, ok := r.customers[customer.ID]; !ok {
		return ErrCustomerNotFound
	}
	r.customers[customer.ID] = customer
	return nil
}

func TestEnsureCreatesThenReuses(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo())

	created, err := svc.Ensure(ctx, "Akello Grace", "0772000001", "aisha")
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, "0772000001", created.Phone)
	require.Equal(t, "aisha", created.CreatedBy)

	again, err := svc.Ensure(ctx, "akello grace", "0772999999", "okello")
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID, "name lookup is case-insensitive")
	require.Equal(t, "0772000001", again.Phone, "existing record is not overwritten")
}

func TestEnsureRequiresName(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.Ensure(context.Background(), "   ", "0772000001", "aisha")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateTrimsAndValidates(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo())

	_, err := svc.Create(ctx, CreateCustomerInput{Name: ""})
	require.ErrorIs(t, err, shared.ErrValidation)

	c, err := svc.Create(ctx, CreateCustomerInput{Name: "  Namara Joy ", Phone: " 0701 ", Actor: "aisha"})
	require.NoError(t, err)
	require.Equal(t, "Namara Joy", c.Name)
	require.Equal(t, "0701", c.Phone)
}
