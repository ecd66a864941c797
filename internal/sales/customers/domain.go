package customers

import (
	"errors"
	"time"
)

var (
	// ErrCustomerNotFound indicates no customer matches the lookup.
	ErrCustomerNotFound = errors.New("customers: customer not found")
)

// Customer is a named credit customer of a business unit.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateCustomerInput describes a new customer record.
type CreateCustomerInput struct {
	Name  string
	Phone string
	Notes string
	Actor string
}
