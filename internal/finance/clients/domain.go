package clients

import (
	"errors"
	"time"
)

var (
	// ErrClientNotFound indicates no loan client matches the lookup.
	ErrClientNotFound = errors.New("clients: client not found")
)

// Client is a registered micro-finance borrower.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	NIN       string    `json:"nin,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClientInput describes a new or updated client record.
type ClientInput struct {
	Name    string
	NIN     string
	Phone   string
	Address string
	Actor   string
}
