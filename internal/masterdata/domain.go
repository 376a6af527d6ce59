// Package masterdata holds the reference records the transactional modules
// point at: suppliers of bulk lots and the customers orders are placed for.
package masterdata

import (
	"errors"
	"time"
)

// Supplier is a source of bulk secondhand-clothing lots.
type Supplier struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Country   string    `json:"country"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Customer is a buyer: a reseller, an exporter, or a walk-in account.
type Customer struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters narrows list queries.
type ListFilters struct {
	Limit    int
	Offset   int
	Search   string
	IsActive *bool
}

var (
	// ErrCodeTaken indicates a duplicate supplier or customer code.
	ErrCodeTaken = errors.New("masterdata: code already in use")
	// ErrInvalidRecord indicates a record missing required fields.
	ErrInvalidRecord = errors.New("masterdata: invalid record")
)
