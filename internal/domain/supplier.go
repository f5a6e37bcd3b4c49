package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlaceholderEmailDomain is the reserved domain used when a supplier is
// auto-created during a movement import without contact details. The .invalid
// TLD guarantees the address can never be delivered to.
const PlaceholderEmailDomain = "placeholder.invalid"

// Supplier represents a vendor scoped to a tenant.
type Supplier struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	Placeholder bool      `json:"placeholder"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSupplier creates a new supplier with immutable pattern
func NewSupplier(tenantID uuid.UUID, name, email string) Supplier {
	now := time.Now()
	return Supplier{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewPlaceholderSupplier creates a supplier for references that do not exist
// yet, using the explicit placeholder contact policy.
func NewPlaceholderSupplier(tenantID uuid.UUID, name string) Supplier {
	supplier := NewSupplier(tenantID, name, PlaceholderEmail(name))
	supplier.Placeholder = true
	return supplier
}

// PlaceholderEmail builds the synthetic contact address for an auto-created
// supplier. Deterministic so tests and dedup checks can rely on it.
func PlaceholderEmail(name string) string {
	slug := Slugify(name)
	if slug == "" {
		slug = "unnamed"
	}
	return fmt.Sprintf("pending+%s@%s", slug, PlaceholderEmailDomain)
}

// WithContact returns a new supplier with updated contact details.
func (s Supplier) WithContact(email, phone string) Supplier {
	s.Email = email
	s.Phone = phone
	s.Placeholder = false
	s.UpdatedAt = time.Now()
	return s
}
