package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadType classifies the side of the transaction a lead is on.
type LeadType string

const (
	LeadTypeBuyer  LeadType = "buyer"
	LeadTypeSeller LeadType = "seller"
)

// Lead is the person a call concerns. Leads are created on first contact and
// refreshed on repeat contact; they are never hard-deleted by the call core.
type Lead struct {
	ID          uuid.UUID
	Name        string
	Email       string
	PhoneNumber string
	UserID      uuid.UUID
	Type        LeadType
	Address     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RequiresAddress reports whether the lead type mandates an address.
func (l *Lead) RequiresAddress() bool {
	return l.Type == LeadTypeSeller
}
