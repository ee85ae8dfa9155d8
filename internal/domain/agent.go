package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Agent is a configured calling persona on the vendor side.
type Agent struct {
	ID            uuid.UUID
	Name          string
	PhoneNumber   string
	VendorAgentID string
	CreatedAt     time.Time
}

// IsSellerAgent reports whether this agent handles seller leads. The
// convention carried over from the product is a "seller" marker in the name.
func (a *Agent) IsSellerAgent() bool {
	return strings.Contains(strings.ToLower(a.Name), "seller")
}

// LeadType returns the lead classification this agent produces.
func (a *Agent) LeadType() LeadType {
	if a.IsSellerAgent() {
		return LeadTypeSeller
	}
	return LeadTypeBuyer
}
