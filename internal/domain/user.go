package domain

import (
	"time"

	"github.com/google/uuid"
)

// User owns leads and receives call reports.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	AgentIDs  []uuid.UUID
	CreatedAt time.Time
}

// HasAgent reports whether the user is allowed to dial through the agent.
func (u *User) HasAgent(agentID uuid.UUID) bool {
	for _, id := range u.AgentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}
