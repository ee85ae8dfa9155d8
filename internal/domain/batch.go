package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus enumerates lifecycle states of a batch submission.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusCompleted BatchStatus = "completed"
)

// BatchCall is a fan-out unit: one submission of many leads dialed together.
// ExpectedCalls is fixed at creation to the number of valid leads; CallsDone
// only ever grows and never exceeds ExpectedCalls. Exactly one transition to
// completed may occur, when CallsDone reaches ExpectedCalls.
type BatchCall struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AgentID       uuid.UUID
	LeadIDs       []uuid.UUID
	ExpectedCalls int
	CallsDone     int
	Status        BatchStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}
