package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
	apperrors "github.com/acme/lead-call-scheduler/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// LeadRepository manages lead persistence. Leads are upserted on contact and
// never hard-deleted by the call core; DeleteByPhone exists for the manual
// import-cleanup surface only.
type LeadRepository interface {
	Create(ctx context.Context, lead *domain.Lead) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	Update(ctx context.Context, lead *domain.Lead) error
	FindByEmail(ctx context.Context, userID uuid.UUID, email string) (*domain.Lead, error)
	FindByPhone(ctx context.Context, userID uuid.UUID, phone string) (*domain.Lead, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Lead, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Lead, error)
	BulkUpsert(ctx context.Context, userID uuid.UUID, records []LeadImportRecord) (int, error)
	DeleteByPhone(ctx context.Context, userID uuid.UUID, phone string) error
}

// LeadImportRecord is one row of a bulk lead import.
type LeadImportRecord struct {
	Name        string
	Email       string
	PhoneNumber string
}

// AgentRepository resolves calling personas.
type AgentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
	GetByVendorAgentID(ctx context.Context, vendorAgentID string) (*domain.Agent, error)
}

// UserRepository resolves lead owners for notification delivery.
type UserRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// BatchProgress is the post-increment counter pair returned by the atomic
// batch increment.
type BatchProgress struct {
	CallsDone     int
	ExpectedCalls int
}

// BatchCallRepository manages fan-out submissions. IncrementCallsDone must be
// a single atomic increment-and-fetch statement: concurrent completion events
// for different leads of the same batch race on this counter, and the
// "did I finish the batch" decision has to come from the value the increment
// itself returned, never from a separate read.
type BatchCallRepository interface {
	Create(ctx context.Context, batch *domain.BatchCall) error
	Get(ctx context.Context, id uuid.UUID) (*domain.BatchCall, error)
	AttachLeads(ctx context.Context, batchID uuid.UUID, leadIDs []uuid.UUID) error
	IncrementCallsDone(ctx context.Context, id uuid.UUID) (BatchProgress, error)
	// MarkCompleted transitions pending to completed and reports whether this
	// caller performed the transition.
	MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error)
}

// CallStore persists call records, keyed by the vendor call id that
// correlates asynchronous completion events back to their call.
type CallStore interface {
	CreateCall(ctx context.Context, record *domain.Call) error
	GetCallByVendorID(ctx context.Context, vendorCallID string) (*domain.Call, error)
	UpdateCallResult(ctx context.Context, record *domain.Call) error
	ListCallsByLead(ctx context.Context, leadID uuid.UUID, limit int, pagingState []byte) ([]domain.Call, []byte, error)
	ListCallsByLeads(ctx context.Context, leadIDs []uuid.UUID) ([]domain.Call, error)
}
