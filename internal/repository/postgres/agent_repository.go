package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/repository"
)

// AgentRepository implements repository.AgentRepository using PostgreSQL.
type AgentRepository struct {
	db *sqlx.DB
}

// NewAgentRepository constructs a new repository.
func NewAgentRepository(db *sqlx.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Get fetches an agent by id.
func (r *AgentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT id, name, phone_number, vendor_agent_id, created_at FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

// GetByVendorAgentID fetches an agent by its vendor-side identifier.
func (r *AgentRepository) GetByVendorAgentID(ctx context.Context, vendorAgentID string) (*domain.Agent, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT id, name, phone_number, vendor_agent_id, created_at FROM agents WHERE vendor_agent_id = $1`, vendorAgentID)
	return scanAgent(row)
}

type agentRecord struct {
	ID            uuid.UUID    `db:"id"`
	Name          string       `db:"name"`
	PhoneNumber   string       `db:"phone_number"`
	VendorAgentID string       `db:"vendor_agent_id"`
	CreatedAt     sql.NullTime `db:"created_at"`
}

func scanAgent(row *sqlx.Row) (*domain.Agent, error) {
	var record agentRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("agent repo: scan: %w", err)
	}
	agent := domain.Agent{
		ID:            record.ID,
		Name:          record.Name,
		PhoneNumber:   record.PhoneNumber,
		VendorAgentID: record.VendorAgentID,
		CreatedAt:     record.CreatedAt.Time,
	}
	return &agent, nil
}
