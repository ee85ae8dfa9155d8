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

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a new repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Get fetches a user with their allowed agent ids.
func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = $1`, id)

	var record userRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("user repo: scan: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT agent_id FROM user_agents WHERE user_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("user repo: agents: %w", err)
	}
	defer rows.Close()

	var agentIDs []uuid.UUID
	for rows.Next() {
		var agentID uuid.UUID
		if err := rows.Scan(&agentID); err != nil {
			return nil, fmt.Errorf("user repo: scan agent id: %w", err)
		}
		agentIDs = append(agentIDs, agentID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user repo: rows err: %w", err)
	}

	return &domain.User{
		ID:        record.ID,
		Name:      record.Name,
		Email:     record.Email,
		AgentIDs:  agentIDs,
		CreatedAt: record.CreatedAt.Time,
	}, nil
}

type userRecord struct {
	ID        uuid.UUID    `db:"id"`
	Name      string       `db:"name"`
	Email     string       `db:"email"`
	CreatedAt sql.NullTime `db:"created_at"`
}
