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

// BatchCallRepository implements repository.BatchCallRepository using
// PostgreSQL.
type BatchCallRepository struct {
	db *sqlx.DB
}

// NewBatchCallRepository constructs a new repository.
func NewBatchCallRepository(db *sqlx.DB) *BatchCallRepository {
	return &BatchCallRepository{db: db}
}

// Create inserts a new batch submission.
func (r *BatchCallRepository) Create(ctx context.Context, batch *domain.BatchCall) error {
	q := `INSERT INTO batch_calls (id, user_id, agent_id, expected_calls, calls_done, status, created_at, updated_at)
		VALUES (:id, :user_id, :agent_id, :expected_calls, :calls_done, :status, :created_at, :updated_at)`

	params := map[string]any{
		"id":             batch.ID,
		"user_id":        batch.UserID,
		"agent_id":       batch.AgentID,
		"expected_calls": batch.ExpectedCalls,
		"calls_done":     batch.CallsDone,
		"status":         string(batch.Status),
		"created_at":     batch.CreatedAt,
		"updated_at":     batch.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("batch repo: insert: %w", err)
	}
	return nil
}

// Get fetches a batch with its ordered member lead ids.
func (r *BatchCallRepository) Get(ctx context.Context, id uuid.UUID) (*domain.BatchCall, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT id, user_id, agent_id, expected_calls, calls_done, status, created_at, updated_at, completed_at
		FROM batch_calls WHERE id = $1`, id)

	var record batchRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("batch repo: get: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT lead_id FROM batch_call_leads WHERE batch_call_id = $1 ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("batch repo: leads: %w", err)
	}
	defer rows.Close()

	var leadIDs []uuid.UUID
	for rows.Next() {
		var leadID uuid.UUID
		if err := rows.Scan(&leadID); err != nil {
			return nil, fmt.Errorf("batch repo: scan lead id: %w", err)
		}
		leadIDs = append(leadIDs, leadID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch repo: rows err: %w", err)
	}

	batch := record.toDomain()
	batch.LeadIDs = leadIDs
	return &batch, nil
}

// AttachLeads records the ordered member leads of a batch.
func (r *BatchCallRepository) AttachLeads(ctx context.Context, batchID uuid.UUID, leadIDs []uuid.UUID) error {
	if len(leadIDs) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO batch_call_leads (batch_call_id, lead_id, position)
			VALUES ($1, $2, $3) ON CONFLICT (batch_call_id, lead_id) DO NOTHING`
		for i, leadID := range leadIDs {
			if _, err := tx.ExecContext(ctx, q, batchID, leadID, i); err != nil {
				return fmt.Errorf("batch repo: attach lead: %w", err)
			}
		}
		return nil
	})
}

// IncrementCallsDone adds one to calls_done and returns the post-increment
// counters from the same statement. The guard keeps calls_done from ever
// exceeding expected_calls on duplicate deliveries.
func (r *BatchCallRepository) IncrementCallsDone(ctx context.Context, id uuid.UUID) (repository.BatchProgress, error) {
	row := r.db.QueryRowxContext(ctx, `UPDATE batch_calls
		SET calls_done = calls_done + 1, updated_at = NOW()
		WHERE id = $1 AND calls_done < expected_calls
		RETURNING calls_done, expected_calls`, id)

	var progress repository.BatchProgress
	if err := row.Scan(&progress.CallsDone, &progress.ExpectedCalls); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.BatchProgress{}, repository.ErrNotFound
		}
		return repository.BatchProgress{}, fmt.Errorf("batch repo: increment: %w", err)
	}
	return progress, nil
}

// MarkCompleted performs the single pending-to-completed transition.
func (r *BatchCallRepository) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE batch_calls
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(domain.BatchStatusCompleted), id, string(domain.BatchStatusPending))
	if err != nil {
		return false, fmt.Errorf("batch repo: mark completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("batch repo: rows affected: %w", err)
	}
	return n == 1, nil
}

type batchRecord struct {
	ID            uuid.UUID    `db:"id"`
	UserID        uuid.UUID    `db:"user_id"`
	AgentID       uuid.UUID    `db:"agent_id"`
	ExpectedCalls int          `db:"expected_calls"`
	CallsDone     int          `db:"calls_done"`
	Status        string       `db:"status"`
	CreatedAt     sql.NullTime `db:"created_at"`
	UpdatedAt     sql.NullTime `db:"updated_at"`
	CompletedAt   sql.NullTime `db:"completed_at"`
}

func (r batchRecord) toDomain() domain.BatchCall {
	batch := domain.BatchCall{
		ID:            r.ID,
		UserID:        r.UserID,
		AgentID:       r.AgentID,
		ExpectedCalls: r.ExpectedCalls,
		CallsDone:     r.CallsDone,
		Status:        domain.BatchStatus(r.Status),
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		batch.CompletedAt = &t
	}
	return batch
}
