package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/repository"
)

// LeadRepository implements repository.LeadRepository using PostgreSQL.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs a new repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

const leadColumns = `id, name, email, phone_number, user_id, lead_type, address, created_at, updated_at`

// Create inserts a new lead.
func (r *LeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	q := `INSERT INTO leads (id, name, email, phone_number, user_id, lead_type, address, created_at, updated_at)
		VALUES (:id, :name, :email, :phone_number, :user_id, :lead_type, :address, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, q, leadParams(lead)); err != nil {
		return fmt.Errorf("lead repo: insert: %w", err)
	}
	return nil
}

// Get fetches a lead by id.
func (r *LeadRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

// Update refreshes the mutable fields of a lead.
func (r *LeadRepository) Update(ctx context.Context, lead *domain.Lead) error {
	q := `UPDATE leads SET
		name = :name,
		email = :email,
		phone_number = :phone_number,
		lead_type = :lead_type,
		address = :address,
		updated_at = :updated_at
	 WHERE id = :id`

	params := leadParams(lead)
	params["updated_at"] = time.Now().UTC()

	res, err := r.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return fmt.Errorf("lead repo: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lead repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// FindByEmail locates a user's lead by email.
func (r *LeadRepository) FindByEmail(ctx context.Context, userID uuid.UUID, email string) (*domain.Lead, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE user_id = $1 AND email = $2`, userID, email)
	return scanLead(row)
}

// FindByPhone locates a user's lead by phone number.
func (r *LeadRepository) FindByPhone(ctx context.Context, userID uuid.UUID, phone string) (*domain.Lead, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE user_id = $1 AND phone_number = $2`, userID, phone)
	return scanLead(row)
}

// ListByUser returns a user's leads, newest first.
func (r *LeadRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("lead repo: list by user: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// ListByIDs returns the leads for the given ids.
func (r *LeadRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Lead, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("lead repo: list by ids: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// BulkUpsert inserts or refreshes leads keyed by (user_id, phone_number) and
// returns how many rows were written.
func (r *LeadRepository) BulkUpsert(ctx context.Context, userID uuid.UUID, records []repository.LeadImportRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var written int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO leads (id, name, email, phone_number, user_id, lead_type, address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, '', $7, $7)
			ON CONFLICT (user_id, phone_number) DO UPDATE SET
				name = EXCLUDED.name,
				email = EXCLUDED.email,
				updated_at = EXCLUDED.updated_at`
		now := time.Now().UTC()
		for _, rec := range records {
			if rec.PhoneNumber == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, q, uuid.New(), rec.Name, rec.Email, rec.PhoneNumber, userID, domain.LeadTypeBuyer, now); err != nil {
				return fmt.Errorf("lead repo: bulk upsert: %w", err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// DeleteByPhone removes a user's lead by phone number.
func (r *LeadRepository) DeleteByPhone(ctx context.Context, userID uuid.UUID, phone string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM leads WHERE user_id = $1 AND phone_number = $2`, userID, phone)
	if err != nil {
		return fmt.Errorf("lead repo: delete by phone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lead repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type leadRecord struct {
	ID          uuid.UUID      `db:"id"`
	Name        string         `db:"name"`
	Email       string         `db:"email"`
	PhoneNumber string         `db:"phone_number"`
	UserID      uuid.UUID      `db:"user_id"`
	LeadType    string         `db:"lead_type"`
	Address     sql.NullString `db:"address"`
	CreatedAt   sql.NullTime   `db:"created_at"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
}

func (r leadRecord) toDomain() domain.Lead {
	return domain.Lead{
		ID:          r.ID,
		Name:        r.Name,
		Email:       r.Email,
		PhoneNumber: r.PhoneNumber,
		UserID:      r.UserID,
		Type:        domain.LeadType(r.LeadType),
		Address:     r.Address.String,
		CreatedAt:   r.CreatedAt.Time,
		UpdatedAt:   r.UpdatedAt.Time,
	}
}

func leadParams(lead *domain.Lead) map[string]any {
	return map[string]any{
		"id":           lead.ID,
		"name":         lead.Name,
		"email":        lead.Email,
		"phone_number": lead.PhoneNumber,
		"user_id":      lead.UserID,
		"lead_type":    string(lead.Type),
		"address":      lead.Address,
		"created_at":   lead.CreatedAt,
		"updated_at":   lead.UpdatedAt,
	}
}

func scanLead(row *sqlx.Row) (*domain.Lead, error) {
	var record leadRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lead repo: scan: %w", err)
	}
	lead := record.toDomain()
	return &lead, nil
}

func scanLeads(rows *sqlx.Rows) ([]*domain.Lead, error) {
	var results []*domain.Lead
	for rows.Next() {
		var record leadRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("lead repo: scan: %w", err)
		}
		lead := record.toDomain()
		results = append(results, &lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead repo: rows err: %w", err)
	}
	return results, nil
}
