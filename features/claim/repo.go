package claim

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, c *Claim) error {
	query := `
		INSERT INTO claims (claim_number, user_id, claim_type, status, incident_date, incident_description)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at::text, updated_at::text`
	return r.db.QueryRowContext(ctx, query,
		c.ClaimNumber, c.UserID, c.ClaimType, c.Status, c.IncidentDate, c.IncidentDescription,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*Claim, error) {
	query := `
		SELECT id, claim_number, user_id, claim_type, status,
		       COALESCE(incident_date::text, ''), COALESCE(incident_description, ''),
		       COALESCE(estimated_completion::text, ''),
		       validation_progress, COALESCE(validation_status, ''), manual_review_required,
		       COALESCE(last_validation_update::text, ''),
		       created_at::text, updated_at::text
		FROM claims
		WHERE id = $1`
	var c Claim
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.ClaimNumber, &c.UserID, &c.ClaimType, &c.Status,
		&c.IncidentDate, &c.IncidentDescription, &c.EstimatedCompletion,
		&c.ValidationProgress, &c.ValidationStatus, &c.ManualReviewRequired,
		&c.LastValidationUpdate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepo) List(ctx context.Context, userID int64) ([]Claim, error) {
	query := `
		SELECT id, claim_number, user_id, claim_type, status,
		       COALESCE(incident_date::text, ''), COALESCE(incident_description, ''),
		       COALESCE(estimated_completion::text, ''),
		       validation_progress, COALESCE(validation_status, ''), manual_review_required,
		       COALESCE(last_validation_update::text, ''),
		       created_at::text, updated_at::text
		FROM claims
		WHERE $1 = 0 OR user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := []Claim{}
	for rows.Next() {
		var c Claim
		if err := rows.Scan(
			&c.ID, &c.ClaimNumber, &c.UserID, &c.ClaimType, &c.Status,
			&c.IncidentDate, &c.IncidentDescription, &c.EstimatedCompletion,
			&c.ValidationProgress, &c.ValidationStatus, &c.ManualReviewRequired,
			&c.LastValidationUpdate, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id int64, status string, manualReview bool) error {
	query := `
		UPDATE claims
		SET status = $2, manual_review_required = $3, updated_at = NOW()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, manualReview)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) UpdateValidation(ctx context.Context, id int64, progress int, status string) error {
	query := `
		UPDATE claims
		SET validation_progress = $2, validation_status = $3,
		    last_validation_update = NOW(), updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, progress, status)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM claims`).Scan(&count)
	return count, err
}
