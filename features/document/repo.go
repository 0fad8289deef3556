package document

import (
	"context"
	"database/sql"
	"encoding/json"

	"claimscompanion/backend/internal/validation"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, d *ClaimDocument) error {
	query := `
		INSERT INTO claim_documents (claim_id, file_name, file_path, file_type, file_size, doc_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, uploaded_at::text`
	return r.db.QueryRowContext(ctx, query,
		d.ClaimID, d.FileName, d.FilePath, d.FileType, d.FileSize, d.DocType,
	).Scan(&d.ID, &d.UploadedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*ClaimDocument, error) {
	query := selectColumns + ` FROM claim_documents WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDocument(row)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepo) ListByClaim(ctx context.Context, claimID int64) ([]ClaimDocument, error) {
	query := selectColumns + ` FROM claim_documents WHERE claim_id = $1 ORDER BY uploaded_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []ClaimDocument{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) UpdateValidation(ctx context.Context, id int64, outcome validation.Outcome) error {
	issues, err := json.Marshal(outcome.Issues)
	if err != nil {
		return err
	}
	suggestions, err := json.Marshal(outcome.Suggestions)
	if err != nil {
		return err
	}
	extracted, err := json.Marshal(outcome.ExtractedData)
	if err != nil {
		return err
	}

	query := `
		UPDATE claim_documents
		SET is_valid = $2, confidence = $3, issues = $4, suggestions = $5, extracted_data = $6
		WHERE id = $1`
	_, err = r.db.ExecContext(ctx, query, id, outcome.IsValid, outcome.Confidence, issues, suggestions, extracted)
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM claim_documents WHERE id = $1`, id)
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

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM claim_documents`).Scan(&count)
	return count, err
}

const selectColumns = `
	SELECT id, claim_id, file_name, file_path, COALESCE(file_type, ''), file_size,
	       COALESCE(doc_type, ''), is_valid, COALESCE(confidence, 0),
	       COALESCE(issues, '[]'), COALESCE(suggestions, '[]'), COALESCE(extracted_data, '{}'),
	       uploaded_at::text`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*ClaimDocument, error) {
	var (
		d           ClaimDocument
		isValid     sql.NullBool
		issues      []byte
		suggestions []byte
		extracted   []byte
	)
	err := row.Scan(
		&d.ID, &d.ClaimID, &d.FileName, &d.FilePath, &d.FileType, &d.FileSize,
		&d.DocType, &isValid, &d.Confidence,
		&issues, &suggestions, &extracted, &d.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	if isValid.Valid {
		d.IsValid = &isValid.Bool
	}
	if err := json.Unmarshal(issues, &d.Issues); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(suggestions, &d.Suggestions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(extracted, &d.ExtractedData); err != nil {
		return nil, err
	}
	return &d, nil
}
