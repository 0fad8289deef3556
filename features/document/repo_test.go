package document_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimscompanion/backend/features/document"
	"claimscompanion/backend/internal/validation"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	d := &document.ClaimDocument{
		ClaimID:  1,
		FileName: "front.jpg",
		FilePath: "/uploads/claim_1/abc.jpg",
		FileType: "jpg",
		FileSize: 1024,
		DocType:  "motor_photos",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO claim_documents (claim_id, file_name, file_path, file_type, file_size, doc_type)")).
		WithArgs(d.ClaimID, d.FileName, d.FilePath, d.FileType, d.FileSize, d.DocType).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded_at"}).
			AddRow(int64(42), "2026-08-01T10:00:00Z"))

	err = repo.Save(context.Background(), d)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), d.ID)
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "claim_id", "file_name", "file_path", "file_type", "file_size",
		"doc_type", "is_valid", "confidence",
		"issues", "suggestions", "extracted_data", "uploaded_at",
	}).AddRow(
		int64(42), int64(1), "front.jpg", "/uploads/claim_1/abc.jpg", "jpg", int64(1024),
		"motor_photos", true, 0.92,
		[]byte(`["slightly blurry"]`), []byte(`["retake in daylight"]`), []byte(`{"plate":"AB-123"}`),
		"2026-08-01T10:00:00Z",
	)
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("UnmarshalsValidationColumns", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM claim_documents WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(documentRows())

		d, err := repo.Get(context.Background(), 42)
		require.NoError(t, err)
		require.NotNil(t, d.IsValid)
		assert.True(t, *d.IsValid)
		assert.Equal(t, []string{"slightly blurry"}, d.Issues)
		assert.Equal(t, []string{"retake in daylight"}, d.Suggestions)
		assert.Equal(t, "AB-123", d.ExtractedData["plate"])
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM claim_documents WHERE id = $1")).
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), 99)
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestPostgresRepo_ListByClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM claim_documents WHERE claim_id = $1 ORDER BY uploaded_at ASC, id ASC")).
		WithArgs(int64(1)).
		WillReturnRows(documentRows())

	docs, err := repo.ListByClaim(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "motor_photos", docs[0].DocType)
}

func TestPostgresRepo_UpdateValidation(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	outcome := validation.Outcome{
		IsValid:     true,
		Confidence:  0.92,
		Issues:      []string{"slightly blurry"},
		Suggestions: []string{},
		ExtractedData: map[string]interface{}{
			"plate": "AB-123",
		},
	}

	mock.ExpectExec(regexp.QuoteMeta("SET is_valid = $2, confidence = $3, issues = $4, suggestions = $5, extracted_data = $6")).
		WithArgs(int64(42), true, 0.92, []byte(`["slightly blurry"]`), []byte(`[]`), []byte(`{"plate":"AB-123"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateValidation(context.Background(), 42, outcome)
	assert.NoError(t, err)
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM claim_documents WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), 42))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM claim_documents WHERE id = $1")).
			WithArgs(int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Delete(context.Background(), 99), sql.ErrNoRows)
	})
}
