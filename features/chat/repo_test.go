package chat_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"claimscompanion/backend/features/chat"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := chat.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		userID := int64(7)
		m := &chat.Message{
			ClaimID:         1,
			UserID:          &userID,
			Role:            chat.RoleUser,
			Text:            "what documents do I still need",
			ClientMessageID: "client-1",
		}

		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO chat_messages (claim_id, user_id, role, message, client_message_id, reply_to)")).
			WithArgs(int64(1), int64(7), chat.RoleUser, m.Text, "client-1", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
				AddRow(int64(10), "2026-08-01T10:00:00Z"))

		err := repo.Save(context.Background(), m)
		assert.NoError(t, err)
		assert.Equal(t, int64(10), m.ID)
	})

	t.Run("DuplicateClientID", func(t *testing.T) {
		// ON CONFLICT DO NOTHING returns no row for the losing insert.
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO chat_messages")).
			WithArgs(int64(1), nil, chat.RoleUser, "hello", "client-1", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

		m := &chat.Message{ClaimID: 1, Role: chat.RoleUser, Text: "hello", ClientMessageID: "client-1"}
		err := repo.Save(context.Background(), m)
		assert.ErrorIs(t, err, chat.ErrDuplicateMessage)
	})
}

func TestPostgresRepo_FindByClientID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := chat.NewPostgresRepo(db)

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "claim_id", "user_id", "role", "message", "client_message_id", "reply_to", "created_at"}).
			AddRow(int64(10), int64(1), int64(7), "user", "hello", "client-1", nil, "2026-08-01T10:00:00Z")

		mock.ExpectQuery(regexp.QuoteMeta("WHERE claim_id = $1 AND client_message_id = $2")).
			WithArgs(int64(1), "client-1").
			WillReturnRows(rows)

		m, err := repo.FindByClientID(context.Background(), 1, "client-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(10), m.ID)
		assert.NotNil(t, m.UserID)
		assert.Nil(t, m.ReplyTo)
	})

	t.Run("Miss", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE claim_id = $1 AND client_message_id = $2")).
			WithArgs(int64(1), "unseen").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByClientID(context.Background(), 1, "unseen")
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestPostgresRepo_FindReply(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := chat.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{"id", "claim_id", "user_id", "role", "message", "client_message_id", "reply_to", "created_at"}).
		AddRow(int64(11), int64(1), nil, "ai", "stored reply", "", int64(10), "2026-08-01T10:00:05Z")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE reply_to = $1 ORDER BY id LIMIT 1")).
		WithArgs(int64(10)).
		WillReturnRows(rows)

	m, err := repo.FindReply(context.Background(), 10)
	assert.NoError(t, err)
	assert.Equal(t, "stored reply", m.Text)
	assert.Nil(t, m.UserID)
	assert.Equal(t, int64(10), *m.ReplyTo)
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := chat.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{"id", "claim_id", "user_id", "role", "message", "client_message_id", "reply_to", "created_at"}).
		AddRow(int64(10), int64(1), int64(7), "user", "hello", "", nil, "2026-08-01T10:00:00Z").
		AddRow(int64(11), int64(1), nil, "ai", "hi there", "", int64(10), "2026-08-01T10:00:05Z")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE claim_id = $1 ORDER BY id")).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	messages, err := repo.List(context.Background(), 1)
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "ai", messages[1].Role)
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := chat.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM chat_messages")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 12, count)
}
