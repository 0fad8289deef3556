package chat

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

// Save inserts the message. A duplicate (claim_id, client_message_id) pair
// returns ErrDuplicateMessage so the caller can replay the stored exchange.
func (r *PostgresRepo) Save(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO chat_messages (claim_id, user_id, role, message, client_message_id, reply_to)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (claim_id, client_message_id) WHERE client_message_id IS NOT NULL DO NOTHING
		RETURNING id, created_at::text`
	err := r.db.QueryRowContext(ctx, query,
		m.ClaimID, m.UserID, m.Role, m.Text, m.ClientMessageID, m.ReplyTo,
	).Scan(&m.ID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return ErrDuplicateMessage
	}
	return err
}

func (r *PostgresRepo) FindByClientID(ctx context.Context, claimID int64, clientMessageID string) (*Message, error) {
	query := selectColumns + ` FROM chat_messages WHERE claim_id = $1 AND client_message_id = $2`
	return scanMessage(r.db.QueryRowContext(ctx, query, claimID, clientMessageID))
}

func (r *PostgresRepo) FindReply(ctx context.Context, replyTo int64) (*Message, error) {
	query := selectColumns + ` FROM chat_messages WHERE reply_to = $1 ORDER BY id LIMIT 1`
	return scanMessage(r.db.QueryRowContext(ctx, query, replyTo))
}

func (r *PostgresRepo) List(ctx context.Context, claimID int64) ([]Message, error) {
	query := selectColumns + ` FROM chat_messages WHERE claim_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&count)
	return count, err
}

const selectColumns = `
	SELECT id, claim_id, user_id, role, message, COALESCE(client_message_id, ''), reply_to, created_at::text`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m       Message
		userID  sql.NullInt64
		replyTo sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.ClaimID, &userID, &m.Role, &m.Text, &m.ClientMessageID, &replyTo, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		m.UserID = &userID.Int64
	}
	if replyTo.Valid {
		m.ReplyTo = &replyTo.Int64
	}
	return &m, nil
}
