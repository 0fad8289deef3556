package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var ErrEmailTaken = errors.New("email is already registered")

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (email, first_name, last_name, phone, role)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id, created_at::text`
	err := r.db.QueryRowContext(ctx, query,
		u.Email, u.FirstName, u.LastName, u.Phone, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrEmailTaken
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (*User, error) {
	query := selectColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := selectColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepo) List(ctx context.Context) ([]User, error) {
	query := selectColumns + ` FROM users ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

const selectColumns = `
	SELECT id, email, first_name, last_name, COALESCE(phone, ''), role, created_at::text`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
