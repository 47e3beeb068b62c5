// Package student implements the out-of-band verification flow: a student
// proves who they are by name and phone, receives a short-lived session, and
// uses it to mint QR check-in tokens.
package student

import (
	"context"
	"database/sql"
	"errors"
)

// Student is a registered student as seen by the verification flow.
type Student struct {
	ID       int64
	BranchID int64
	Name     string
	Phone    string
	Status   string
}

// Active reports whether the student may use the kiosk flow.
func (s Student) Active() bool {
	return s.Status == "active"
}

// Repository reads student rows owned by the CRUD admin service.
type Repository interface {
	FindActiveByNamePhone(ctx context.Context, name, phone string) (*Student, error)
	FindByID(ctx context.Context, id int64) (*Student, error)
}

// PostgresRepository reads students from Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindActiveByNamePhone matches an active student by exact name and
// normalized phone. Returns nil when no row matches.
func (r *PostgresRepository) FindActiveByNamePhone(ctx context.Context, name, phone string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, branch_id, name, phone, status
		FROM students
		WHERE name = $1 AND phone = $2 AND status = 'active'
	`, name, phone)
	return scanStudent(row)
}

// FindByID returns a student by id, or nil.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, branch_id, name, phone, status
		FROM students
		WHERE id = $1
	`, id)
	return scanStudent(row)
}

func scanStudent(row *sql.Row) (*Student, error) {
	var st Student
	if err := row.Scan(&st.ID, &st.BranchID, &st.Name, &st.Phone, &st.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}
