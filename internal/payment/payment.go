// Package payment computes proportional refunds from attendance history and
// appends refund records. Payment capture itself is owned by the admin
// service; no PSP is called here.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Payment types and statuses used by the refund path.
const (
	TypeTuition = "tuition"
	TypeRefund  = "refund"

	StatusPaid     = "paid"
	StatusRefunded = "refunded"
)

var (
	// ErrPaymentNotFound means no payment row matched.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrNotRefundable means the payment is not a paid tuition payment.
	ErrNotRefundable = errors.New("payment not refundable")
	// ErrRefundExists means a refund already references this payment;
	// at most one refund may offset a tuition payment.
	ErrRefundExists = errors.New("refund already processed")
)

// Payment is one ledger row.
type Payment struct {
	ID               string
	BranchID         int64
	EnrollmentID     int64
	Type             string
	Amount           int64
	Status           string
	PaidAt           *time.Time
	RefundedAt       *time.Time
	RelatedPaymentID *string
	Notes            string
}

// Repository reads and appends ledger rows.
type Repository interface {
	FindPayment(ctx context.Context, id string) (*Payment, error)
	// EnrollmentFacts returns the lesson's contracted session count and
	// the number of attendance facts counted toward the refund
	// (present, late, excused) for the payment's enrollment.
	EnrollmentFacts(ctx context.Context, enrollmentID int64) (totalSessions, attended int, err error)
	// ListRefundCandidates returns paid tuition payments in the branch
	// that no refund references yet.
	ListRefundCandidates(ctx context.Context, branchID int64) ([]Payment, error)
	// InsertRefund appends a refund row. A second refund for the same
	// tuition payment must fail with ErrRefundExists.
	InsertRefund(ctx context.Context, p Payment) (Payment, error)
}

const uniqueViolation = "23505"

// PostgresRepository persists the payment ledger in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindPayment returns a payment by id, or nil.
func (r *PostgresRepository) FindPayment(ctx context.Context, id string) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, branch_id, enrollment_id, type, amount, status,
		       paid_at, refunded_at, related_payment_id, notes
		FROM payments
		WHERE id = $1
	`, id)
	var p Payment
	if err := row.Scan(&p.ID, &p.BranchID, &p.EnrollmentID, &p.Type, &p.Amount,
		&p.Status, &p.PaidAt, &p.RefundedAt, &p.RelatedPaymentID, &p.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// EnrollmentFacts joins the enrollment's lesson for total sessions and counts
// attendance facts with status present, late or excused.
func (r *PostgresRepository) EnrollmentFacts(ctx context.Context, enrollmentID int64) (int, int, error) {
	var totalSessions, attended int
	err := r.db.QueryRowContext(ctx, `
		SELECT l.total_sessions,
		       (SELECT COUNT(*) FROM attendances a
		        WHERE a.enrollment_id = e.id
		          AND a.status IN ('present', 'late', 'excused'))
		FROM enrollments e
		JOIN lessons l ON l.id = e.lesson_id
		WHERE e.id = $1
	`, enrollmentID).Scan(&totalSessions, &attended)
	return totalSessions, attended, err
}

// ListRefundCandidates returns paid tuition payments without a refund,
// scoped to the given branch.
func (r *PostgresRepository) ListRefundCandidates(ctx context.Context, branchID int64) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.branch_id, p.enrollment_id, p.type, p.amount, p.status,
		       p.paid_at, p.refunded_at, p.related_payment_id, p.notes
		FROM payments p
		WHERE p.branch_id = $1
		  AND p.type = 'tuition'
		  AND p.status = 'paid'
		  AND NOT EXISTS (
			SELECT 1 FROM payments ref WHERE ref.related_payment_id = p.id
		  )
		ORDER BY p.paid_at
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.BranchID, &p.EnrollmentID, &p.Type, &p.Amount,
			&p.Status, &p.PaidAt, &p.RefundedAt, &p.RelatedPaymentID, &p.Notes); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// InsertRefund appends a refund row. The unique constraint on
// related_payment_id rejects a second refund for the same tuition payment.
func (r *PostgresRepository) InsertRefund(ctx context.Context, p Payment) (Payment, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments
			(id, branch_id, enrollment_id, type, amount, status, refunded_at, related_payment_id, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.BranchID, p.EnrollmentID, p.Type, p.Amount, p.Status,
		p.RefundedAt, p.RelatedPaymentID, p.Notes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Payment{}, ErrRefundExists
		}
		return Payment{}, err
	}
	return p, nil
}
