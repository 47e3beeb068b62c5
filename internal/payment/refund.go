package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefundAmount computes the proportional refund for a tuition payment:
// floor(amount / totalSessions * attended). A misconfigured lesson with zero
// or negative total sessions never yields a nonzero refund.
func RefundAmount(amount int64, totalSessions, attended int) int64 {
	if totalSessions <= 0 {
		return 0
	}
	return amount * int64(attended) / int64(totalSessions)
}

// Quote is a computed refund for one tuition payment. It performs no writes;
// processing the refund is a separate, explicit action.
type Quote struct {
	Payment       Payment
	TotalSessions int
	Attended      int
	Amount        int64
}

// Service exposes refund calculation and processing over the ledger.
type Service struct {
	repo   Repository
	logger *zap.Logger
	newID  func() string
	now    func() time.Time
}

// NewService creates a refund service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Quote computes the refund for a paid tuition payment.
func (s *Service) Quote(ctx context.Context, paymentID string) (Quote, error) {
	p, err := s.repo.FindPayment(ctx, paymentID)
	if err != nil {
		return Quote{}, fmt.Errorf("payment lookup: %w", err)
	}
	if p == nil {
		return Quote{}, ErrPaymentNotFound
	}
	if p.Type != TypeTuition || p.Status != StatusPaid {
		return Quote{}, ErrNotRefundable
	}

	totalSessions, attended, err := s.repo.EnrollmentFacts(ctx, p.EnrollmentID)
	if err != nil {
		return Quote{}, fmt.Errorf("enrollment facts: %w", err)
	}
	return Quote{
		Payment:       *p,
		TotalSessions: totalSessions,
		Attended:      attended,
		Amount:        RefundAmount(p.Amount, totalSessions, attended),
	}, nil
}

// Candidates lists the branch's paid tuition payments that have no refund
// yet, each with its computed amount.
func (s *Service) Candidates(ctx context.Context, branchID int64) ([]Quote, error) {
	payments, err := s.repo.ListRefundCandidates(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	quotes := make([]Quote, 0, len(payments))
	for _, p := range payments {
		totalSessions, attended, err := s.repo.EnrollmentFacts(ctx, p.EnrollmentID)
		if err != nil {
			return nil, fmt.Errorf("enrollment facts for %s: %w", p.ID, err)
		}
		quotes = append(quotes, Quote{
			Payment:       p,
			TotalSessions: totalSessions,
			Attended:      attended,
			Amount:        RefundAmount(p.Amount, totalSessions, attended),
		})
	}
	return quotes, nil
}

// Process appends the refund record referencing the tuition payment. amount
// is taken from the request so an admin may adjust the computed figure; the
// related_payment_id uniqueness guards against a second refund.
func (s *Service) Process(ctx context.Context, paymentID string, amount int64, notes string) (Payment, error) {
	orig, err := s.repo.FindPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, fmt.Errorf("payment lookup: %w", err)
	}
	if orig == nil {
		return Payment{}, ErrPaymentNotFound
	}
	if orig.Type != TypeTuition || orig.Status != StatusPaid {
		return Payment{}, ErrNotRefundable
	}

	now := s.now()
	refund := Payment{
		ID:               s.newID(),
		BranchID:         orig.BranchID,
		EnrollmentID:     orig.EnrollmentID,
		Type:             TypeRefund,
		Amount:           amount,
		Status:           StatusRefunded,
		RefundedAt:       &now,
		RelatedPaymentID: &orig.ID,
		Notes:            notes,
	}
	created, err := s.repo.InsertRefund(ctx, refund)
	if err != nil {
		return Payment{}, err
	}

	s.logger.Info("refund processed",
		zap.String("payment_id", orig.ID),
		zap.String("refund_id", created.ID),
		zap.Int64("amount", amount),
		zap.Int64("branch_id", orig.BranchID),
	)
	return created, nil
}
