package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRefundAmount(t *testing.T) {
	cases := []struct {
		name          string
		amount        int64
		totalSessions int
		attended      int
		want          int64
	}{
		{"five of twelve", 120000, 12, 5, 50000},
		{"zero sessions guards divide", 120000, 0, 5, 0},
		{"negative sessions", 120000, -1, 5, 0},
		{"nothing attended", 120000, 12, 0, 0},
		{"full attendance", 120000, 12, 12, 120000},
		{"floors the fraction", 100000, 3, 1, 33333},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RefundAmount(tc.amount, tc.totalSessions, tc.attended)
			if got != tc.want {
				t.Errorf("RefundAmount(%d, %d, %d) = %d, want %d",
					tc.amount, tc.totalSessions, tc.attended, got, tc.want)
			}
		})
	}
}

// mockLedger is an in-memory Repository with the related_payment_id
// uniqueness the real schema enforces.
type mockLedger struct {
	payments map[string]Payment
	total    int
	attended int
}

func newMockLedger() *mockLedger {
	return &mockLedger{payments: make(map[string]Payment)}
}

func (m *mockLedger) FindPayment(_ context.Context, id string) (*Payment, error) {
	if p, ok := m.payments[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (m *mockLedger) EnrollmentFacts(context.Context, int64) (int, int, error) {
	return m.total, m.attended, nil
}

func (m *mockLedger) ListRefundCandidates(_ context.Context, branchID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if p.BranchID != branchID || p.Type != TypeTuition || p.Status != StatusPaid {
			continue
		}
		if m.refundFor(p.ID) != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockLedger) InsertRefund(_ context.Context, p Payment) (Payment, error) {
	if p.RelatedPaymentID != nil && m.refundFor(*p.RelatedPaymentID) != nil {
		return Payment{}, ErrRefundExists
	}
	m.payments[p.ID] = p
	return p, nil
}

func (m *mockLedger) refundFor(paymentID string) *Payment {
	for _, p := range m.payments {
		if p.RelatedPaymentID != nil && *p.RelatedPaymentID == paymentID {
			cp := p
			return &cp
		}
	}
	return nil
}

func paidTuition(id string, amount int64) Payment {
	paidAt := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	return Payment{
		ID:           id,
		BranchID:     1,
		EnrollmentID: 7,
		Type:         TypeTuition,
		Amount:       amount,
		Status:       StatusPaid,
		PaidAt:       &paidAt,
	}
}

func TestQuoteComputesFromFacts(t *testing.T) {
	ledger := newMockLedger()
	ledger.payments["p1"] = paidTuition("p1", 120000)
	ledger.total, ledger.attended = 12, 5
	svc := NewService(ledger, zap.NewNop())

	q, err := svc.Quote(context.Background(), "p1")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Amount != 50000 {
		t.Errorf("amount = %d, want 50000", q.Amount)
	}
	if q.TotalSessions != 12 || q.Attended != 5 {
		t.Errorf("facts = %d/%d, want 12/5", q.TotalSessions, q.Attended)
	}
}

func TestQuoteRejectsNonTuition(t *testing.T) {
	ledger := newMockLedger()
	p := paidTuition("p1", 120000)
	p.Type = TypeRefund
	ledger.payments["p1"] = p
	svc := NewService(ledger, zap.NewNop())

	if _, err := svc.Quote(context.Background(), "p1"); !errors.Is(err, ErrNotRefundable) {
		t.Errorf("err = %v, want ErrNotRefundable", err)
	}
	if _, err := svc.Quote(context.Background(), "missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("err = %v, want ErrPaymentNotFound", err)
	}
}

func TestProcessAppendsSingleRefund(t *testing.T) {
	ledger := newMockLedger()
	ledger.payments["p1"] = paidTuition("p1", 120000)
	ledger.total, ledger.attended = 12, 5
	svc := NewService(ledger, zap.NewNop())

	refund, err := svc.Process(context.Background(), "p1", 50000, "중도 퇴원")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if refund.Type != TypeRefund || refund.Amount != 50000 {
		t.Errorf("refund = %+v", refund)
	}
	if refund.RelatedPaymentID == nil || *refund.RelatedPaymentID != "p1" {
		t.Error("refund does not reference the tuition payment")
	}

	if _, err := svc.Process(context.Background(), "p1", 50000, ""); !errors.Is(err, ErrRefundExists) {
		t.Errorf("second refund err = %v, want ErrRefundExists", err)
	}
}

func TestCandidatesExcludeRefunded(t *testing.T) {
	ledger := newMockLedger()
	ledger.payments["p1"] = paidTuition("p1", 120000)
	ledger.payments["p2"] = paidTuition("p2", 90000)
	ledger.total, ledger.attended = 12, 3
	svc := NewService(ledger, zap.NewNop())

	if _, err := svc.Process(context.Background(), "p1", 30000, ""); err != nil {
		t.Fatalf("process: %v", err)
	}

	quotes, err := svc.Candidates(context.Background(), 1)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Payment.ID != "p2" {
		t.Errorf("candidates = %+v, want only p2", quotes)
	}
}
