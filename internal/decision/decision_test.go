package decision

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/tamweel-digital/falcon/internal/audit"
	"github.com/tamweel-digital/falcon/internal/domain"
	"github.com/tamweel-digital/falcon/internal/repository"
)

func newTestEngine(t *testing.T) (*Engine, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "falcon-decision-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine := New(repo, audit.New(nil, nil), nil, domain.DefaultDecisionConfig(), nil)
	return engine, repo
}

func TestEvaluateCard(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	t.Run("CapacityBoundApproval", func(t *testing.T) {
		// salary 5000, liabilities 500, expenses 300:
		// max=10000, dbr=750, available=4200, capacity=750,
		// from_capacity=15000 -> final=10000, REWARD.
		result, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID:  "1000000001",
			Salary:      5000,
			Liabilities: 500,
			Expenses:    300,
		})
		if err != nil {
			t.Fatalf("EvaluateCard failed: %v", err)
		}

		if result.Decision != DecisionApproved {
			t.Errorf("decision = %q", result.Decision)
		}
		if result.CreditLimit != 10000 {
			t.Errorf("credit limit = %.2f, want 10000", result.CreditLimit)
		}
		if result.CardType != "REWARD" {
			t.Errorf("card type = %q, want REWARD", result.CardType)
		}
		if result.Debug.DBRLimit != 750 || result.Debug.AvailableIncome != 4200 {
			t.Errorf("debug trace wrong: %+v", result.Debug)
		}
		if result.ApplicationNo < 1000000 || result.ApplicationNo > 9999999 {
			t.Errorf("application number %d out of 7-digit range", result.ApplicationNo)
		}

		// The decision persisted as a pending application.
		app, err := repo.LatestCardApplication(ctx, "1000000001")
		if err != nil {
			t.Fatalf("LatestCardApplication failed: %v", err)
		}
		if app.Status != domain.StatusPending || app.CardLimit != 10000 {
			t.Errorf("persisted application wrong: %+v", app)
		}
	})

	t.Run("BelowMinimumSalary", func(t *testing.T) {
		_, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID: "1000000002",
			Salary:     3999,
		})

		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Fatalf("expected rejection, got: %v", err)
		}
		if rej.Code != CodeValidationError {
			t.Errorf("code = %q", rej.Code)
		}
		if rej.Message != "Minimum salary must be 4000." {
			t.Errorf("message = %q", rej.Message)
		}
		if rej.MessageAr == "" {
			t.Error("expected Arabic message")
		}
	})

	t.Run("NegativeCapacityClampsToFloor", func(t *testing.T) {
		// Liabilities exceed salary: capacity is negative, limit clamps
		// up to the floor.
		result, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID:  "1000000003",
			Salary:      4000,
			Liabilities: 5000,
		})
		if err != nil {
			t.Fatalf("EvaluateCard failed: %v", err)
		}
		if result.CreditLimit != 2000 {
			t.Errorf("credit limit = %.2f, want 2000", result.CreditLimit)
		}
		if result.CardType != "REWARD" {
			t.Errorf("card type = %q", result.CardType)
		}
	})

	t.Run("ActiveApplicationBlocks", func(t *testing.T) {
		first, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID: "1000000004",
			Salary:     8000,
		})
		if err != nil {
			t.Fatalf("EvaluateCard failed: %v", err)
		}

		_, err = engine.EvaluateCard(ctx, CardRequest{
			NationalID: "1000000004",
			Salary:     8000,
		})

		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Fatalf("expected rejection, got: %v", err)
		}
		if rej.Code != CodeActiveApplicationExists {
			t.Errorf("code = %q", rej.Code)
		}
		if rej.ApplicationNo != first.ApplicationNo {
			t.Errorf("application no = %d, want %d", rej.ApplicationNo, first.ApplicationNo)
		}
		if rej.CurrentStatus != domain.StatusPending {
			t.Errorf("current status = %q", rej.CurrentStatus)
		}
	})

	t.Run("RejectedApplicationDoesNotBlock", func(t *testing.T) {
		if err := repo.SaveCardApplication(ctx, &domain.CardApplication{
			ApplicationNo: 4444444,
			NationalID:    "1000000005",
			Status:        domain.StatusRejected,
			StatusDate:    time.Now().UTC(),
		}); err != nil {
			t.Fatalf("SaveCardApplication failed: %v", err)
		}

		if _, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID: "1000000005",
			Salary:     6000,
		}); err != nil {
			t.Errorf("expected approval after rejection, got: %v", err)
		}
	})

	t.Run("GateRunsBeforeValidation", func(t *testing.T) {
		// An active application wins even when the salary would also
		// fail validation.
		if err := repo.SaveCardApplication(ctx, &domain.CardApplication{
			ApplicationNo: 5555555,
			NationalID:    "1000000006",
			Status:        domain.StatusPending,
			StatusDate:    time.Now().UTC(),
		}); err != nil {
			t.Fatalf("SaveCardApplication failed: %v", err)
		}

		_, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID: "1000000006",
			Salary:     1000,
		})

		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Fatalf("expected rejection, got: %v", err)
		}
		if rej.Code != CodeActiveApplicationExists {
			t.Errorf("code = %q, want active-application conflict first", rej.Code)
		}
	})
}

func TestCardLimitProperties(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	id := int64(2000000000)
	for _, salary := range []float64{4000, 5000, 8750, 12333.5, 20000, 100000} {
		for _, liabilities := range []float64{0, 500, 4000, 15000} {
			for _, expenses := range []float64{0, 250, 3000} {
				id++
				result, err := engine.EvaluateCard(ctx, CardRequest{
					NationalID:  itoa(id),
					Salary:      salary,
					Liabilities: liabilities,
					Expenses:    expenses,
				})
				if err != nil {
					t.Fatalf("EvaluateCard(%v, %v, %v) failed: %v", salary, liabilities, expenses, err)
				}

				limit := result.CreditLimit
				if limit < 2000 || limit > 50000 {
					t.Errorf("limit %.2f out of [2000, 50000] for salary %.2f", limit, salary)
				}
				if math.Mod(limit, 100) != 0 {
					t.Errorf("limit %.2f is not a multiple of 100", limit)
				}
				gold := result.CardType == "GOLD"
				if gold != (limit >= 17500) {
					t.Errorf("card type %q inconsistent with limit %.2f", result.CardType, limit)
				}
			}
		}
	}
}

func TestEvaluateLoan(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	t.Run("UnconstrainedApproval", func(t *testing.T) {
		// salary 10000: dbr_emi=1500, max_emi=10000, allowed=1500,
		// initial_total=90000, raw=90000/1.8=50000 (within bounds).
		result, err := engine.EvaluateLoan(ctx, LoanRequest{
			NationalID: "3000000001",
			Salary:     10000,
		})
		if err != nil {
			t.Fatalf("EvaluateLoan failed: %v", err)
		}

		if result.FinanceAmount != 50000 {
			t.Errorf("finance amount = %.2f, want 50000", result.FinanceAmount)
		}
		if result.TotalRepayment != 90000 {
			t.Errorf("total repayment = %.2f, want 90000", result.TotalRepayment)
		}
		if result.EMI != 1500 {
			t.Errorf("emi = %.2f, want 1500", result.EMI)
		}
		if result.Interest != 40000 {
			t.Errorf("interest = %.2f, want 40000", result.Interest)
		}
		if result.Tenure != 60 || result.FlatRate != 0.16 {
			t.Errorf("terms = %d months at %.2f", result.Tenure, result.FlatRate)
		}

		app, err := repo.LatestLoanApplication(ctx, "3000000001")
		if err != nil {
			t.Fatalf("LatestLoanApplication failed: %v", err)
		}
		if app.FinanceAmount != 50000 || app.EMI != 1500 {
			t.Errorf("persisted application wrong: %+v", app)
		}
	})

	t.Run("ClampedToMaximum", func(t *testing.T) {
		// A very high salary backward-solves above the ceiling; the
		// schedule is recomputed from the clamped principal.
		result, err := engine.EvaluateLoan(ctx, LoanRequest{
			NationalID: "3000000002",
			Salary:     100000,
		})
		if err != nil {
			t.Fatalf("EvaluateLoan failed: %v", err)
		}
		if result.FinanceAmount != 300000 {
			t.Errorf("finance amount = %.2f, want 300000", result.FinanceAmount)
		}
		if result.TotalRepayment != 540000 {
			t.Errorf("total repayment = %.2f, want 540000", result.TotalRepayment)
		}
		if result.EMI != 9000 {
			t.Errorf("emi = %.2f, want 9000", result.EMI)
		}
	})

	t.Run("ClampedToMinimum", func(t *testing.T) {
		// Heavy liabilities force the raw principal below the floor.
		result, err := engine.EvaluateLoan(ctx, LoanRequest{
			NationalID:  "3000000003",
			Salary:      4000,
			Liabilities: 3950,
		})
		if err != nil {
			t.Fatalf("EvaluateLoan failed: %v", err)
		}
		if result.FinanceAmount != 10000 {
			t.Errorf("finance amount = %.2f, want 10000", result.FinanceAmount)
		}
	})

	t.Run("BelowMinimumSalary", func(t *testing.T) {
		_, err := engine.EvaluateLoan(ctx, LoanRequest{
			NationalID: "3000000004",
			Salary:     2000,
		})

		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Fatalf("expected rejection, got: %v", err)
		}
		if rej.Code != CodeValidationError {
			t.Errorf("code = %q", rej.Code)
		}
	})

	t.Run("ActiveApplicationBlocks", func(t *testing.T) {
		if _, err := engine.EvaluateLoan(ctx, LoanRequest{
			NationalID: "3000000005",
			Salary:     9000,
		}); err != nil {
			t.Fatalf("EvaluateLoan failed: %v", err)
		}

		_, err := engine.EvaluateLoan(ctx, LoanRequest{
			NationalID: "3000000005",
			Salary:     9000,
		})

		var rej *Rejection
		if !errors.As(err, &rej) || rej.Code != CodeActiveApplicationExists {
			t.Errorf("expected active-application conflict, got: %v", err)
		}
	})

	t.Run("ProductsLockIndependently", func(t *testing.T) {
		// An active loan application does not block a card decision.
		if _, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID: "3000000005",
			Salary:     9000,
		}); err != nil {
			t.Errorf("expected card approval despite loan lock, got: %v", err)
		}
	})
}

func TestLoanScheduleRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	id := int64(4000000000)
	for _, salary := range []float64{4000, 6500, 10000, 18000, 50000, 200000} {
		for _, liabilities := range []float64{0, 1000, 5500} {
			id++
			result, err := engine.EvaluateLoan(ctx, LoanRequest{
				NationalID:  itoa(id),
				Salary:      salary,
				Liabilities: liabilities,
			})
			if err != nil {
				t.Fatalf("EvaluateLoan(%v, %v) failed: %v", salary, liabilities, err)
			}

			if result.FinanceAmount < 10000 || result.FinanceAmount > 300000 {
				t.Errorf("principal %.2f out of [10000, 300000]", result.FinanceAmount)
			}

			// Forward recomputation must be internally consistent.
			wantTotal := result.FinanceAmount * (1 + 0.16*5)
			if math.Abs(result.TotalRepayment-wantTotal) > 1e-6 {
				t.Errorf("total %.6f != principal*1.8 %.6f", result.TotalRepayment, wantTotal)
			}
			if math.Abs(result.EMI*60-result.TotalRepayment) > 1e-6 {
				t.Errorf("emi*60 %.6f != total %.6f", result.EMI*60, result.TotalRepayment)
			}
			if math.Abs(result.Interest-(result.TotalRepayment-result.FinanceAmount)) > 1e-6 {
				t.Errorf("interest %.6f inconsistent", result.Interest)
			}
		}
	}
}

// publishRecorder captures published events. Only Publish is exercised
// on the approval path.
type publishRecorder struct {
	domain.EventBus
	topics   []string
	payloads [][]byte
}

func (b *publishRecorder) Publish(ctx context.Context, topic string, payload []byte) error {
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, payload)
	return nil
}

func TestApprovalPublishesDecisionEvent(t *testing.T) {
	engine, _ := newTestEngine(t)
	bus := &publishRecorder{}
	engine.bus = bus
	ctx := context.Background()

	t.Run("CardApproval", func(t *testing.T) {
		result, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID:  "5100000001",
			Salary:      5000,
			Liabilities: 500,
			Expenses:    300,
		})
		if err != nil {
			t.Fatalf("EvaluateCard failed: %v", err)
		}

		if len(bus.topics) != 1 || bus.topics[0] != domain.TopicDecisionMade {
			t.Fatalf("topics = %v, want [%s]", bus.topics, domain.TopicDecisionMade)
		}

		var event map[string]any
		if err := json.Unmarshal(bus.payloads[0], &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if event["product"] != "card" || event["decision"] != DecisionApproved {
			t.Errorf("event = %v", event)
		}
		if event["applicationNo"] != float64(result.ApplicationNo) {
			t.Errorf("applicationNo = %v, want %d", event["applicationNo"], result.ApplicationNo)
		}
		if event["cardType"] != result.CardType {
			t.Errorf("cardType = %v, want %s", event["cardType"], result.CardType)
		}
	})

	t.Run("LoanApproval", func(t *testing.T) {
		result, err := engine.EvaluateLoan(ctx, LoanRequest{
			NationalID: "5100000002",
			Salary:     10000,
		})
		if err != nil {
			t.Fatalf("EvaluateLoan failed: %v", err)
		}

		if len(bus.topics) != 2 || bus.topics[1] != domain.TopicDecisionMade {
			t.Fatalf("topics = %v", bus.topics)
		}

		var event map[string]any
		if err := json.Unmarshal(bus.payloads[1], &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if event["product"] != "loan" || event["financeAmount"] != result.FinanceAmount {
			t.Errorf("event = %v", event)
		}
	})

	t.Run("RejectionPublishesNothing", func(t *testing.T) {
		_, err := engine.EvaluateCard(ctx, CardRequest{
			NationalID: "5100000003",
			Salary:     3000,
		})
		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Fatalf("expected rejection, got: %v", err)
		}
		if len(bus.topics) != 2 {
			t.Errorf("rejection published an event: %v", bus.topics)
		}
	})
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
