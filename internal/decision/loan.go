package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tamweel-digital/falcon/internal/domain"
)

// LoanRequest carries the inputs of a loan eligibility evaluation.
type LoanRequest struct {
	NationalID  string  `json:"national_id"`
	Salary      float64 `json:"salary"`
	Liabilities float64 `json:"liabilities"`
	Expenses    float64 `json:"expenses"`
}

// LoanDebug exposes every intermediate figure of the loan calculation.
type LoanDebug struct {
	Salary         float64 `json:"salary"`
	Liabilities    float64 `json:"liabilities"`
	Expenses       float64 `json:"expenses"`
	DBREMI         float64 `json:"dbr_emi"`         // salary * dbr rate
	MaxEMI         float64 `json:"max_emi"`         // salary - liabilities
	AllowedEMI     float64 `json:"allowed_emi"`     // min(dbr, max)
	InitialTotal   float64 `json:"initial_total"`   // allowed * tenure
	RawPrincipal   float64 `json:"raw_principal"`   // backward-solved from flat rate
	FinalPrincipal float64 `json:"final_principal"` // clamped
	TotalRepayment float64 `json:"total_repayment"` // recomputed forward
	ActualEMI      float64 `json:"actual_emi"`
	TotalInterest  float64 `json:"total_interest"`
}

// LoanResult is a successful loan decision.
type LoanResult struct {
	Decision       string    `json:"decision"`
	ApplicationNo  int64     `json:"application_number"`
	FinanceAmount  float64   `json:"finance_amount"`
	Tenure         int       `json:"tenure"`
	EMI            float64   `json:"emi"`
	FlatRate       float64   `json:"flat_rate"`
	TotalRepayment float64   `json:"total_repayment"`
	Interest       float64   `json:"interest"`
	Debug          LoanDebug `json:"debug"`
}

// EvaluateLoan runs the loan decision. The principal is backward-solved
// from the installment the customer can carry, clamped to product bounds,
// then the schedule is recomputed forward from the clamped principal so
// the returned figures are internally consistent.
func (e *Engine) EvaluateLoan(ctx context.Context, req LoanRequest) (*LoanResult, error) {
	if req.NationalID == "" {
		rej := &Rejection{
			Code:    CodeValidationError,
			Message: "national_id is required.",
			Errors:  []string{"national_id is required."},
		}
		return nil, rej
	}

	rej, err := e.activeGate(ctx, domain.ProductLoan, req.NationalID)
	if err != nil {
		return nil, err
	}
	if rej != nil {
		e.recordRejection(ctx, domain.ProductLoan, req.NationalID, rej)
		return nil, rej
	}

	if rej := e.validate(req.NationalID, req.Salary, req.Liabilities, req.Expenses); rej != nil {
		e.recordRejection(ctx, domain.ProductLoan, req.NationalID, rej)
		return nil, rej
	}

	months := float64(e.cfg.LoanTenureMonths)
	years := months / 12
	ratio := 1 + e.cfg.LoanFlatRate*years

	debug := LoanDebug{
		Salary:      req.Salary,
		Liabilities: req.Liabilities,
		Expenses:    req.Expenses,
	}

	debug.DBREMI = req.Salary * e.cfg.DBRRate
	debug.MaxEMI = req.Salary - req.Liabilities
	debug.AllowedEMI = math.Min(debug.DBREMI, debug.MaxEMI)
	debug.InitialTotal = debug.AllowedEMI * months
	debug.RawPrincipal = debug.InitialTotal / ratio
	debug.FinalPrincipal = clamp(debug.RawPrincipal, e.cfg.LoanMinPrincipal, e.cfg.LoanMaxPrincipal)
	debug.TotalRepayment = debug.FinalPrincipal * ratio
	debug.ActualEMI = debug.TotalRepayment / months
	debug.TotalInterest = debug.TotalRepayment - debug.FinalPrincipal

	appNo, err := e.newApplicationNo(ctx, domain.ProductLoan)
	if err != nil {
		return nil, err
	}

	app := &domain.LoanApplication{
		ApplicationNo:  appNo,
		NationalID:     req.NationalID,
		Status:         domain.StatusPending,
		StatusDate:     time.Now().UTC(),
		FinanceAmount:  debug.FinalPrincipal,
		Tenure:         e.cfg.LoanTenureMonths,
		EMI:            debug.ActualEMI,
		TotalRepayment: debug.TotalRepayment,
		Interest:       debug.TotalInterest,
	}
	if err := e.repo.SaveLoanApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("save loan application: %w", err)
	}

	e.audit.Record(ctx, req.NationalID, domain.AuditDecisionApproved, map[string]any{
		"product":       string(domain.ProductLoan),
		"applicationNo": appNo,
		"financeAmount": debug.FinalPrincipal,
		"emi":           debug.ActualEMI,
	})
	e.publishDecision(ctx, domain.ProductLoan, req.NationalID, appNo, map[string]any{
		"financeAmount": debug.FinalPrincipal,
		"emi":           debug.ActualEMI,
	})

	e.log.Info("loan decision approved",
		"nationalId", req.NationalID,
		"applicationNo", appNo,
		"financeAmount", debug.FinalPrincipal,
		"emi", debug.ActualEMI,
	)

	return &LoanResult{
		Decision:       DecisionApproved,
		ApplicationNo:  appNo,
		FinanceAmount:  debug.FinalPrincipal,
		Tenure:         e.cfg.LoanTenureMonths,
		EMI:            debug.ActualEMI,
		FlatRate:       e.cfg.LoanFlatRate,
		TotalRepayment: debug.TotalRepayment,
		Interest:       debug.TotalInterest,
		Debug:          debug,
	}, nil
}
