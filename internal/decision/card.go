package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tamweel-digital/falcon/internal/domain"
)

// CardRequest carries the inputs of a card eligibility evaluation.
type CardRequest struct {
	NationalID  string  `json:"national_id"`
	Salary      float64 `json:"salary"`
	Liabilities float64 `json:"liabilities"`
	Expenses    float64 `json:"expenses"`
}

// CardDebug exposes every intermediate figure of the card calculation.
// It is part of the response contract, not diagnostics.
type CardDebug struct {
	Salary            float64 `json:"salary"`
	Liabilities       float64 `json:"liabilities"`
	Expenses          float64 `json:"expenses"`
	MaxLimit          float64 `json:"max_limit"`           // salary * 2
	DBRLimit          float64 `json:"dbr_limit"`           // salary * dbr rate
	AvailableIncome   float64 `json:"available_income"`    // salary - liabilities - expenses
	PaymentCapacity   float64 `json:"payment_capacity"`    // min(dbr, available)
	LimitFromCapacity float64 `json:"limit_from_capacity"` // capacity * factor
	RawLimit          float64 `json:"raw_limit"`           // min(max, from capacity)
	ClampedLimit      float64 `json:"clamped_limit"`
	FinalLimit        float64 `json:"final_limit"` // rounded down to nearest 100
}

// CardResult is a successful card decision.
type CardResult struct {
	Decision       string    `json:"decision"`
	ApplicationNo  int64     `json:"application_number"`
	CardType       string    `json:"card_type"`
	CreditLimit    float64   `json:"credit_limit"`
	MinCreditLimit float64   `json:"min_credit_limit"`
	MaxCreditLimit float64   `json:"max_credit_limit"`
	Debug          CardDebug `json:"debug"`
}

// EvaluateCard runs the card decision. The active-application gate runs
// first, unconditionally; validation and arithmetic follow.
func (e *Engine) EvaluateCard(ctx context.Context, req CardRequest) (*CardResult, error) {
	if req.NationalID == "" {
		rej := &Rejection{
			Code:    CodeValidationError,
			Message: "national_id is required.",
			Errors:  []string{"national_id is required."},
		}
		return nil, rej
	}

	rej, err := e.activeGate(ctx, domain.ProductCard, req.NationalID)
	if err != nil {
		return nil, err
	}
	if rej != nil {
		e.recordRejection(ctx, domain.ProductCard, req.NationalID, rej)
		return nil, rej
	}

	if rej := e.validate(req.NationalID, req.Salary, req.Liabilities, req.Expenses); rej != nil {
		e.recordRejection(ctx, domain.ProductCard, req.NationalID, rej)
		return nil, rej
	}

	debug := CardDebug{
		Salary:      req.Salary,
		Liabilities: req.Liabilities,
		Expenses:    req.Expenses,
	}

	debug.MaxLimit = req.Salary * 2
	debug.DBRLimit = req.Salary * e.cfg.DBRRate
	debug.AvailableIncome = req.Salary - req.Liabilities - req.Expenses
	debug.PaymentCapacity = math.Min(debug.DBRLimit, debug.AvailableIncome)
	debug.LimitFromCapacity = debug.PaymentCapacity * e.cfg.CardCapacityFactor
	debug.RawLimit = math.Min(debug.MaxLimit, debug.LimitFromCapacity)
	debug.ClampedLimit = clamp(debug.RawLimit, e.cfg.CardMinLimit, e.cfg.CardMaxLimit)
	debug.FinalLimit = math.Floor(debug.ClampedLimit/100) * 100

	cardType := "REWARD"
	if debug.FinalLimit >= e.cfg.CardGoldThreshold {
		cardType = "GOLD"
	}

	appNo, err := e.newApplicationNo(ctx, domain.ProductCard)
	if err != nil {
		return nil, err
	}

	app := &domain.CardApplication{
		ApplicationNo: appNo,
		NationalID:    req.NationalID,
		Status:        domain.StatusPending,
		StatusDate:    time.Now().UTC(),
		CardType:      cardType,
		CardLimit:     debug.FinalLimit,
	}
	if err := e.repo.SaveCardApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("save card application: %w", err)
	}

	e.audit.Record(ctx, req.NationalID, domain.AuditDecisionApproved, map[string]any{
		"product":       string(domain.ProductCard),
		"applicationNo": appNo,
		"cardType":      cardType,
		"creditLimit":   debug.FinalLimit,
	})
	e.publishDecision(ctx, domain.ProductCard, req.NationalID, appNo, map[string]any{
		"cardType":    cardType,
		"creditLimit": debug.FinalLimit,
	})

	e.log.Info("card decision approved",
		"nationalId", req.NationalID,
		"applicationNo", appNo,
		"cardType", cardType,
		"creditLimit", debug.FinalLimit,
	)

	return &CardResult{
		Decision:       DecisionApproved,
		ApplicationNo:  appNo,
		CardType:       cardType,
		CreditLimit:    debug.FinalLimit,
		MinCreditLimit: e.cfg.CardMinLimit,
		MaxCreditLimit: e.cfg.CardMaxLimit,
		Debug:          debug,
	}, nil
}
