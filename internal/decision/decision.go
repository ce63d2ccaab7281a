// Package decision implements the card and loan eligibility engines.
//
// Both engines are deterministic arithmetic over salary, liabilities and
// expenses. The only external state consulted before computing is the
// active-application gate: an application that is neither rejected nor
// declined and was opened inside the lock window blocks a new one.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/tamweel-digital/falcon/internal/audit"
	"github.com/tamweel-digital/falcon/internal/domain"
	"github.com/tamweel-digital/falcon/internal/repository"
)

// Rejection codes returned to clients.
const (
	CodeValidationError         = "VALIDATION_ERROR"
	CodeActiveApplicationExists = "ACTIVE_APPLICATION_EXISTS"
	CodeSystemError             = "SYSTEM_ERROR"
)

// DecisionApproved is the decision value on every success path.
const DecisionApproved = "approved"

// Rejection is a business-rule refusal. It satisfies error so engines can
// return it through the normal error path; handlers unwrap it with
// errors.As and map the code to a response.
type Rejection struct {
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	MessageAr     string   `json:"message_ar,omitempty"`
	ApplicationNo int64    `json:"application_no,omitempty"`
	CurrentStatus string   `json:"current_status,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

func (r *Rejection) Error() string {
	return r.Code + ": " + r.Message
}

// Engine evaluates eligibility for both products.
type Engine struct {
	repo  domain.Repository
	audit *audit.Service
	bus   domain.EventBus
	cfg   domain.DecisionConfig
	log   *slog.Logger
}

// New creates a decision engine.
func New(repo domain.Repository, auditSvc *audit.Service, bus domain.EventBus, cfg domain.DecisionConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{repo: repo, audit: auditSvc, bus: bus, cfg: cfg, log: log}
}

// activeGate returns a rejection when the customer already has an active
// application for the product. This check runs before anything else.
func (e *Engine) activeGate(ctx context.Context, product domain.Product, nationalID string) (*Rejection, error) {
	window := time.Duration(e.cfg.ActiveWindowDays) * 24 * time.Hour

	app, err := e.repo.ActiveApplication(ctx, product, nationalID, window)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active application check: %w", err)
	}

	return &Rejection{
		Code:          CodeActiveApplicationExists,
		Message:       fmt.Sprintf("You already have an active application (#%d). Please follow up on its status.", app.ApplicationNo),
		MessageAr:     fmt.Sprintf("لديك طلب نشط بالفعل (رقم %d). يرجى متابعة حالة الطلب.", app.ApplicationNo),
		ApplicationNo: app.ApplicationNo,
		CurrentStatus: app.Status,
	}, nil
}

// validate applies the shared input floor. Returns nil when the request
// is acceptable.
func (e *Engine) validate(nationalID string, salary, liabilities, expenses float64) *Rejection {
	var errs []string
	if nationalID == "" {
		errs = append(errs, "national_id is required.")
	}
	if liabilities < 0 {
		errs = append(errs, "Liabilities cannot be negative.")
	}
	if expenses < 0 {
		errs = append(errs, "Expenses cannot be negative.")
	}
	if salary < e.cfg.MinSalary {
		return &Rejection{
			Code:      CodeValidationError,
			Message:   fmt.Sprintf("Minimum salary must be %.0f.", e.cfg.MinSalary),
			MessageAr: fmt.Sprintf("الحد الأدنى للراتب هو %.0f.", e.cfg.MinSalary),
			Errors:    errs,
		}
	}
	if len(errs) > 0 {
		return &Rejection{
			Code:    CodeValidationError,
			Message: errs[0],
			Errors:  errs,
		}
	}
	return nil
}

// newApplicationNo draws a random 7-digit number and verifies it is not
// already taken, retrying a bounded number of times.
func (e *Engine) newApplicationNo(ctx context.Context, product domain.Product) (int64, error) {
	attempts := e.cfg.AppNoAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		n := rand.Int64N(9000000) + 1000000

		exists, err := e.repo.ApplicationNoExists(ctx, product, n)
		if err != nil {
			return 0, fmt.Errorf("application number check: %w", err)
		}
		if !exists {
			return n, nil
		}
		e.log.Debug("application number collision", "product", product, "applicationNo", n)
	}

	return 0, fmt.Errorf("no unique application number after %d attempts", attempts)
}

func (e *Engine) recordRejection(ctx context.Context, product domain.Product, nationalID string, rej *Rejection) {
	e.audit.Record(ctx, nationalID, domain.AuditDecisionRejected, map[string]any{
		"product": string(product),
		"code":    rej.Code,
		"message": rej.Message,
	})
}

// publishDecision emits an approval event for downstream consumers.
// Publishing is fire-and-forget; a bus outage never fails the decision.
func (e *Engine) publishDecision(ctx context.Context, product domain.Product, nationalID string, appNo int64, details map[string]any) {
	if e.bus == nil {
		return
	}

	event := map[string]any{
		"product":       string(product),
		"nationalId":    nationalID,
		"applicationNo": appNo,
		"decision":      DecisionApproved,
	}
	for k, v := range details {
		event[k] = v
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.log.Warn("failed to encode decision event", "applicationNo", appNo, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, domain.TopicDecisionMade, payload); err != nil {
		e.log.Warn("failed to publish decision event", "applicationNo", appNo, "error", err)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
