package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tamweel-digital/falcon/internal/decision"
	"github.com/tamweel-digital/falcon/internal/domain"
	"github.com/tamweel-digital/falcon/internal/notify"
	"github.com/tamweel-digital/falcon/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	engine   *decision.Engine
	notifier *notify.Service
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, engine *decision.Engine, notifier *notify.Service, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		engine:   engine,
		notifier: notifier,
		version:  version,
	}
}

// ErrorResponse is the error body for all business endpoints. The
// legacy clients key off code/message/message_ar, so those fields are
// preserved even though failures now carry real HTTP status codes.
type ErrorResponse struct {
	Status        string   `json:"status"`
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	MessageAr     string   `json:"message_ar,omitempty"`
	ApplicationNo int64    `json:"application_no,omitempty"`
	CurrentStatus string   `json:"current_status,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// CardDecision handles POST /decision/card.
func (h *Handler) CardDecision(w http.ResponseWriter, r *http.Request) {
	var req decision.CardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid JSON request body")
		return
	}

	result, err := h.engine.EvaluateCard(r.Context(), req)
	if err != nil {
		h.writeDecisionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// LoanDecision handles POST /decision/loan.
func (h *Handler) LoanDecision(w http.ResponseWriter, r *http.Request) {
	var req decision.LoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid JSON request body")
		return
	}

	result, err := h.engine.EvaluateLoan(r.Context(), req)
	if err != nil {
		h.writeDecisionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeDecisionError maps engine failures onto the error taxonomy.
func (h *Handler) writeDecisionError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *decision.Rejection
	if errors.As(err, &rej) {
		status := http.StatusBadRequest
		if rej.Code == decision.CodeActiveApplicationExists {
			status = http.StatusConflict
		}
		writeJSON(w, status, ErrorResponse{
			Status:        "error",
			Code:          rej.Code,
			Message:       rej.Message,
			MessageAr:     rej.MessageAr,
			ApplicationNo: rej.ApplicationNo,
			CurrentStatus: rej.CurrentStatus,
			Errors:        rej.Errors,
		})
		return
	}

	slog.Error("decision failed",
		"path", r.URL.Path,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Status:  "error",
		Code:    decision.CodeSystemError,
		Message: err.Error(),
	})
}

// SendResponse is the success body for POST /notifications/send.
type SendResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	TemplateID      string `json:"template_id"`
	TotalRecipients int    `json:"total_recipients"`
	SuccessfulSends int    `json:"successful_sends"`
}

// SendNotifications handles POST /notifications/send.
func (h *Handler) SendNotifications(w http.ResponseWriter, r *http.Request) {
	var req notify.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid JSON request body")
		return
	}

	result, err := h.notifier.Send(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrNoTargets):
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Status:  "error",
				Code:    "NO_TARGET_USERS",
				Message: "no users matched the target criteria",
			})
		case errors.Is(err, notify.ErrInvalidPayload):
			writeValidationError(w, err.Error())
		case errors.Is(err, notify.ErrRateLimited):
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Status:  "error",
				Code:    "RATE_LIMITED",
				Message: "notification send limit reached, try again later",
			})
		default:
			slog.Error("notification send failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Status:  "error",
				Code:    decision.CodeSystemError,
				Message: err.Error(),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{
		Status:          "success",
		Message:         "notification sent",
		TemplateID:      result.TemplateID,
		TotalRecipients: result.TotalRecipients,
		SuccessfulSends: result.SuccessfulSends,
	})
}

// ListResponse is the success body for POST /notifications/list.
type ListResponse struct {
	Status        string              `json:"status"`
	Notifications []domain.InboxEntry `json:"notifications"`
	Count         int                 `json:"count"`
}

// ListNotifications handles POST /notifications/list.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	var req notify.ListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid JSON request body")
		return
	}

	entries, err := h.notifier.List(r.Context(), &req)
	if err != nil {
		if errors.Is(err, notify.ErrInvalidPayload) {
			writeValidationError(w, err.Error())
			return
		}
		slog.Error("notification list failed",
			"national_id", req.NationalID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Status:  "error",
			Code:    decision.CodeSystemError,
			Message: err.Error(),
		})
		return
	}

	if entries == nil {
		entries = []domain.InboxEntry{}
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Status:        "success",
		Notifications: entries,
		Count:         len(entries),
	})
}

// GetLoanApplication handles GET /applications/loan/{national_id}.
func (h *Handler) GetLoanApplication(w http.ResponseWriter, r *http.Request) {
	nationalID := chi.URLParam(r, "national_id")
	if nationalID == "" {
		writeValidationError(w, "national_id is required")
		return
	}

	app, err := h.repo.LatestLoanApplication(r.Context(), nationalID)
	if err != nil {
		h.writeLookupError(w, "loan application", nationalID, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// GetCardApplication handles GET /applications/card/{national_id}.
func (h *Handler) GetCardApplication(w http.ResponseWriter, r *http.Request) {
	nationalID := chi.URLParam(r, "national_id")
	if nationalID == "" {
		writeValidationError(w, "national_id is required")
		return
	}

	app, err := h.repo.LatestCardApplication(r.Context(), nationalID)
	if err != nil {
		h.writeLookupError(w, "card application", nationalID, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) writeLookupError(w http.ResponseWriter, what, nationalID string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Status:  "error",
			Code:    "NOT_FOUND",
			Message: what + " not found",
		})
		return
	}

	slog.Error("lookup failed",
		"what", what,
		"national_id", nationalID,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Status:  "error",
		Code:    decision.CodeSystemError,
		Message: err.Error(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeValidationError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Status:  "error",
		Code:    decision.CodeValidationError,
		Message: msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
