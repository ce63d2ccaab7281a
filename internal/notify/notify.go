// Package notify implements audience resolution and notification dispatch.
//
// A send creates one immutable template row, resolves the audience, then
// prepends a reference into each recipient's capped inbox document.
// Recipients are processed sequentially; a partial failure leaves
// already-written inboxes intact and is reported through the send counts.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tamweel-digital/falcon/internal/audit"
	"github.com/tamweel-digital/falcon/internal/domain"
	"github.com/tamweel-digital/falcon/internal/filter"
	"github.com/tamweel-digital/falcon/internal/repository"
)

var (
	// ErrNoTargets means the audience resolved to nobody.
	ErrNoTargets = errors.New("no target users")

	// ErrInvalidPayload means the send request shape is unusable.
	ErrInvalidPayload = errors.New("invalid notification payload")

	// ErrRateLimited means the hourly campaign budget is spent.
	ErrRateLimited = errors.New("notification send rate limit exceeded")
)

// Inbox writers retry this many times on a version conflict before
// reporting the recipient as failed.
const maxUpsertRetries = 3

const templateCacheTTL = 15 * time.Minute

// SendRequest is a notification dispatch request. The payload is either
// single-language (title+body) or bilingual (all four fields). Exactly
// one targeting mode is expected; they are tried in order.
type SendRequest struct {
	Title          string            `json:"title,omitempty"`
	Body           string            `json:"body,omitempty"`
	TitleEn        string            `json:"title_en,omitempty"`
	BodyEn         string            `json:"body_en,omitempty"`
	TitleAr        string            `json:"title_ar,omitempty"`
	BodyAr         string            `json:"body_ar,omitempty"`
	Route          string            `json:"route,omitempty"`
	AdditionalData map[string]string `json:"additionalData,omitempty"`
	ExpiresAt      *time.Time        `json:"expiry_at,omitempty"`

	NationalID      string                     `json:"national_id,omitempty"`
	NationalIDs     []string                   `json:"national_ids,omitempty"`
	Filters         map[string]json.RawMessage `json:"filters,omitempty"`
	FilterOperation string                     `json:"filter_operation,omitempty"`
}

// SendResult reports dispatch counts. Successful and total can differ:
// recipients already written keep their notification when a later one
// fails.
type SendResult struct {
	TemplateID      string `json:"template_id"`
	TotalRecipients int    `json:"total_recipients"`
	SuccessfulSends int    `json:"successful_sends"`
}

// Service resolves audiences and records notifications.
type Service struct {
	repo     domain.Repository
	cache    domain.Cache
	compiler *filter.Compiler
	audit    *audit.Service
	bus      domain.EventBus
	cfg      domain.NotifyConfig
	log      *slog.Logger
}

// New creates a notification service.
func New(repo domain.Repository, cache domain.Cache, compiler *filter.Compiler, auditSvc *audit.Service, bus domain.EventBus, cfg domain.NotifyConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		compiler: compiler,
		audit:    auditSvc,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// Resolve produces the target national IDs for a send request. Explicit
// IDs are existence-checked; only known customers survive. The result
// may be empty.
func (s *Service) Resolve(ctx context.Context, req *SendRequest) ([]string, error) {
	switch {
	case req.NationalID != "":
		exists, err := s.repo.CustomerExists(ctx, req.NationalID)
		if err != nil {
			return nil, fmt.Errorf("resolve single recipient: %w", err)
		}
		if !exists {
			return nil, nil
		}
		return []string{req.NationalID}, nil

	case len(req.NationalIDs) > 0:
		var ids []string
		for _, id := range req.NationalIDs {
			exists, err := s.repo.CustomerExists(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("resolve recipient list: %w", err)
			}
			if exists {
				ids = append(ids, id)
			}
		}
		return ids, nil

	case len(req.Filters) > 0:
		pred := s.compiler.Compile(req.Filters, req.FilterOperation)
		ids, err := s.repo.QueryCustomerIDs(ctx, pred)
		if err != nil {
			return nil, fmt.Errorf("resolve filtered audience: %w", err)
		}
		return ids, nil

	default:
		return nil, fmt.Errorf("%w: one of national_id, national_ids or filters is required", ErrInvalidPayload)
	}
}

// Send validates the payload, resolves the audience, stores the template
// and fans out inbox references.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	if err := validatePayload(req); err != nil {
		return nil, err
	}

	recipients, err := s.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoTargets
	}

	if err := s.checkSendRate(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tmpl := &domain.NotificationTemplate{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Body:           req.Body,
		TitleEn:        req.TitleEn,
		BodyEn:         req.BodyEn,
		TitleAr:        req.TitleAr,
		BodyAr:         req.BodyAr,
		Route:          req.Route,
		AdditionalData: req.AdditionalData,
		CreatedAt:      now,
		ExpiresAt:      req.ExpiresAt,
		TargetCount:    len(recipients),
	}

	if err := s.repo.SaveTemplate(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetTemplate(ctx, tmpl, templateCacheTTL); err != nil {
			s.log.Warn("failed to cache template", "templateId", tmpl.ID, "error", err)
		}
	}

	s.audit.Record(ctx, "", domain.AuditNotificationCreated, map[string]any{
		"templateId": tmpl.ID,
		"targets":    len(recipients),
	})

	successful := 0
	for _, nationalID := range recipients {
		if err := s.deliver(ctx, nationalID, tmpl, now); err != nil {
			s.log.Warn("failed to deliver notification",
				"templateId", tmpl.ID,
				"nationalId", nationalID,
				"error", err,
			)
			s.audit.Record(ctx, nationalID, domain.AuditNotificationSkipped, map[string]any{
				"templateId": tmpl.ID,
				"reason":     err.Error(),
			})
			continue
		}
		successful++
	}

	s.audit.Record(ctx, "", domain.AuditNotificationSent, map[string]any{
		"templateId": tmpl.ID,
		"total":      len(recipients),
		"successful": successful,
	})

	if s.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"templateId": tmpl.ID,
			"total":      len(recipients),
			"successful": successful,
		})
		if err := s.bus.Publish(ctx, domain.TopicNotificationSent, payload); err != nil {
			s.log.Warn("failed to publish send event", "templateId", tmpl.ID, "error", err)
		}
	}

	s.log.Info("notification dispatched",
		"templateId", tmpl.ID,
		"total", len(recipients),
		"successful", successful,
	)

	return &SendResult{
		TemplateID:      tmpl.ID,
		TotalRecipients: len(recipients),
		SuccessfulSends: successful,
	}, nil
}

// checkSendRate spends one unit of the hourly campaign budget. The
// counter keys on the clock hour; a cache outage fails open so an
// unavailable counter never blocks dispatch.
func (s *Service) checkSendRate(ctx context.Context) error {
	if s.cache == nil || s.cfg.MaxSendsPerHour <= 0 {
		return nil
	}

	window := time.Now().UTC().Format("2006010215")
	n, err := s.cache.IncrementCounter(ctx, "notify:sends:"+window, time.Hour)
	if err != nil {
		s.log.Warn("send rate counter unavailable", "window", window, "error", err)
		return nil
	}
	if n > s.cfg.MaxSendsPerHour {
		s.log.Warn("send rate limit exceeded",
			"window", window,
			"count", n,
			"limit", s.cfg.MaxSendsPerHour,
		)
		return ErrRateLimited
	}

	s.log.Debug("send rate counter", "window", window, "count", n)
	return nil
}

// deliver prepends a template reference into one recipient's inbox,
// trimming to the cap. The read-modify-write cycle retries on version
// conflicts with concurrent campaigns.
func (s *Service) deliver(ctx context.Context, nationalID string, tmpl *domain.NotificationTemplate, now time.Time) error {
	ref := domain.UserNotification{
		TemplateID: tmpl.ID,
		Status:     domain.NotificationUnread,
		CreatedAt:  now,
		ExpiresAt:  tmpl.ExpiresAt,
	}

	for attempt := 0; attempt < maxUpsertRetries; attempt++ {
		inbox, err := s.repo.GetInbox(ctx, nationalID)
		if err != nil {
			return err
		}

		inbox.Notifications = append([]domain.UserNotification{ref}, inbox.Notifications...)
		if len(inbox.Notifications) > domain.InboxCap {
			inbox.Notifications = inbox.Notifications[:domain.InboxCap]
		}

		err = s.repo.UpsertInbox(ctx, inbox)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		return err
	}

	return fmt.Errorf("inbox update for %s: %w", nationalID, repository.ErrVersionConflict)
}

// validatePayload enforces the two accepted shapes: single-language
// title+body, or all four bilingual fields.
func validatePayload(req *SendRequest) error {
	single := req.Title != "" && req.Body != ""
	multi := req.TitleEn != "" && req.BodyEn != "" && req.TitleAr != "" && req.BodyAr != ""
	if !single && !multi {
		return fmt.Errorf("%w: provide title+body or title_en+body_en+title_ar+body_ar", ErrInvalidPayload)
	}
	return nil
}
