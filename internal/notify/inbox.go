package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tamweel-digital/falcon/internal/domain"
	"github.com/tamweel-digital/falcon/internal/repository"
)

// ListRequest is an inbox read. MarkAsRead returns every surviving entry
// and flips unread ones to read; otherwise only unread entries return.
type ListRequest struct {
	NationalID string `json:"national_id"`
	MarkAsRead bool   `json:"mark_as_read,omitempty"`
}

// List expands a user's inbox references into full notifications.
// Expired references are pruned on the way through.
func (s *Service) List(ctx context.Context, req *ListRequest) ([]domain.InboxEntry, error) {
	if req.NationalID == "" {
		return nil, fmt.Errorf("%w: national_id is required", ErrInvalidPayload)
	}

	for attempt := 0; attempt < maxUpsertRetries; attempt++ {
		inbox, err := s.repo.GetInbox(ctx, req.NationalID)
		if err != nil {
			return nil, err
		}

		entries, kept, changed, err := s.expand(ctx, inbox, req.MarkAsRead)
		if err != nil {
			return nil, err
		}

		if !changed {
			return entries, nil
		}

		inbox.Notifications = kept
		err = s.repo.UpsertInbox(ctx, inbox)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if req.MarkAsRead {
			s.audit.Record(ctx, req.NationalID, domain.AuditNotificationRead, map[string]any{
				"entries": len(entries),
			})
		}
		return entries, nil
	}

	return nil, fmt.Errorf("inbox read for %s: %w", req.NationalID, repository.ErrVersionConflict)
}

// expand walks the inbox once: prunes expired references, joins the rest
// with their templates and optionally marks unread entries read. The
// returned kept slice is the new inbox content; changed reports whether
// it must be written back.
func (s *Service) expand(ctx context.Context, inbox *domain.Inbox, markAsRead bool) (entries []domain.InboxEntry, kept []domain.UserNotification, changed bool, err error) {
	now := time.Now().UTC()

	for _, ref := range inbox.Notifications {
		if ref.Expired(now) {
			changed = true
			s.audit.Record(ctx, inbox.NationalID, domain.AuditNotificationExpired, map[string]any{
				"templateId": ref.TemplateID,
			})
			continue
		}

		include := markAsRead || ref.Status == domain.NotificationUnread

		if include {
			tmpl, err := s.template(ctx, ref.TemplateID)
			if errors.Is(err, repository.ErrNotFound) {
				// Orphaned reference; drop it.
				changed = true
				continue
			}
			if err != nil {
				return nil, nil, false, err
			}

			if markAsRead && ref.Status == domain.NotificationUnread {
				ref.Status = domain.NotificationRead
				readAt := now
				ref.ReadAt = &readAt
				changed = true
			}

			entries = append(entries, domain.InboxEntry{
				TemplateID:     tmpl.ID,
				Title:          tmpl.Title,
				Body:           tmpl.Body,
				TitleEn:        tmpl.TitleEn,
				BodyEn:         tmpl.BodyEn,
				TitleAr:        tmpl.TitleAr,
				BodyAr:         tmpl.BodyAr,
				Route:          tmpl.Route,
				AdditionalData: tmpl.AdditionalData,
				Status:         ref.Status,
				CreatedAt:      ref.CreatedAt,
				ReadAt:         ref.ReadAt,
				ExpiresAt:      ref.ExpiresAt,
			})
		}

		kept = append(kept, ref)
	}

	return entries, kept, changed, nil
}

// template fetches a notification template, cache first.
func (s *Service) template(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	if s.cache != nil {
		if tmpl, err := s.cache.GetTemplate(ctx, id); err == nil && tmpl != nil {
			return tmpl, nil
		}
	}

	tmpl, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetTemplate(ctx, tmpl, templateCacheTTL); err != nil {
			s.log.Debug("failed to cache template", "templateId", id, "error", err)
		}
	}
	return tmpl, nil
}
