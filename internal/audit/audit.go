// Package audit publishes audit events to the event bus.
//
// Recording is fire-and-forget: a failed publish is logged and dropped so
// an audit outage never blocks the primary response. The audit worker
// consumes the topic and persists entries to audit_logs.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tamweel-digital/falcon/internal/domain"
)

// Service records audit events.
type Service struct {
	bus domain.EventBus
	log *slog.Logger
}

// New creates an audit service.
func New(bus domain.EventBus, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{bus: bus, log: log}
}

// Record publishes one audit event. The national ID may be empty for
// events not tied to a customer.
func (s *Service) Record(ctx context.Context, nationalID, action string, details map[string]any) {
	if s == nil || s.bus == nil {
		return
	}

	event := domain.AuditEvent{
		NationalID: nationalID,
		Action:     action,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Warn("failed to encode audit event", "action", action, "error", err)
		return
	}

	if err := s.bus.Publish(ctx, domain.TopicAuditEvent, payload); err != nil {
		s.log.Warn("failed to publish audit event", "action", action, "error", err)
	}
}
