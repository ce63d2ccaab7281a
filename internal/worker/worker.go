// Package worker provides async processing of audit events from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tamweel-digital/falcon/internal/domain"
)

// Worker persists audit events asynchronously from the EventBus.
// Handlers publish fire-and-forget; the worker is the single writer
// to the audit_logs table.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async audit worker.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the audit topic and begins processing.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAuditEvent, w.handleAuditEvent)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("audit worker started",
		"topic", domain.TopicAuditEvent,
	)

	return nil
}

// handleAuditEvent persists a single audit event.
func (w *Worker) handleAuditEvent(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.AuditEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse audit event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	details := ""
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			slog.Error("failed to encode audit details",
				"message_id", msg.ID,
				"action", event.Action,
				"error", err,
			)
		} else {
			details = string(raw)
		}
	}

	log := &domain.AuditLog{
		NationalID: event.NationalID,
		Action:     event.Action,
		Details:    details,
		CreatedAt:  event.Timestamp,
	}

	if err := w.repo.SaveAuditLog(ctx, log); err != nil {
		slog.Error("failed to save audit log",
			"national_id", event.NationalID,
			"action", event.Action,
			"error", err,
		)
		return err
	}

	slog.Debug("audit event persisted",
		"national_id", event.NationalID,
		"action", event.Action,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("audit worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
