package domain

import "time"

// Audit actions recorded through the event bus.
const (
	AuditDecisionApproved     = "decision_approved"
	AuditDecisionRejected     = "decision_rejected"
	AuditNotificationCreated  = "notification_created"
	AuditNotificationSent     = "notification_sent"
	AuditNotificationExpired  = "notification_expired"
	AuditNotificationRead     = "notification_read"
	AuditNotificationSkipped  = "notification_skipped"
)

// AuditLog is a row in audit_logs.
type AuditLog struct {
	ID         int64     `json:"id"`
	NationalID string    `json:"nationalId,omitempty"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"` // JSON blob
	CreatedAt  time.Time `json:"createdAt"`
}

// AuditEvent is the bus payload published by services; the audit worker
// persists it asynchronously so audit writes never block a response.
type AuditEvent struct {
	NationalID string         `json:"nationalId,omitempty"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
