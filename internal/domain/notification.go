package domain

import "time"

// Notification read states inside a user's inbox.
const (
	NotificationUnread = "unread"
	NotificationRead   = "read"
)

// InboxCap is the maximum number of notification references kept per user.
// Older references are evicted when new ones are prepended.
const InboxCap = 50

// NotificationTemplate is a stored notification body shared by every
// recipient of one send. Bilingual fields may be empty when the sender
// supplied only the plain title/body pair.
type NotificationTemplate struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	TitleEn        string            `json:"titleEn,omitempty"`
	BodyEn         string            `json:"bodyEn,omitempty"`
	TitleAr        string            `json:"titleAr,omitempty"`
	BodyAr         string            `json:"bodyAr,omitempty"`
	Route          string            `json:"route,omitempty"`
	AdditionalData map[string]string `json:"additionalData,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
	TargetCount    int               `json:"targetCount"`
}

// UserNotification is one reference inside a user's inbox document.
type UserNotification struct {
	TemplateID string     `json:"templateId"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the reference is past its expiry at the given instant.
func (n UserNotification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// Inbox is the per-user notification document stored as one row.
// Version supports optimistic concurrency on the read-modify-write cycle.
type Inbox struct {
	NationalID    string             `json:"nationalId"`
	Notifications []UserNotification `json:"notifications"`
	Version       int64              `json:"version"`
}

// InboxEntry is a fully expanded notification returned to the app:
// the inbox reference joined with its template.
type InboxEntry struct {
	TemplateID     string            `json:"templateId"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	TitleEn        string            `json:"titleEn,omitempty"`
	BodyEn         string            `json:"bodyEn,omitempty"`
	TitleAr        string            `json:"titleAr,omitempty"`
	BodyAr         string            `json:"bodyAr,omitempty"`
	Route          string            `json:"route,omitempty"`
	AdditionalData map[string]string `json:"additionalData,omitempty"`
	Status         string            `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	ReadAt         *time.Time        `json:"readAt,omitempty"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
}
