package models

import "time"

type NotificationType string

const (
	NotifyComplaintCreated  NotificationType = "COMPLAINT_CREATED"
	NotifyComplaintAssigned NotificationType = "COMPLAINT_ASSIGNED"
	NotifyStatusChanged     NotificationType = "STATUS_CHANGED"
	NotifyEscalated         NotificationType = "COMPLAINT_ESCALATED"
)

// NotificationEvent is the payload published to the notification channels.
// Delivery is best effort; the event carries enough context for the consumer
// to render a message without a callback into this service.
type NotificationEvent struct {
	Type            NotificationType  `json:"type"`
	ComplaintID     uint              `json:"complaintId"`
	ReferenceNumber string            `json:"referenceNumber"`
	CitizenID       uint              `json:"citizenId"`
	AssigneeID      *uint             `json:"assigneeId,omitempty"`
	Department      string            `json:"department"`
	Category        string            `json:"category"`
	Priority        ComplaintPriority `json:"priority"`
	Status          ComplaintStatus   `json:"status"`
	Message         string            `json:"message"`
	CreatedAt       time.Time         `json:"createdAt"`
}
