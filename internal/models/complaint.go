package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

type ComplaintStatus string
type ComplaintPriority string

const (
	StatusSubmitted  ComplaintStatus = "SUBMITTED"
	StatusAssigned   ComplaintStatus = "ASSIGNED"
	StatusInProgress ComplaintStatus = "IN_PROGRESS"
	StatusResolved   ComplaintStatus = "RESOLVED"
	StatusRejected   ComplaintStatus = "REJECTED"
	StatusClosed     ComplaintStatus = "CLOSED"
)

const (
	PriorityLow    ComplaintPriority = "LOW"
	PriorityMedium ComplaintPriority = "MEDIUM"
	PriorityHigh   ComplaintPriority = "HIGH"
	PriorityUrgent ComplaintPriority = "URGENT"
)

// IsTerminal reports whether no further transitions are expected. CLOSED is
// the only terminal state; RESOLVED and REJECTED can still move to CLOSED.
func (s ComplaintStatus) IsTerminal() bool {
	return s == StatusClosed
}

type Complaint struct {
	ID                      uint              `json:"id" gorm:"primaryKey"`
	ReferenceNumber         string            `json:"referenceNumber" gorm:"uniqueIndex;not null"`
	CitizenID               uint              `json:"citizenId" gorm:"not null;index"`
	Citizen                 *User             `json:"citizen,omitempty" gorm:"foreignKey:CitizenID"`
	Category                string            `json:"category" gorm:"not null;index"`
	SubCategory             *string           `json:"subCategory,omitempty"`
	Title                   string            `json:"title" gorm:"not null"`
	Description             string            `json:"description" gorm:"type:text;not null"`
	Latitude                *float64          `json:"latitude,omitempty"`
	Longitude               *float64          `json:"longitude,omitempty"`
	Address                 string            `json:"address" gorm:"type:text"`
	State                   string            `json:"state"`
	District                string            `json:"district"`
	Pincode                 string            `json:"pincode"`
	Department              string            `json:"department" gorm:"not null;index"`
	Priority                ComplaintPriority `json:"priority" gorm:"not null;default:'MEDIUM'"`
	Status                  ComplaintStatus   `json:"status" gorm:"not null;default:'SUBMITTED';index"`
	Tags                    pq.StringArray    `json:"tags" gorm:"type:text[]"`
	AssigneeID              *uint             `json:"assigneeId,omitempty"`
	Assignee                *User             `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
	AssignedAt              *time.Time        `json:"assignedAt,omitempty"`
	ResolvedAt              *time.Time        `json:"resolvedAt,omitempty"`
	ClosedAt                *time.Time        `json:"closedAt,omitempty"`
	ResolutionNotes         *string           `json:"resolutionNotes,omitempty" gorm:"type:text"`
	EstimatedResolutionDays *int              `json:"estimatedResolutionDays,omitempty"`
	Rating                  *int              `json:"rating,omitempty"`
	Feedback                *string           `json:"feedback,omitempty" gorm:"type:text"`
	IsEscalated             bool              `json:"isEscalated" gorm:"not null;default:false;index"`
	EscalatedAt             *time.Time        `json:"escalatedAt,omitempty"`
	SentimentScore          *float64          `json:"sentimentScore,omitempty"`
	UrgencyScore            *float64          `json:"urgencyScore,omitempty"`
	CreatedAt               time.Time         `json:"createdAt"`
	UpdatedAt               time.Time         `json:"updatedAt"`
	DeletedAt               gorm.DeletedAt    `json:"-" gorm:"index"`
}

func (Complaint) TableName() string {
	return "complaints"
}

// ComplaintStatusLog is an append-only audit row, one per status transition.
type ComplaintStatusLog struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	ComplaintID    uint            `json:"complaintId" gorm:"not null;index"`
	PreviousStatus ComplaintStatus `json:"previousStatus" gorm:"not null"`
	NewStatus      ComplaintStatus `json:"newStatus" gorm:"not null"`
	ChangedBy      *uint           `json:"changedBy,omitempty"`
	Comment        *string         `json:"comment,omitempty" gorm:"type:text"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func (ComplaintStatusLog) TableName() string {
	return "complaint_status_logs"
}

// ComplaintStatistics is the aggregate shape returned by the statistics query.
type ComplaintStatistics struct {
	Total              int64            `json:"total"`
	ByStatus           map[string]int64 `json:"byStatus"`
	ByPriority         map[string]int64 `json:"byPriority"`
	ByCategory         map[string]int64 `json:"byCategory"`
	Escalated          int64            `json:"escalated"`
	AvgResolutionHours float64          `json:"avgResolutionHours"`
}
