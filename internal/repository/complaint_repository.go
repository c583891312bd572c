package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civicseva/backend/internal/models"
	"gorm.io/gorm"
)

var (
	ErrComplaintNotFound = errors.New("complaint not found")
	ErrComplaintClosed   = errors.New("complaint is closed")
)

// SearchFilters narrows a paginated complaint search. Zero values mean "no
// filter" except Page/Limit, which get defaults.
type SearchFilters struct {
	CitizenID   *uint
	AssigneeID  *uint
	Statuses    []models.ComplaintStatus
	Categories  []string
	Priorities  []models.ComplaintPriority
	State       string
	District    string
	Pincode     string
	IsEscalated *bool
	From        *time.Time
	To          *time.Time
	Query       string
	Page        int
	Limit       int
	SortBy      string
	Order       string
}

// StatusChange carries one requested status transition.
type StatusChange struct {
	Status                  models.ComplaintStatus
	Notes                   *string
	EstimatedResolutionDays *int
	ChangedBy               *uint
	Comment                 *string
}

// StatsFilters narrows the statistics aggregation.
type StatsFilters struct {
	Department string
	From       *time.Time
	To         *time.Time
}

type ComplaintRepository struct {
	db *gorm.DB
}

func NewComplaintRepository(db *gorm.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

// referenceNumber builds the human-facing complaint reference. The date block
// keeps it sequential-looking; the nano-derived suffix keeps collisions rare.
// Create retries on the unique index for the rest.
func referenceNumber(now time.Time) string {
	return fmt.Sprintf("CSV-%s-%06d", now.Format("20060102"), now.UnixNano()%1000000)
}

// Create persists a new complaint, assigning id and reference number exactly
// once.
func (r *ComplaintRepository) Create(ctx context.Context, c *models.Complaint) error {
	for attempt := 0; attempt < 3; attempt++ {
		c.ReferenceNumber = referenceNumber(time.Now())
		err := r.db.WithContext(ctx).Create(c).Error
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("failed to create complaint: %w", err)
		}
	}
	return fmt.Errorf("failed to create complaint: reference number collision")
}

func (r *ComplaintRepository) FindByID(ctx context.Context, id uint) (*models.Complaint, error) {
	var c models.Complaint
	err := r.db.WithContext(ctx).Preload("Assignee").First(&c, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to fetch complaint: %w", err)
	}
	return &c, nil
}

// Search returns one page of complaints plus the unpaginated total.
func (r *ComplaintRepository) Search(ctx context.Context, f SearchFilters) ([]models.Complaint, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Complaint{})

	if f.CitizenID != nil {
		query = query.Where("citizen_id = ?", *f.CitizenID)
	}
	if f.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *f.AssigneeID)
	}
	if len(f.Statuses) > 0 {
		query = query.Where("status IN ?", f.Statuses)
	}
	if len(f.Categories) > 0 {
		query = query.Where("category IN ?", f.Categories)
	}
	if len(f.Priorities) > 0 {
		query = query.Where("priority IN ?", f.Priorities)
	}
	if f.State != "" {
		query = query.Where("state = ?", f.State)
	}
	if f.District != "" {
		query = query.Where("district = ?", f.District)
	}
	if f.Pincode != "" {
		query = query.Where("pincode = ?", f.Pincode)
	}
	if f.IsEscalated != nil {
		query = query.Where("is_escalated = ?", *f.IsEscalated)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", *f.To)
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count complaints: %w", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 || limit > 100 {
		limit = 10
	}

	sortBy := "created_at"
	switch f.SortBy {
	case "updatedAt":
		sortBy = "updated_at"
	case "priority":
		sortBy = "priority"
	case "status":
		sortBy = "status"
	}
	order := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		order = "ASC"
	}

	var complaints []models.Complaint
	err := query.
		Preload("Assignee").
		Order(sortBy + " " + order).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&complaints).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search complaints: %w", err)
	}
	return complaints, total, nil
}

// Update applies a partial field update and returns the fresh record.
func (r *ComplaintRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) (*models.Complaint, error) {
	result := r.db.WithContext(ctx).Model(&models.Complaint{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update complaint: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrComplaintNotFound
	}
	return r.FindByID(ctx, id)
}

// statusUpdates computes the field changes for one transition. resolvedAt is
// stamped on RESOLVED and closedAt on CLOSED; neither is ever cleared here.
func statusUpdates(change StatusChange, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"status": change.Status,
	}
	if change.Status == models.StatusResolved {
		updates["resolved_at"] = now
	}
	if change.Status == models.StatusClosed {
		updates["closed_at"] = now
	}
	if change.Notes != nil {
		updates["resolution_notes"] = *change.Notes
	}
	if change.EstimatedResolutionDays != nil {
		updates["estimated_resolution_days"] = *change.EstimatedResolutionDays
	}
	return updates
}

// UpdateStatus applies a transition and appends one audit row capturing the
// prior status. No transition table is enforced here; authorization decides
// who may request what, this layer keeps timestamps and history consistent.
func (r *ComplaintRepository) UpdateStatus(ctx context.Context, id uint, change StatusChange) (*models.Complaint, error) {
	var updated *models.Complaint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Complaint
		if err := tx.First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrComplaintNotFound
			}
			return fmt.Errorf("failed to fetch complaint: %w", err)
		}

		previous := c.Status
		if err := tx.Model(&c).Updates(statusUpdates(change, time.Now())).Error; err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}

		statusLog := models.ComplaintStatusLog{
			ComplaintID:    c.ID,
			PreviousStatus: previous,
			NewStatus:      change.Status,
			ChangedBy:      change.ChangedBy,
			Comment:        change.Comment,
		}
		if err := tx.Create(&statusLog).Error; err != nil {
			return fmt.Errorf("failed to write status log: %w", err)
		}

		updated = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Assign sets the assignee and forces status to ASSIGNED. Re-assignment is
// allowed from any non-terminal status.
func (r *ComplaintRepository) Assign(ctx context.Context, id, officerID uint, changedBy *uint) (*models.Complaint, error) {
	var updated *models.Complaint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Complaint
		if err := tx.First(&c, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrComplaintNotFound
			}
			return fmt.Errorf("failed to fetch complaint: %w", err)
		}
		if c.Status.IsTerminal() {
			return ErrComplaintClosed
		}

		previous := c.Status
		now := time.Now()
		updates := map[string]interface{}{
			"assignee_id": officerID,
			"assigned_at": now,
			"status":      models.StatusAssigned,
		}
		if err := tx.Model(&c).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to assign complaint: %w", err)
		}

		// Re-assignment within ASSIGNED is not a transition, so no audit row.
		if previous != models.StatusAssigned {
			statusLog := models.ComplaintStatusLog{
				ComplaintID:    c.ID,
				PreviousStatus: previous,
				NewStatus:      models.StatusAssigned,
				ChangedBy:      changedBy,
			}
			if err := tx.Create(&statusLog).Error; err != nil {
				return fmt.Errorf("failed to write status log: %w", err)
			}
		}

		updated = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Escalate flags a complaint urgent. Idempotent: a second call refreshes the
// escalation timestamp and succeeds.
func (r *ComplaintRepository) Escalate(ctx context.Context, id uint) (*models.Complaint, error) {
	updates := map[string]interface{}{
		"is_escalated": true,
		"escalated_at": time.Now(),
		"priority":     models.PriorityUrgent,
	}
	return r.Update(ctx, id, updates)
}

// SubmitFeedback records a citizen rating. Rating bounds are validated by the
// service layer; this keeps the write itself.
func (r *ComplaintRepository) SubmitFeedback(ctx context.Context, id uint, rating int, feedback *string) (*models.Complaint, error) {
	updates := map[string]interface{}{
		"rating": rating,
	}
	if feedback != nil {
		updates["feedback"] = *feedback
	}
	return r.Update(ctx, id, updates)
}

// StatusHistory returns the audit rows of a complaint, oldest first.
func (r *ComplaintRepository) StatusHistory(ctx context.Context, id uint) ([]models.ComplaintStatusLog, error) {
	var logs []models.ComplaintStatusLog
	err := r.db.WithContext(ctx).
		Where("complaint_id = ?", id).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status history: %w", err)
	}
	return logs, nil
}

// GetEligibleForEscalation returns the bounded snapshot the escalation sweep
// works from: active, not yet escalated, older than the threshold.
func (r *ComplaintRepository) GetEligibleForEscalation(ctx context.Context, olderThanDays int) ([]models.Complaint, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	var complaints []models.Complaint
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.ComplaintStatus{
			models.StatusSubmitted,
			models.StatusAssigned,
			models.StatusInProgress,
		}).
		Where("is_escalated = ?", false).
		Where("created_at < ?", cutoff).
		Limit(500).
		Find(&complaints).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch escalation candidates: %w", err)
	}
	return complaints, nil
}

type countRow struct {
	Key   string
	Count int64
}

// GetStatistics aggregates complaint counts and average resolution time.
func (r *ComplaintRepository) GetStatistics(ctx context.Context, f StatsFilters) (*models.ComplaintStatistics, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Complaint{})
		if f.Department != "" {
			q = q.Where("department = ?", f.Department)
		}
		if f.From != nil {
			q = q.Where("created_at >= ?", *f.From)
		}
		if f.To != nil {
			q = q.Where("created_at <= ?", *f.To)
		}
		return q
	}

	stats := &models.ComplaintStatistics{
		ByStatus:   make(map[string]int64),
		ByPriority: make(map[string]int64),
		ByCategory: make(map[string]int64),
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count complaints: %w", err)
	}

	grouped := func(column string, into map[string]int64) error {
		var rows []countRow
		if err := base().Select(column + " AS key, COUNT(*) AS count").Group(column).Scan(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			into[row.Key] = row.Count
		}
		return nil
	}

	if err := grouped("status", stats.ByStatus); err != nil {
		return nil, fmt.Errorf("failed to group by status: %w", err)
	}
	if err := grouped("priority", stats.ByPriority); err != nil {
		return nil, fmt.Errorf("failed to group by priority: %w", err)
	}
	if err := grouped("category", stats.ByCategory); err != nil {
		return nil, fmt.Errorf("failed to group by category: %w", err)
	}

	if err := base().Where("is_escalated = ?", true).Count(&stats.Escalated).Error; err != nil {
		return nil, fmt.Errorf("failed to count escalated: %w", err)
	}

	var avg *float64
	err := base().
		Where("resolved_at IS NOT NULL").
		Select("AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600)").
		Scan(&avg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute average resolution time: %w", err)
	}
	if avg != nil {
		stats.AvgResolutionHours = *avg
	}

	return stats, nil
}
