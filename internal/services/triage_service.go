package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/civicseva/backend/internal/logger"
	"github.com/civicseva/backend/internal/models"
	"github.com/civicseva/backend/internal/repository"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrInvalidInput  = errors.New("invalid complaint input")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// ComplaintStore is the structured record store consumed by the triage and
// escalation services. Satisfied by repository.ComplaintRepository.
type ComplaintStore interface {
	Create(ctx context.Context, c *models.Complaint) error
	FindByID(ctx context.Context, id uint) (*models.Complaint, error)
	Search(ctx context.Context, f repository.SearchFilters) ([]models.Complaint, int64, error)
	UpdateStatus(ctx context.Context, id uint, change repository.StatusChange) (*models.Complaint, error)
	Assign(ctx context.Context, id, officerID uint, changedBy *uint) (*models.Complaint, error)
	Escalate(ctx context.Context, id uint) (*models.Complaint, error)
	SubmitFeedback(ctx context.Context, id uint, rating int, feedback *string) (*models.Complaint, error)
	StatusHistory(ctx context.Context, id uint) ([]models.ComplaintStatusLog, error)
	GetStatistics(ctx context.Context, f repository.StatsFilters) (*models.ComplaintStatistics, error)
	GetEligibleForEscalation(ctx context.Context, olderThanDays int) ([]models.Complaint, error)
}

// EvidenceStore is the document store holding per-complaint file descriptors.
// Satisfied by repository.EvidenceRepository.
type EvidenceStore interface {
	Create(ctx context.Context, complaintID uint, files []models.EvidenceFile) (*models.EvidenceDocument, error)
	AddFiles(ctx context.Context, complaintID uint, files []models.EvidenceFile) (*models.EvidenceDocument, error)
	FindByComplaintID(ctx context.Context, complaintID uint) (*models.EvidenceDocument, error)
	DeleteFile(ctx context.Context, complaintID uint, fileID string) error
	DeleteByComplaintID(ctx context.Context, complaintID uint) error
	GetFileCount(ctx context.Context, complaintID uint) (int, error)
}

// RiskAnalyzer scores complaints. Both operations are fail-open and never
// return errors; outputs are advisory only.
type RiskAnalyzer interface {
	AnalyzeSentiment(ctx context.Context, text string) SentimentResult
	AnalyzeFraud(ctx context.Context, in FraudInput) FraudResult
}

// Notifier dispatches best-effort notifications.
type Notifier interface {
	NotifyCitizen(ctx context.Context, event models.NotificationEvent) error
	NotifyAuthority(ctx context.Context, event models.NotificationEvent) error
}

// ObjectStore stores raw evidence bytes and returns a key plus retrievable
// URL. Satisfied by storage.ObjectStore.
type ObjectStore interface {
	Put(ctx context.Context, reader io.Reader, size int64, contentType, filename string) (string, string, error)
	PresignedURL(ctx context.Context, objectKey string) (string, error)
}

// CreateComplaintInput is the validated payload of a new complaint.
type CreateComplaintInput struct {
	Category    string
	SubCategory *string
	Title       string
	Description string
	Latitude    *float64
	Longitude   *float64
	Address     string
	State       string
	District    string
	Pincode     string
	Tags        []string
}

// UploadFile is one file handed in with a complaint or evidence upload.
type UploadFile struct {
	Reader      io.Reader
	Name        string
	ContentType string
	Size        int64
}

// ComplaintDetail pairs a record with its evidence descriptors.
type ComplaintDetail struct {
	Complaint *models.Complaint     `json:"complaint"`
	Evidence  []models.EvidenceFile `json:"evidence"`
}

// backgroundTimeout bounds each fire-and-forget unit.
const backgroundTimeout = 30 * time.Second

// TriageService orchestrates the complaint lifecycle: synchronous scoring,
// classification and persistence on the creation path, then fire-and-forget
// enrichment and notification.
type TriageService struct {
	complaints ComplaintStore
	evidence   EvidenceStore
	risk       RiskAnalyzer
	notifier   Notifier
	objects    ObjectStore
}

func NewTriageService(complaints ComplaintStore, evidence EvidenceStore, risk RiskAnalyzer, notifier Notifier, objects ObjectStore) *TriageService {
	return &TriageService{
		complaints: complaints,
		evidence:   evidence,
		risk:       risk,
		notifier:   notifier,
		objects:    objects,
	}
}

// PriorityFromUrgency maps an urgency score to a priority. Ties resolve
// toward MEDIUM.
func PriorityFromUrgency(urgency float64) models.ComplaintPriority {
	switch {
	case urgency > 0.7:
		return models.PriorityUrgent
	case urgency > 0.5:
		return models.PriorityHigh
	case urgency < 0.3:
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

// CreateComplaint runs the synchronous creation path and schedules the
// asynchronous enrichment. It fails only on invalid input or a record store
// failure; scoring outages and evidence failures degrade, never abort.
func (ts *TriageService) CreateComplaint(ctx context.Context, citizenID uint, in CreateComplaintInput, files []UploadFile) (*models.Complaint, []models.EvidenceFile, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		return nil, nil, fmt.Errorf("%w: title and description are required", ErrInvalidInput)
	}

	// Scoring sits on the critical path because it decides priority, but it
	// never blocks creation: AnalyzeSentiment is fail-open.
	sentiment := ts.risk.AnalyzeSentiment(ctx, title+". "+description)

	complaint := &models.Complaint{
		CitizenID:      citizenID,
		Category:       in.Category,
		SubCategory:    in.SubCategory,
		Title:          title,
		Description:    description,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		Address:        in.Address,
		State:          in.State,
		District:       in.District,
		Pincode:        in.Pincode,
		Department:     models.DepartmentForCategory(in.Category),
		Priority:       PriorityFromUrgency(sentiment.UrgencyScore),
		Status:         models.StatusSubmitted,
		Tags:           pq.StringArray(in.Tags),
		SentimentScore: &sentiment.SentimentScore,
		UrgencyScore:   &sentiment.UrgencyScore,
	}

	if err := ts.complaints.Create(ctx, complaint); err != nil {
		return nil, nil, err
	}

	// Evidence is best effort: the record is the source of truth for
	// existence, a complaint may legitimately end up with zero evidence.
	persisted := ts.persistEvidence(ctx, complaint.ID, complaint.ReferenceNumber, files, true)

	ts.dispatch("fraud_reevaluation", complaint.ID, func(ctx context.Context) error {
		return ts.reevaluateFraud(ctx, complaint, len(persisted))
	})
	ts.dispatch("authority_notification", complaint.ID, func(ctx context.Context) error {
		return ts.notifier.NotifyAuthority(ctx, newComplaintEvent(models.NotifyComplaintCreated, complaint,
			fmt.Sprintf("New %s complaint %s routed to %s", complaint.Priority, complaint.ReferenceNumber, complaint.Department)))
	})
	ts.dispatch("citizen_notification", complaint.ID, func(ctx context.Context) error {
		return ts.notifier.NotifyCitizen(ctx, newComplaintEvent(models.NotifyComplaintCreated, complaint,
			fmt.Sprintf("Your complaint %s has been registered", complaint.ReferenceNumber)))
	})

	return complaint, persisted, nil
}

// persistEvidence uploads files and records their descriptors. Failures are
// logged per file and never propagate; the returned slice holds what actually
// persisted. The first upload inserts the evidence document; later uploads
// append through the upsert, which also rebuilds a document lost to a
// degraded creation.
func (ts *TriageService) persistEvidence(ctx context.Context, complaintID uint, reference string, files []UploadFile, firstUpload bool) []models.EvidenceFile {
	if len(files) == 0 {
		return nil
	}

	descriptors := make([]models.EvidenceFile, 0, len(files))
	for _, f := range files {
		key, url, err := ts.objects.Put(ctx, f.Reader, f.Size, f.ContentType, f.Name)
		if err != nil {
			logger.WithComplaint(complaintID, reference).Warn("Evidence upload failed, continuing without file: ", err)
			continue
		}
		descriptors = append(descriptors, models.EvidenceFile{
			FileID:      uuid.NewString(),
			FileName:    f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			ObjectKey:   key,
			URL:         url,
			UploadedAt:  time.Now(),
		})
	}
	if len(descriptors) == 0 {
		return nil
	}

	var err error
	if firstUpload {
		_, err = ts.evidence.Create(ctx, complaintID, descriptors)
	} else {
		_, err = ts.evidence.AddFiles(ctx, complaintID, descriptors)
	}
	if err != nil {
		logger.WithComplaint(complaintID, reference).Error("Failed to record evidence descriptors: ", err)
		return nil
	}
	return descriptors
}

// dispatch runs one background unit with its own error boundary. Units are
// never awaited, never retried, and communicate only through the stores.
func (ts *TriageService) dispatch(task string, complaintID uint, fn func(ctx context.Context) error) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithTask(task, complaintID).Error("Background task panicked: ", rec)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			logger.WithTask(task, complaintID).Warn("Background task failed: ", err)
		}
	}()
}

// reevaluateFraud re-scores a persisted complaint and auto-escalates on HIGH
// or CRITICAL risk. Runs only in the background, after the creation response.
func (ts *TriageService) reevaluateFraud(ctx context.Context, complaint *models.Complaint, evidenceCount int) error {
	result := ts.risk.AnalyzeFraud(ctx, FraudInput{
		CitizenID:     complaint.CitizenID,
		Description:   complaint.Description,
		EvidenceCount: evidenceCount,
		Category:      complaint.Category,
		Location:      fmt.Sprintf("%s, %s", complaint.District, complaint.State),
	})

	if result.RiskLevel != "HIGH" && result.RiskLevel != "CRITICAL" {
		return nil
	}

	logger.WithTask("fraud_reevaluation", complaint.ID).Warn(
		fmt.Sprintf("Risk tier %s (p=%.2f), escalating", result.RiskLevel, result.FraudProbability))

	escalated, err := ts.complaints.Escalate(ctx, complaint.ID)
	if err != nil {
		return fmt.Errorf("failed to escalate after fraud re-evaluation: %w", err)
	}

	if err := ts.notifier.NotifyAuthority(ctx, newComplaintEvent(models.NotifyEscalated, escalated,
		fmt.Sprintf("Complaint %s escalated after risk re-evaluation (%s)", escalated.ReferenceNumber, result.RiskLevel))); err != nil {
		logger.WithTask("fraud_reevaluation", complaint.ID).Warn("Escalation notification failed: ", err)
	}
	return nil
}

// GetComplaintByID returns the record with its evidence descriptors. A
// missing evidence document yields an empty list, not an error.
func (ts *TriageService) GetComplaintByID(ctx context.Context, id uint) (*ComplaintDetail, error) {
	complaint, err := ts.complaints.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ComplaintDetail{
		Complaint: complaint,
		Evidence:  ts.evidenceFor(ctx, id),
	}, nil
}

// SearchComplaints returns one page of records with per-result evidence.
func (ts *TriageService) SearchComplaints(ctx context.Context, f repository.SearchFilters) ([]ComplaintDetail, int64, error) {
	complaints, total, err := ts.complaints.Search(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	details := make([]ComplaintDetail, 0, len(complaints))
	for i := range complaints {
		details = append(details, ComplaintDetail{
			Complaint: &complaints[i],
			Evidence:  ts.evidenceFor(ctx, complaints[i].ID),
		})
	}
	return details, total, nil
}

func (ts *TriageService) evidenceFor(ctx context.Context, complaintID uint) []models.EvidenceFile {
	doc, err := ts.evidence.FindByComplaintID(ctx, complaintID)
	if err != nil {
		if !errors.Is(err, repository.ErrEvidenceNotFound) {
			logger.WithTask("evidence_lookup", complaintID).Warn("Evidence lookup failed: ", err)
		}
		return []models.EvidenceFile{}
	}

	// Hand out time-limited download links; the stored public URL stays as
	// the fallback when signing is unavailable.
	files := doc.Files
	for i := range files {
		signed, err := ts.objects.PresignedURL(ctx, files[i].ObjectKey)
		if err != nil {
			continue
		}
		files[i].URL = signed
	}
	return files
}

// UpdateStatus applies a transition and notifies the citizen in the
// background.
func (ts *TriageService) UpdateStatus(ctx context.Context, id uint, change repository.StatusChange) (*models.Complaint, error) {
	updated, err := ts.complaints.UpdateStatus(ctx, id, change)
	if err != nil {
		return nil, err
	}

	ts.dispatch("citizen_notification", id, func(ctx context.Context) error {
		return ts.notifier.NotifyCitizen(ctx, newComplaintEvent(models.NotifyStatusChanged, updated,
			fmt.Sprintf("Complaint %s is now %s", updated.ReferenceNumber, updated.Status)))
	})
	return updated, nil
}

// AssignComplaint sets the assignee and notifies the officer's department.
func (ts *TriageService) AssignComplaint(ctx context.Context, id, officerID uint, changedBy *uint) (*models.Complaint, error) {
	updated, err := ts.complaints.Assign(ctx, id, officerID, changedBy)
	if err != nil {
		return nil, err
	}

	ts.dispatch("authority_notification", id, func(ctx context.Context) error {
		return ts.notifier.NotifyAuthority(ctx, newComplaintEvent(models.NotifyComplaintAssigned, updated,
			fmt.Sprintf("Complaint %s assigned to officer %d", updated.ReferenceNumber, officerID)))
	})
	return updated, nil
}

// EscalateComplaint flags a complaint urgent. Idempotent.
func (ts *TriageService) EscalateComplaint(ctx context.Context, id uint) (*models.Complaint, error) {
	return ts.complaints.Escalate(ctx, id)
}

// SubmitFeedback records a citizen rating, rejecting out-of-range values
// before anything is persisted.
func (ts *TriageService) SubmitFeedback(ctx context.Context, id uint, rating int, feedback *string) (*models.Complaint, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	return ts.complaints.SubmitFeedback(ctx, id, rating, feedback)
}

// UploadEvidence appends evidence to an existing complaint. This is also the
// repair path after a degraded creation.
func (ts *TriageService) UploadEvidence(ctx context.Context, id uint, files []UploadFile) ([]models.EvidenceFile, error) {
	complaint, err := ts.complaints.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files supplied", ErrInvalidInput)
	}

	persisted := ts.persistEvidence(ctx, complaint.ID, complaint.ReferenceNumber, files, false)
	if len(persisted) == 0 {
		return nil, fmt.Errorf("failed to persist evidence")
	}
	return persisted, nil
}

// DeleteEvidenceFile removes one descriptor. The stored bytes stay.
func (ts *TriageService) DeleteEvidenceFile(ctx context.Context, id uint, fileID string) error {
	return ts.evidence.DeleteFile(ctx, id, fileID)
}

// StatusHistory returns the audit trail of a complaint.
func (ts *TriageService) StatusHistory(ctx context.Context, id uint) ([]models.ComplaintStatusLog, error) {
	if _, err := ts.complaints.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return ts.complaints.StatusHistory(ctx, id)
}

// GetStatistics aggregates complaint counts.
func (ts *TriageService) GetStatistics(ctx context.Context, f repository.StatsFilters) (*models.ComplaintStatistics, error) {
	return ts.complaints.GetStatistics(ctx, f)
}

func newComplaintEvent(t models.NotificationType, c *models.Complaint, message string) models.NotificationEvent {
	return models.NotificationEvent{
		Type:            t,
		ComplaintID:     c.ID,
		ReferenceNumber: c.ReferenceNumber,
		CitizenID:       c.CitizenID,
		AssigneeID:      c.AssigneeID,
		Department:      c.Department,
		Category:        c.Category,
		Priority:        c.Priority,
		Status:          c.Status,
		Message:         message,
		CreatedAt:       time.Now(),
	}
}
