package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/civicseva/backend/internal/models"
	"github.com/civicseva/backend/internal/repository"
)

// fakeComplaintStore is an in-memory ComplaintStore mirroring the record
// store contract: identity assignment on create, timestamp stamping and audit
// rows on status changes, idempotent escalation.
type fakeComplaintStore struct {
	mu          sync.Mutex
	nextID      uint
	complaints  map[uint]*models.Complaint
	logs        map[uint][]models.ComplaintStatusLog
	escalateErr map[uint]error
}

func newFakeComplaintStore() *fakeComplaintStore {
	return &fakeComplaintStore{
		complaints:  make(map[uint]*models.Complaint),
		logs:        make(map[uint][]models.ComplaintStatusLog),
		escalateErr: make(map[uint]error),
	}
}

func (f *fakeComplaintStore) Create(ctx context.Context, c *models.Complaint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	c.ReferenceNumber = fmt.Sprintf("CSV-TEST-%06d", f.nextID)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	f.complaints[c.ID] = &stored
	return nil
}

func (f *fakeComplaintStore) FindByID(ctx context.Context, id uint) (*models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeComplaintStore) Search(ctx context.Context, filters repository.SearchFilters) ([]models.Complaint, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Complaint
	for _, c := range f.complaints {
		if filters.CitizenID != nil && c.CitizenID != *filters.CitizenID {
			continue
		}
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (f *fakeComplaintStore) UpdateStatus(ctx context.Context, id uint, change repository.StatusChange) (*models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	previous := c.Status
	now := time.Now()
	c.Status = change.Status
	if change.Status == models.StatusResolved {
		c.ResolvedAt = &now
	}
	if change.Status == models.StatusClosed {
		c.ClosedAt = &now
	}
	if change.Notes != nil {
		c.ResolutionNotes = change.Notes
	}
	if change.EstimatedResolutionDays != nil {
		c.EstimatedResolutionDays = change.EstimatedResolutionDays
	}
	f.logs[id] = append(f.logs[id], models.ComplaintStatusLog{
		ComplaintID:    id,
		PreviousStatus: previous,
		NewStatus:      change.Status,
		ChangedBy:      change.ChangedBy,
		Comment:        change.Comment,
		CreatedAt:      now,
	})
	copied := *c
	return &copied, nil
}

func (f *fakeComplaintStore) Assign(ctx context.Context, id, officerID uint, changedBy *uint) (*models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	if c.Status.IsTerminal() {
		return nil, repository.ErrComplaintClosed
	}
	previous := c.Status
	now := time.Now()
	c.AssigneeID = &officerID
	c.AssignedAt = &now
	c.Status = models.StatusAssigned
	if previous != models.StatusAssigned {
		f.logs[id] = append(f.logs[id], models.ComplaintStatusLog{
			ComplaintID:    id,
			PreviousStatus: previous,
			NewStatus:      models.StatusAssigned,
			ChangedBy:      changedBy,
			CreatedAt:      now,
		})
	}
	copied := *c
	return &copied, nil
}

func (f *fakeComplaintStore) Escalate(ctx context.Context, id uint) (*models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.escalateErr[id]; err != nil {
		return nil, err
	}
	c, ok := f.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	now := time.Now()
	c.IsEscalated = true
	c.EscalatedAt = &now
	c.Priority = models.PriorityUrgent
	copied := *c
	return &copied, nil
}

func (f *fakeComplaintStore) SubmitFeedback(ctx context.Context, id uint, rating int, feedback *string) (*models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.complaints[id]
	if !ok {
		return nil, repository.ErrComplaintNotFound
	}
	c.Rating = &rating
	c.Feedback = feedback
	copied := *c
	return &copied, nil
}

func (f *fakeComplaintStore) StatusHistory(ctx context.Context, id uint) ([]models.ComplaintStatusLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ComplaintStatusLog(nil), f.logs[id]...), nil
}

func (f *fakeComplaintStore) GetStatistics(ctx context.Context, filters repository.StatsFilters) (*models.ComplaintStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.ComplaintStatistics{
		ByStatus:   make(map[string]int64),
		ByPriority: make(map[string]int64),
		ByCategory: make(map[string]int64),
	}
	for _, c := range f.complaints {
		stats.Total++
		stats.ByStatus[string(c.Status)]++
		stats.ByPriority[string(c.Priority)]++
		stats.ByCategory[c.Category]++
		if c.IsEscalated {
			stats.Escalated++
		}
	}
	return stats, nil
}

func (f *fakeComplaintStore) GetEligibleForEscalation(ctx context.Context, olderThanDays int) ([]models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	active := map[models.ComplaintStatus]bool{
		models.StatusSubmitted:  true,
		models.StatusAssigned:   true,
		models.StatusInProgress: true,
	}
	var out []models.Complaint
	for _, c := range f.complaints {
		if active[c.Status] && !c.IsEscalated && c.CreatedAt.Before(cutoff) {
			out = append(out, *c)
		}
	}
	return out, nil
}

// backdate shifts a stored complaint's creation time for sweep tests.
func (f *fakeComplaintStore) backdate(id uint, age time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.complaints[id]; ok {
		c.CreatedAt = time.Now().Add(-age)
	}
}

// fakeEvidenceStore is an in-memory EvidenceStore keyed by complaint id.
type fakeEvidenceStore struct {
	mu      sync.Mutex
	files   map[uint][]models.EvidenceFile
	creates int
	addErr  error
}

func newFakeEvidenceStore() *fakeEvidenceStore {
	return &fakeEvidenceStore{files: make(map[uint][]models.EvidenceFile)}
}

func (f *fakeEvidenceStore) Create(ctx context.Context, complaintID uint, files []models.EvidenceFile) (*models.EvidenceDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.creates++
	f.files[complaintID] = append([]models.EvidenceFile(nil), files...)
	return &models.EvidenceDocument{
		ComplaintID: complaintID,
		Files:       append([]models.EvidenceFile(nil), files...),
	}, nil
}

func (f *fakeEvidenceStore) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeEvidenceStore) AddFiles(ctx context.Context, complaintID uint, files []models.EvidenceFile) (*models.EvidenceDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.files[complaintID] = append(f.files[complaintID], files...)
	return &models.EvidenceDocument{
		ComplaintID: complaintID,
		Files:       append([]models.EvidenceFile(nil), f.files[complaintID]...),
	}, nil
}

func (f *fakeEvidenceStore) FindByComplaintID(ctx context.Context, complaintID uint) (*models.EvidenceDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.files[complaintID]
	if !ok {
		return nil, repository.ErrEvidenceNotFound
	}
	return &models.EvidenceDocument{
		ComplaintID: complaintID,
		Files:       append([]models.EvidenceFile(nil), files...),
	}, nil
}

func (f *fakeEvidenceStore) DeleteFile(ctx context.Context, complaintID uint, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.files[complaintID]
	if !ok {
		return repository.ErrEvidenceNotFound
	}
	kept := files[:0]
	for _, file := range files {
		if file.FileID != fileID {
			kept = append(kept, file)
		}
	}
	f.files[complaintID] = kept
	return nil
}

func (f *fakeEvidenceStore) DeleteByComplaintID(ctx context.Context, complaintID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, complaintID)
	return nil
}

func (f *fakeEvidenceStore) GetFileCount(ctx context.Context, complaintID uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files[complaintID]), nil
}

// stubAnalyzer returns canned scores.
type stubAnalyzer struct {
	sentiment SentimentResult
	fraud     FraudResult
}

func (s *stubAnalyzer) AnalyzeSentiment(ctx context.Context, text string) SentimentResult {
	return s.sentiment
}

func (s *stubAnalyzer) AnalyzeFraud(ctx context.Context, in FraudInput) FraudResult {
	return s.fraud
}

// recordingNotifier captures dispatched events.
type recordingNotifier struct {
	mu        sync.Mutex
	citizen   []models.NotificationEvent
	authority []models.NotificationEvent
	err       error
}

func (n *recordingNotifier) NotifyCitizen(ctx context.Context, event models.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.citizen = append(n.citizen, event)
	return nil
}

func (n *recordingNotifier) NotifyAuthority(ctx context.Context, event models.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.authority = append(n.authority, event)
	return nil
}

func (n *recordingNotifier) authorityCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.authority)
}

// fakeObjectStore hands out deterministic keys and URLs.
type fakeObjectStore struct {
	mu      sync.Mutex
	puts    int
	putErr  error
	signErr error
}

func (f *fakeObjectStore) Put(ctx context.Context, reader io.Reader, size int64, contentType, filename string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", "", f.putErr
	}
	f.puts++
	key := fmt.Sprintf("evidence/%d_%s", f.puts, filename)
	return key, "http://objects.local/" + key, nil
}

func (f *fakeObjectStore) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://signed.local/" + objectKey, nil
}
