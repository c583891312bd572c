package services

import (
	"context"
	"strings"
	"testing"

	"github.com/civicseva/backend/internal/models"
	"github.com/civicseva/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusChange(status models.ComplaintStatus) repository.StatusChange {
	return repository.StatusChange{Status: status}
}

type triageFixture struct {
	store    *fakeComplaintStore
	evidence *fakeEvidenceStore
	analyzer *stubAnalyzer
	notifier *recordingNotifier
	objects  *fakeObjectStore
	svc      *TriageService
}

func newTriageFixture() *triageFixture {
	f := &triageFixture{
		store:    newFakeComplaintStore(),
		evidence: newFakeEvidenceStore(),
		analyzer: &stubAnalyzer{sentiment: neutralSentiment(), fraud: defaultFraud()},
		notifier: &recordingNotifier{},
		objects:  &fakeObjectStore{},
	}
	f.svc = NewTriageService(f.store, f.evidence, f.analyzer, f.notifier, f.objects)
	return f
}

func validInput() CreateComplaintInput {
	return CreateComplaintInput{
		Category:    "Water Supply",
		Title:       "No water supply", // 15 chars
		Description: "There has been no water supply in our street for the past three days.",
		Address:     "12 Gandhi Road",
		State:       "Karnataka",
		District:    "Bengaluru Urban",
		Pincode:     "560001",
	}
}

func uploadFiles(names ...string) []UploadFile {
	files := make([]UploadFile, 0, len(names))
	for _, name := range names {
		files = append(files, UploadFile{
			Reader:      strings.NewReader("fake image bytes"),
			Name:        name,
			ContentType: "image/jpeg",
			Size:        16,
		})
	}
	return files
}

func TestPriorityFromUrgency(t *testing.T) {
	tests := []struct {
		urgency  float64
		expected models.ComplaintPriority
	}{
		{0.75, models.PriorityUrgent},
		{0.71, models.PriorityUrgent},
		{0.7, models.PriorityHigh},
		{0.55, models.PriorityHigh},
		{0.5, models.PriorityMedium},
		{0.3, models.PriorityMedium},
		{0.29, models.PriorityLow},
		{0.2, models.PriorityLow},
		{0.0, models.PriorityLow},
		{1.0, models.PriorityUrgent},
	}

	for _, test := range tests {
		got := PriorityFromUrgency(test.urgency)
		assert.Equalf(t, test.expected, got, "urgency %.2f", test.urgency)
	}
}

func TestCreateComplaintRoutesAndPrioritizes(t *testing.T) {
	f := newTriageFixture()
	f.analyzer.sentiment = SentimentResult{SentimentScore: -0.4, UrgencyLabel: "high", UrgencyScore: 0.8}

	complaint, evidence, err := f.svc.CreateComplaint(context.Background(), 42, validInput(), nil)
	require.NoError(t, err)

	assert.NotZero(t, complaint.ID)
	assert.NotEmpty(t, complaint.ReferenceNumber)
	assert.Equal(t, "Water Works Department", complaint.Department)
	assert.Equal(t, models.PriorityUrgent, complaint.Priority)
	assert.Equal(t, models.StatusSubmitted, complaint.Status)
	require.NotNil(t, complaint.SentimentScore)
	assert.InDelta(t, -0.4, *complaint.SentimentScore, 0.001)
	assert.Empty(t, evidence)

	// No audit rows until the first explicit transition.
	history, err := f.svc.StatusHistory(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCreateComplaintNeutralDefaultsYieldMedium(t *testing.T) {
	f := newTriageFixture()
	// The analyzer's fail-open path hands back exactly these values when the
	// scoring service is unreachable.
	f.analyzer.sentiment = neutralSentiment()

	complaint, _, err := f.svc.CreateComplaint(context.Background(), 7, validInput(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.PriorityMedium, complaint.Priority)
	require.NotNil(t, complaint.SentimentScore)
	assert.Zero(t, *complaint.SentimentScore)
}

func TestCreateComplaintUnknownCategoryGetsDefaultDepartment(t *testing.T) {
	f := newTriageFixture()
	input := validInput()
	input.Category = "Time Travel Incidents"

	complaint, _, err := f.svc.CreateComplaint(context.Background(), 7, input, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDepartment, complaint.Department)
}

func TestCreateComplaintAssignsUniqueIdentity(t *testing.T) {
	f := newTriageFixture()

	first, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)
	second, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.ReferenceNumber, second.ReferenceNumber)
}

func TestCreateComplaintRejectsBlankInput(t *testing.T) {
	f := newTriageFixture()
	input := validInput()
	input.Title = "   "

	_, _, err := f.svc.CreateComplaint(context.Background(), 1, input, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateComplaintPersistsEvidence(t *testing.T) {
	f := newTriageFixture()

	complaint, evidence, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), uploadFiles("leak.jpg", "street.jpg"))
	require.NoError(t, err)
	require.Len(t, evidence, 2)

	assert.NotEqual(t, evidence[0].FileID, evidence[1].FileID)
	for _, file := range evidence {
		assert.NotEmpty(t, file.ObjectKey)
		assert.NotEmpty(t, file.URL)
	}

	count, err := f.evidence.GetFileCount(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The creation path inserts the document; it never goes through the
	// append upsert.
	assert.Equal(t, 1, f.evidence.createCount())
}

func TestCreateComplaintToleratesEvidenceFailure(t *testing.T) {
	f := newTriageFixture()
	f.objects.putErr = assert.AnError

	complaint, evidence, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), uploadFiles("leak.jpg"))
	require.NoError(t, err)

	// The record exists; the evidence simply did not make it. A later
	// UploadEvidence call can repair this.
	assert.NotZero(t, complaint.ID)
	assert.Empty(t, evidence)

	f.objects.putErr = nil
	repaired, err := f.svc.UploadEvidence(context.Background(), complaint.ID, uploadFiles("leak.jpg"))
	require.NoError(t, err)
	assert.Len(t, repaired, 1)

	// The repair goes through the upsert, which rebuilds the lost document.
	assert.Equal(t, 0, f.evidence.createCount())
	count, err := f.evidence.GetFileCount(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUploadEvidenceAppendsWithoutDisturbingExisting(t *testing.T) {
	f := newTriageFixture()
	complaint, initial, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), uploadFiles("first.jpg"))
	require.NoError(t, err)
	require.Len(t, initial, 1)

	added, err := f.svc.UploadEvidence(context.Background(), complaint.ID, uploadFiles("second.jpg"))
	require.NoError(t, err)
	require.Len(t, added, 1)

	detail, err := f.svc.GetComplaintByID(context.Background(), complaint.ID)
	require.NoError(t, err)
	require.Len(t, detail.Evidence, 2)
	assert.Equal(t, initial[0].FileID, detail.Evidence[0].FileID)

	// Only the creation upload inserts; the later one appends.
	assert.Equal(t, 1, f.evidence.createCount())
}

func TestGetComplaintToleratesMissingEvidence(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	detail, err := f.svc.GetComplaintByID(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.NotNil(t, detail.Evidence)
	assert.Empty(t, detail.Evidence)
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	_, err = f.svc.SubmitFeedback(context.Background(), complaint.ID, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = f.svc.SubmitFeedback(context.Background(), complaint.ID, 6, nil)
	assert.ErrorIs(t, err, ErrInvalidRating)

	// Nothing was persisted by the rejected calls.
	detail, err := f.svc.GetComplaintByID(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Complaint.Rating)

	feedback := "Fixed quickly"
	updated, err := f.svc.SubmitFeedback(context.Background(), complaint.ID, 4, &feedback)
	require.NoError(t, err)
	require.NotNil(t, updated.Rating)
	assert.Equal(t, 4, *updated.Rating)

	detail, err = f.svc.GetComplaintByID(context.Background(), complaint.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Complaint.Rating)
	assert.Equal(t, 4, *detail.Complaint.Rating)
}

func TestAssignComplaintFirstAssignment(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	actor := uint(99)
	assigned, err := f.svc.AssignComplaint(context.Background(), complaint.ID, 77, &actor)
	require.NoError(t, err)

	assert.Equal(t, models.StatusAssigned, assigned.Status)
	require.NotNil(t, assigned.AssigneeID)
	assert.Equal(t, uint(77), *assigned.AssigneeID)
	require.NotNil(t, assigned.AssignedAt)

	history, err := f.svc.StatusHistory(context.Background(), complaint.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusSubmitted, history[0].PreviousStatus)
	assert.Equal(t, models.StatusAssigned, history[0].NewStatus)
	require.NotNil(t, history[0].ChangedBy)
	assert.Equal(t, actor, *history[0].ChangedBy)
}

func TestAssignComplaintReassignment(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	_, err = f.svc.AssignComplaint(context.Background(), complaint.ID, 77, nil)
	require.NoError(t, err)
	reassigned, err := f.svc.AssignComplaint(context.Background(), complaint.ID, 78, nil)
	require.NoError(t, err)

	require.NotNil(t, reassigned.AssigneeID)
	assert.Equal(t, uint(78), *reassigned.AssigneeID)
	assert.Equal(t, models.StatusAssigned, reassigned.Status)

	// Handing an already-assigned complaint to another officer is not a
	// transition, so no second audit row appears.
	history, err := f.svc.StatusHistory(context.Background(), complaint.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusSubmitted, history[0].PreviousStatus)
}

func TestAssignComplaintRejectsClosed(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), complaint.ID, statusChange(models.StatusClosed))
	require.NoError(t, err)

	_, err = f.svc.AssignComplaint(context.Background(), complaint.ID, 77, nil)
	assert.ErrorIs(t, err, repository.ErrComplaintClosed)
}

func TestGetComplaintResolvesSignedURLs(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), uploadFiles("leak.jpg"))
	require.NoError(t, err)

	detail, err := f.svc.GetComplaintByID(context.Background(), complaint.ID)
	require.NoError(t, err)
	require.Len(t, detail.Evidence, 1)
	assert.Equal(t, "https://signed.local/"+detail.Evidence[0].ObjectKey, detail.Evidence[0].URL)
}

func TestGetComplaintKeepsStoredURLWhenSigningFails(t *testing.T) {
	f := newTriageFixture()
	complaint, initial, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), uploadFiles("leak.jpg"))
	require.NoError(t, err)
	require.Len(t, initial, 1)

	f.objects.signErr = assert.AnError

	detail, err := f.svc.GetComplaintByID(context.Background(), complaint.ID)
	require.NoError(t, err)
	require.Len(t, detail.Evidence, 1)
	assert.Equal(t, initial[0].URL, detail.Evidence[0].URL)
}

func TestEscalateIsIdempotent(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	first, err := f.svc.EscalateComplaint(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.True(t, first.IsEscalated)
	assert.Equal(t, models.PriorityUrgent, first.Priority)

	second, err := f.svc.EscalateComplaint(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.True(t, second.IsEscalated)
	assert.Equal(t, models.PriorityUrgent, second.Priority)
}

func TestReevaluateFraudEscalatesHighRisk(t *testing.T) {
	f := newTriageFixture()
	f.analyzer.fraud = FraudResult{FraudProbability: 0.92, RiskLevel: "HIGH"}
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.reevaluateFraud(context.Background(), complaint, 0))

	detail, err := f.svc.GetComplaintByID(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.True(t, detail.Complaint.IsEscalated)
	assert.Equal(t, models.PriorityUrgent, detail.Complaint.Priority)
}

func TestReevaluateFraudIgnoresLowRisk(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.reevaluateFraud(context.Background(), complaint, 0))

	detail, err := f.svc.GetComplaintByID(context.Background(), complaint.ID)
	require.NoError(t, err)
	assert.False(t, detail.Complaint.IsEscalated)
}

func TestUpdateStatusStampsTimestampsAndAudit(t *testing.T) {
	f := newTriageFixture()
	complaint, _, err := f.svc.CreateComplaint(context.Background(), 1, validInput(), nil)
	require.NoError(t, err)

	resolved, err := f.svc.UpdateStatus(context.Background(), complaint.ID, statusChange(models.StatusResolved))
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	resolvedAt := *resolved.ResolvedAt

	closed, err := f.svc.UpdateStatus(context.Background(), complaint.ID, statusChange(models.StatusClosed))
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	require.NotNil(t, closed.ResolvedAt)
	assert.Equal(t, resolvedAt, *closed.ResolvedAt)

	history, err := f.svc.StatusHistory(context.Background(), complaint.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusSubmitted, history[0].PreviousStatus)
	assert.Equal(t, models.StatusResolved, history[0].NewStatus)
	assert.Equal(t, models.StatusResolved, history[1].PreviousStatus)
	assert.Equal(t, models.StatusClosed, history[1].NewStatus)
}
