package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/civicseva/backend/internal/models"
	"github.com/civicseva/backend/internal/repository"
	"github.com/civicseva/backend/internal/services"
	"github.com/gin-gonic/gin"
)

type ComplaintController struct {
	triage     *services.TriageService
	escalation *services.EscalationService
}

func NewComplaintController(triage *services.TriageService, escalation *services.EscalationService) *ComplaintController {
	return &ComplaintController{
		triage:     triage,
		escalation: escalation,
	}
}

type createComplaintForm struct {
	Category    string   `form:"category" binding:"required"`
	SubCategory string   `form:"subCategory"`
	Title       string   `form:"title" binding:"required,min=10"`
	Description string   `form:"description" binding:"required,min=30"`
	Latitude    *float64 `form:"latitude"`
	Longitude   *float64 `form:"longitude"`
	Address     string   `form:"address"`
	State       string   `form:"state"`
	District    string   `form:"district"`
	Pincode     string   `form:"pincode"`
	Tags        []string `form:"tags"`
}

// CreateComplaint files a new complaint, optionally with evidence files in
// the same multipart request.
func (cc *ComplaintController) CreateComplaint(c *gin.Context) {
	citizenID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var form createComplaintForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.IsKnownCategory(form.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown complaint category"})
		return
	}

	input := services.CreateComplaintInput{
		Category:    form.Category,
		Title:       form.Title,
		Description: form.Description,
		Latitude:    form.Latitude,
		Longitude:   form.Longitude,
		Address:     form.Address,
		State:       form.State,
		District:    form.District,
		Pincode:     form.Pincode,
		Tags:        form.Tags,
	}
	if form.SubCategory != "" {
		input.SubCategory = &form.SubCategory
	}

	files, closers, err := cc.openUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer closers()

	complaint, evidence, err := cc.triage.CreateComplaint(c.Request.Context(), citizenID.(uint), input, files)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create complaint"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Complaint registered successfully",
		"complaint": complaint,
		"evidence":  evidence,
	})
}

// GetComplaint returns one complaint with its evidence descriptors.
func (cc *ComplaintController) GetComplaint(c *gin.Context) {
	id, ok := cc.complaintID(c)
	if !ok {
		return
	}

	detail, err := cc.triage.GetComplaintByID(c.Request.Context(), id)
	if err != nil {
		cc.respondError(c, err, "Failed to fetch complaint")
		return
	}
	c.JSON(http.StatusOK, detail)
}

// SearchComplaints returns a filtered, paginated page. Citizens only ever see
// their own complaints regardless of the filters they send.
func (cc *ComplaintController) SearchComplaints(c *gin.Context) {
	filters := repository.SearchFilters{
		State:    c.Query("state"),
		District: c.Query("district"),
		Pincode:  c.Query("pincode"),
		Query:    c.Query("q"),
		SortBy:   c.Query("sortBy"),
		Order:    c.Query("order"),
	}
	filters.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))

	for _, s := range splitParam(c.Query("status")) {
		filters.Statuses = append(filters.Statuses, models.ComplaintStatus(s))
	}
	filters.Categories = splitParam(c.Query("category"))
	for _, p := range splitParam(c.Query("priority")) {
		filters.Priorities = append(filters.Priorities, models.ComplaintPriority(p))
	}
	if v := c.Query("escalated"); v != "" {
		escalated := v == "true"
		filters.IsEscalated = &escalated
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = &t
		}
	}
	if v := c.Query("assigneeId"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			assignee := uint(id)
			filters.AssigneeID = &assignee
		}
	}

	role, _ := c.Get("user_role")
	if role == string(models.RoleCitizen) {
		userID, _ := c.Get("user_id")
		citizenID := userID.(uint)
		filters.CitizenID = &citizenID
	} else if v := c.Query("citizenId"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			citizenID := uint(id)
			filters.CitizenID = &citizenID
		}
	}

	details, total, err := cc.triage.SearchComplaints(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search complaints"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"complaints": details,
		"pagination": gin.H{
			"page":  filters.Page,
			"limit": filters.Limit,
			"total": total,
		},
	})
}

type updateStatusRequest struct {
	Status                  models.ComplaintStatus `json:"status" binding:"required"`
	Notes                   *string                `json:"notes"`
	EstimatedResolutionDays *int                   `json:"estimatedResolutionDays"`
	Comment                 *string                `json:"comment"`
}

var validStatuses = map[models.ComplaintStatus]bool{
	models.StatusSubmitted:  true,
	models.StatusAssigned:   true,
	models.StatusInProgress: true,
	models.StatusResolved:   true,
	models.StatusRejected:   true,
	models.StatusClosed:     true,
}

// UpdateStatus applies a status transition.
func (cc *ComplaintController) UpdateStatus(c *gin.Context) {
	id, ok := cc.complaintID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
		return
	}

	change := repository.StatusChange{
		Status:                  req.Status,
		Notes:                   req.Notes,
		EstimatedResolutionDays: req.EstimatedResolutionDays,
		Comment:                 req.Comment,
		ChangedBy:               cc.actor(c),
	}

	updated, err := cc.triage.UpdateStatus(c.Request.Context(), id, change)
	if err != nil {
		cc.respondError(c, err, "Failed to update status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaint": updated})
}

type assignRequest struct {
	OfficerID uint `json:"officerId" binding:"required"`
}

// AssignComplaint sets the handling officer.
func (cc *ComplaintController) AssignComplaint(c *gin.Context) {
	id, ok := cc.complaintID(c)
	if !ok {
		return
	}

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := cc.triage.AssignComplaint(c.Request.Context(), id, req.OfficerID, cc.actor(c))
	if err != nil {
		if errors.Is(err, repository.ErrComplaintClosed) {
			c.JSON(http.StatusConflict, gin.H{"error": "Complaint is closed"})
			return
		}
		cc.respondError(c, err, "Failed to assign complaint")
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaint": updated})
}

// EscalateComplaint flags a complaint urgent. Safe to call repeatedly.
func (cc *ComplaintController) EscalateComplaint(c *gin.Context) {
	id, ok := cc.complaintID(c)
	if !ok {
		return
	}

	updated, err := cc.triage.EscalateComplaint(c.Request.Context(), id)
	if err != nil {
		cc.respondError(c, err, "Failed to escalate complaint")
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaint": updated})
}

type feedbackRequest struct {
	Rating   int     `json:"rating" binding:"required"`
	Feedback *string `json:"feedback"`
}

// SubmitFeedback records a citizen rating for a handled complaint.
func (cc *ComplaintController) SubmitFeedback(c *gin.Context) {
	id, ok := cc.complaintID(c)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := cc.triage.SubmitFeedback(c.Request.Context(), id, req.Rating, req.Feedback)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRating) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cc.respondError(c, err, "Failed to submit feedback")
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaint": updated})
}

// UploadEvidence appends files to an existing complaint.
func (cc *ComplaintController) UploadEvidence(c *gin.Context) {
	id, ok := cc.complaintID(c)
	if !ok {
		return
	}

	files, closers, err := cc.openUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer closers()

	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded"})
		return
	}

	evidence, err := cc.triage.UploadEvidence(c.Request.Context(), id, files)
	if err != nil {
		cc.respondError(c, err, "Failed to upload evidence")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"evidence": evidence})
}

// DeleteEvidenceFile removes one evidence descriptor.
func (cc *ComplaintController) DeleteEvidenceFile(c *gin.Context) {
	id, ok := cc.complaintID(c)
	if !ok {
		return
	}
	fileID := c.Param("fileId")

	if err := cc.triage.DeleteEvidenceFile(c.Request.Context(), id, fileID); err != nil {
		if errors.Is(err, repository.ErrEvidenceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Evidence not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete evidence file"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetStatusHistory returns the audit trail of a complaint.
func (cc *ComplaintController) GetStatusHistory(c *gin.Context) {
	id, ok := cc.complaintID(c)
	if !ok {
		return
	}

	history, err := cc.triage.StatusHistory(c.Request.Context(), id)
	if err != nil {
		cc.respondError(c, err, "Failed to fetch status history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// GetStatistics returns aggregate complaint counts.
func (cc *ComplaintController) GetStatistics(c *gin.Context) {
	filters := repository.StatsFilters{
		Department: c.Query("department"),
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = &t
		}
	}

	stats, err := cc.triage.GetStatistics(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CheckEscalations runs one escalation sweep. Intended for an external
// scheduler; also runs periodically in-process.
func (cc *ComplaintController) CheckEscalations(c *gin.Context) {
	escalated, err := cc.escalation.CheckEscalations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Escalation sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"escalated": escalated})
}

// GetCategories lists the known complaint categories.
func (cc *ComplaintController) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": models.Categories()})
}

func (cc *ComplaintController) complaintID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid complaint ID"})
		return 0, false
	}
	return uint(id), true
}

func (cc *ComplaintController) actor(c *gin.Context) *uint {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(uint); ok {
			return &id
		}
	}
	return nil
}

func (cc *ComplaintController) respondError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, repository.ErrComplaintNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Complaint not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

// openUploads opens every multipart file under the "files" field. The caller
// must invoke the returned closer after the service call.
func (cc *ComplaintController) openUploads(c *gin.Context) ([]services.UploadFile, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		// Requests without multipart bodies simply carry no files.
		return nil, func() {}, nil
	}

	headers := form.File["files"]
	files := make([]services.UploadFile, 0, len(headers))
	opened := make([]interface{ Close() error }, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, f)
		files = append(files, services.UploadFile{
			Reader:      f,
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
		})
	}
	return files, closeAll, nil
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
