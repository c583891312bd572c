package services

import (
	"context"
	"fmt"
	"time"

	"github.com/civicseva/backend/internal/logger"
	"github.com/civicseva/backend/internal/models"
)

const defaultEscalationDays = 7

// EscalationService escalates complaints that have sat in an active state for
// too long. Each sweep works from a bounded snapshot; complaints created after
// the snapshot are picked up on the next run.
type EscalationService struct {
	complaints    ComplaintStore
	notifier      Notifier
	thresholdDays int
}

func NewEscalationService(complaints ComplaintStore, notifier Notifier, thresholdDays int) *EscalationService {
	if thresholdDays <= 0 {
		thresholdDays = defaultEscalationDays
	}
	return &EscalationService{
		complaints:    complaints,
		notifier:      notifier,
		thresholdDays: thresholdDays,
	}
}

// CheckEscalations runs one sweep and returns the number of complaints
// escalated. One failing escalation never aborts the rest of the batch.
func (es *EscalationService) CheckEscalations(ctx context.Context) (int, error) {
	candidates, err := es.complaints.GetEligibleForEscalation(ctx, es.thresholdDays)
	if err != nil {
		return 0, fmt.Errorf("escalation sweep failed: %w", err)
	}

	escalated := 0
	for i := range candidates {
		c := &candidates[i]
		updated, err := es.complaints.Escalate(ctx, c.ID)
		if err != nil {
			logger.WithComplaint(c.ID, c.ReferenceNumber).Error("Failed to escalate stale complaint: ", err)
			continue
		}
		escalated++

		if err := es.notifier.NotifyAuthority(ctx, newComplaintEvent(models.NotifyEscalated, updated,
			fmt.Sprintf("Complaint %s escalated after %d days without resolution", updated.ReferenceNumber, es.thresholdDays))); err != nil {
			logger.WithComplaint(c.ID, c.ReferenceNumber).Warn("Escalation notification failed: ", err)
		}
	}

	if len(candidates) > 0 {
		logger.Info("Escalation sweep completed", map[string]interface{}{
			"candidates": len(candidates),
			"escalated":  escalated,
		})
	}
	return escalated, nil
}

// Start runs periodic sweeps until stopChan closes. An external scheduler can
// call CheckEscalations directly instead; this runner is for single-process
// deployments.
func (es *EscalationService) Start(stopChan <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopChan:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if _, err := es.CheckEscalations(ctx); err != nil {
					logger.Error("Scheduled escalation sweep failed", map[string]interface{}{
						"error": err.Error(),
					})
				}
				cancel()
			}
		}
	}()
}
