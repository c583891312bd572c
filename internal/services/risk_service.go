package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/civicseva/backend/internal/logger"
)

// RiskService is the client for the external risk and sentiment scoring
// service. Both operations are fail-open: any transport, timeout or decode
// failure maps to one fixed safe default instead of an error, so complaint
// intake never depends on this service being up. Callers must treat both
// outputs as advisory signals only.
type RiskService struct {
	baseURL string
	client  *http.Client
}

type SentimentResult struct {
	SentimentScore float64 `json:"sentimentScore"`
	UrgencyLabel   string  `json:"urgencyLabel"`
	UrgencyScore   float64 `json:"urgencyScore"`
}

type FraudInput struct {
	CitizenID     uint   `json:"citizenId"`
	Description   string `json:"description"`
	EvidenceCount int    `json:"evidenceCount"`
	Category      string `json:"category"`
	Location      string `json:"location"`
}

type FraudResult struct {
	FraudProbability float64 `json:"fraudProbability"`
	RiskLevel        string  `json:"riskLevel"`
}

func NewRiskService(baseURL string) *RiskService {
	if baseURL == "" {
		baseURL = "http://localhost:9090"
	}

	// Short bounded timeout so the synchronous creation path has a
	// predictable latency ceiling when the service is degraded.
	timeout := 5 * time.Second
	if timeoutStr := os.Getenv("RISK_TIMEOUT_SECONDS"); timeoutStr != "" {
		if secs, err := strconv.Atoi(timeoutStr); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		} else {
			logger.WithRisk("config").Warn("Invalid RISK_TIMEOUT_SECONDS, keeping default: ", timeoutStr)
		}
	}

	return &RiskService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func neutralSentiment() SentimentResult {
	return SentimentResult{SentimentScore: 0, UrgencyLabel: "medium", UrgencyScore: 0.5}
}

func defaultFraud() FraudResult {
	// Low and non-actionable so a scoring outage never causes a false
	// escalation.
	return FraudResult{FraudProbability: 0.1, RiskLevel: "LOW"}
}

// AnalyzeSentiment scores free text for sentiment and urgency. Never fails:
// degraded service means a neutral default.
func (rs *RiskService) AnalyzeSentiment(ctx context.Context, text string) SentimentResult {
	var result SentimentResult
	payload := map[string]string{"text": text}
	if err := rs.post(ctx, "/api/v1/analyze/sentiment", payload, &result); err != nil {
		logger.WithRisk("sentiment").Warn("Sentiment analysis unavailable, using neutral default: ", err)
		return neutralSentiment()
	}
	result.SentimentScore = clamp(result.SentimentScore, -1, 1)
	result.UrgencyScore = clamp(result.UrgencyScore, 0, 1)
	return result
}

// AnalyzeFraud scores a persisted complaint for fraud risk. Never fails:
// degraded service means a low-risk default.
func (rs *RiskService) AnalyzeFraud(ctx context.Context, in FraudInput) FraudResult {
	var result FraudResult
	if err := rs.post(ctx, "/api/v1/analyze/fraud", in, &result); err != nil {
		logger.WithRisk("fraud").Warn("Fraud analysis unavailable, using low-risk default: ", err)
		return defaultFraud()
	}
	result.FraudProbability = clamp(result.FraudProbability, 0, 1)
	result.RiskLevel = strings.ToUpper(strings.TrimSpace(result.RiskLevel))
	if result.RiskLevel == "" {
		result.RiskLevel = "LOW"
	}
	return result
}

func (rs *RiskService) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rs.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rs.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
