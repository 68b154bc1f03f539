package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/types"
)

// Client is the narrow interface the call session needs at teardown.
type Client interface {
	// ProcessConversation hands the finished call to the cognitive
	// pipeline for analysis and persistence. Called at most once per call.
	ProcessConversation(ctx context.Context, req ProcessRequest) (*ProcessResult, error)
}

// ProcessRequest is the end-of-call payload.
type ProcessRequest struct {
	PatientID  string                  `json:"patient_id"`
	CallSID    string                  `json:"call_sid"`
	Transcript []types.TranscriptEntry `json:"transcript"`
	DurationS  float64                 `json:"duration_seconds"`
	Summary    string                  `json:"summary,omitempty"`
	Mood       string                  `json:"mood,omitempty"`
	Topics     []string                `json:"topics,omitempty"`
}

// ProcessResult is the pipeline's acknowledgement.
type ProcessResult struct {
	Success        bool     `json:"success"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Alerts         []string `json:"alerts,omitempty"`
	Digest         string   `json:"digest,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// PatientContext is the profile snapshot injected into agent conversations.
type PatientContext struct {
	PatientID   string   `json:"patient_id"`
	Name        string   `json:"name,omitempty"`
	Interests   []string `json:"interests,omitempty"`
	Medications []string `json:"medications,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// SearchResult is one hit from the nostalgia or realtime content search.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
}

// Config configures the HTTP client.
type Config struct {
	// BaseURL is the pipeline service root, e.g. "http://pipeline:9000".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey is sent as a bearer token on every request.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout bounds each request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// HTTPClient talks to the cognitive pipeline service over HTTP. It also
// backs the collaborators behind the agent-facing function surface.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates a pipeline client.
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "pipeline_client")),
	}
}

// ProcessConversation implements Client.
func (c *HTTPClient) ProcessConversation(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	var result ProcessResult
	if err := c.post(ctx, "/v1/conversations/process", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPatientContext fetches the patient profile used for context injection
// and the get_patient_context function.
func (c *HTTPClient) GetPatientContext(ctx context.Context, patientID string) (*PatientContext, error) {
	var pc PatientContext
	if err := c.post(ctx, "/v1/patients/context", map[string]string{"patient_id": patientID}, &pc); err != nil {
		return nil, err
	}
	return &pc, nil
}

// SearchNostalgia retrieves era-appropriate reminiscence content.
func (c *HTTPClient) SearchNostalgia(ctx context.Context, patientID, query string) ([]SearchResult, error) {
	return c.search(ctx, "/v1/content/nostalgia", patientID, query)
}

// SearchRealtime retrieves current information (news, weather, facts).
func (c *HTTPClient) SearchRealtime(ctx context.Context, patientID, query string) ([]SearchResult, error) {
	return c.search(ctx, "/v1/content/realtime", patientID, query)
}

// LogMedicationCheck records a medication check-in mentioned on the call.
func (c *HTTPClient) LogMedicationCheck(ctx context.Context, patientID, medication, status string) error {
	return c.post(ctx, "/v1/medications/log", map[string]string{
		"patient_id": patientID,
		"medication": medication,
		"status":     status,
	}, nil)
}

// TriggerAlert raises a caregiver alert.
func (c *HTTPClient) TriggerAlert(ctx context.Context, patientID, severity, reason string) error {
	return c.post(ctx, "/v1/alerts/trigger", map[string]string{
		"patient_id": patientID,
		"severity":   severity,
		"reason":     reason,
	}, nil)
}

// Ping checks that the pipeline service is reachable. Used by the
// readiness probe.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build pipeline health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pipeline health: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) search(ctx context.Context, path, patientID, query string) ([]SearchResult, error) {
	var out struct {
		Results []SearchResult `json:"results"`
	}
	err := c.post(ctx, path, map[string]string{"patient_id": patientID, "query": query}, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal pipeline request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build pipeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pipeline request %s: status %d: %s", path, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode pipeline response %s: %w", path, err)
	}
	return nil
}
