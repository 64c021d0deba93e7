package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/echogram/api/internal/config"
)

// MusicGenerator defines the two-step music generation interface: first a
// composition plan is drafted from the prompt, then the plan is rendered to
// audio. Keeping the steps separate lets the pipeline record the plan before
// committing to the long render call.
type MusicGenerator interface {
	PlanComposition(ctx context.Context, req *PlanRequest) (*CompositionPlan, error)
	RenderComposition(ctx context.Context, plan *CompositionPlan) ([]byte, error)
}

// PlanRequest describes one composition plan request.
type PlanRequest struct {
	Prompt          string
	DurationSeconds int
}

// CompositionPlan is the provider's plan for a track. The plan body is kept
// opaque; it is echoed back verbatim on render and written to the pipeline
// trace, never interpreted.
type CompositionPlan struct {
	Raw json.RawMessage
}

// ElevenLabsClient implements MusicGenerator for the ElevenLabs Music API.
type ElevenLabsClient struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	modelID         string
	promptInfluence float64
	planTimeout     time.Duration
	renderTimeout   time.Duration
}

// NewElevenLabsClient creates a new ElevenLabs API client.
func NewElevenLabsClient(cfg *config.ElevenLabsConfig) *ElevenLabsClient {
	return &ElevenLabsClient{
		httpClient:      &http.Client{},
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		modelID:         cfg.MusicModel,
		promptInfluence: cfg.PromptInfluence,
		planTimeout:     time.Duration(cfg.PlanTimeoutSec) * time.Second,
		renderTimeout:   time.Duration(cfg.RenderTimeoutSec) * time.Second,
	}
}

// PlanComposition asks the provider to draft a composition plan for a prompt.
func (c *ElevenLabsClient) PlanComposition(ctx context.Context, req *PlanRequest) (*CompositionPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, c.planTimeout)
	defer cancel()

	body := map[string]interface{}{
		"prompt":             req.Prompt,
		"music_length_ms":    req.DurationSeconds * 1000,
		"model_id":           c.modelID,
		"prompt_influence":   c.promptInfluence,
		"force_instrumental": true,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/music/plan", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respBody, err := c.doRequest(httpReq)
	if err != nil {
		return nil, err
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("invalid plan response body")
	}
	return &CompositionPlan{Raw: json.RawMessage(respBody)}, nil
}

// RenderComposition renders a previously drafted plan to audio bytes.
func (c *ElevenLabsClient) RenderComposition(ctx context.Context, plan *CompositionPlan) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.renderTimeout)
	defer cancel()

	body := map[string]interface{}{
		"composition_plan": plan.Raw,
		"model_id":         c.modelID,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/music?output_format=mp3_44100_128", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	audio, err := c.doRequest(httpReq)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio in render response")
	}
	return audio, nil
}

// doRequest executes an HTTP request and returns the raw response body.
func (c *ElevenLabsClient) doRequest(req *http.Request) ([]byte, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	log.Printf("[ElevenLabs] → %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[ElevenLabs] ✗ %s %s — request failed: %v", req.Method, req.URL.Path, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[ElevenLabs] ✗ %s %s — failed to read response: %v", req.Method, req.URL.Path, err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[ElevenLabs] ← %d %s %s (%d bytes)", resp.StatusCode, req.Method, req.URL.Path, len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// IsConfigured returns true if the client has valid configuration.
func (c *ElevenLabsClient) IsConfigured() bool {
	return c.apiKey != ""
}
