package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/echogram/api/internal/config"
)

// JSONChatter defines the JSON-mode chat completion operations the pipeline
// needs from a language model provider.
type JSONChatter interface {
	ChatJSON(ctx context.Context, req *ChatJSONRequest) (string, error)
	ChatJSONImage(ctx context.Context, req *ChatJSONRequest, image []byte, contentType string) (string, error)
}

// ImageEditor defines the image-edit operation used by the morph branch.
type ImageEditor interface {
	EditImage(ctx context.Context, imagePNG []byte, prompt string) ([]byte, error)
}

// ChatJSONRequest describes one JSON-mode chat completion call.
type ChatJSONRequest struct {
	Model       string
	System      string
	User        string // JSON-encoded user payload; ignored for image calls
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIClient implements JSONChatter and ImageEditor against the OpenAI API.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// Default models; callers pick per request via ChatJSONRequest.Model.
	Model      string
	FastModel  string
	ImageModel string
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type imagePart struct {
	Type     string `json:"type"`
	ImageURL struct {
		URL    string `json:"url"`
		Detail string `json:"detail"`
	} `json:"image_url"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI API client.
func NewOpenAIClient(cfg *config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		Model:      cfg.Model,
		FastModel:  cfg.FastModel,
		ImageModel: cfg.ImageModel,
	}
}

// ChatJSON sends a JSON-mode chat completion and returns the raw JSON text of
// the first choice.
func (c *OpenAIClient) ChatJSON(ctx context.Context, req *ChatJSONRequest) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	}
	return c.complete(ctx, req, messages)
}

// ChatJSONImage sends a JSON-mode chat completion whose user content is a
// single inline image.
func (c *OpenAIClient) ChatJSONImage(ctx context.Context, req *ChatJSONRequest, image []byte, contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
	default:
		contentType = "image/jpeg"
	}

	var part imagePart
	part.Type = "image_url"
	part.ImageURL.URL = fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))
	part.ImageURL.Detail = "auto"

	messages := []chatMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: []imagePart{part}},
	}
	return c.complete(ctx, req, messages)
}

func (c *OpenAIClient) complete(ctx context.Context, req *ChatJSONRequest, messages []chatMessage) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	body.ResponseFormat.Type = "json_object"

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[OpenAI] → POST /chat/completions (model=%s)", req.Model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// EditImage sends a PNG through the image-edit endpoint and returns the
// edited image bytes.
func (c *OpenAIClient) EditImage(ctx context.Context, imagePNG []byte, prompt string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := fw.Write(imagePNG); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	_ = mw.WriteField("model", c.ImageModel)
	_ = mw.WriteField("prompt", prompt)
	_ = mw.WriteField("size", "auto")
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[OpenAI] → POST /images/edits (model=%s, %d bytes)", c.ImageModel, len(imagePNG))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var editResp struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &editResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(editResp.Data) == 0 {
		return nil, fmt.Errorf("empty data array in image edit response")
	}

	entry := editResp.Data[0]
	if entry.B64JSON != "" {
		morphed, err := base64.StdEncoding.DecodeString(entry.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data: %w", err)
		}
		return morphed, nil
	}

	// Some image models return a URL instead of inline data.
	if entry.URL != "" {
		return c.fetch(ctx, entry.URL)
	}

	return nil, fmt.Errorf("no image data in response")
}

func (c *OpenAIClient) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch error (status %d)", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// IsConfigured returns true if the client has valid configuration.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}
