package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/pkg/models"
)

// Error codes a generation sidecar may return alongside a 4xx status.
const (
	codeUnknownModel       = "UNKNOWN_MODEL"
	codeCapabilityMismatch = "MODEL_CAPABILITY_MISMATCH"
)

// HTTPGenerator is an HTTP implementation of the Generator interface that
// delegates to a generation sidecar.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

// NewHTTPGenerator creates a new HTTPGenerator. A nil client uses http.DefaultClient.
func NewHTTPGenerator(url string, client *http.Client) *HTTPGenerator {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGenerator{url: strings.TrimRight(url, "/"), client: client}
}

type generateRequest struct {
	ContentType string `json:"contentType"`
	Prompt      string `json:"prompt"`
	Model       string `json:"model,omitempty"`
}

type sidecarError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Generate asks the sidecar for an artifact.
func (c *HTTPGenerator) Generate(ctx context.Context, contentType, prompt, model string) (*models.Artifact, error) {
	requestBody, err := json.Marshal(generateRequest{ContentType: contentType, Prompt: prompt, Model: model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeSidecarError(resp)
	}

	var artifact models.Artifact
	if err := json.NewDecoder(resp.Body).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	if artifact.ContentID == "" {
		return nil, fmt.Errorf("generation sidecar returned an artifact without contentId")
	}
	return &artifact, nil
}

// Models fetches the model list from the sidecar.
func (c *HTTPGenerator) Models(ctx context.Context) ([]models.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list models: status code %d", resp.StatusCode)
	}

	var out []models.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return out, nil
}

func decodeSidecarError(resp *http.Response) error {
	var body sidecarError
	_ = json.NewDecoder(resp.Body).Decode(&body)
	switch body.Code {
	case codeUnknownModel:
		return apperrors.New(apperrors.ErrUnknownModel, "%s", body.Error)
	case codeCapabilityMismatch:
		return apperrors.New(apperrors.ErrModelCapabilityMismatch, "%s", body.Error)
	}
	if body.Error != "" {
		return fmt.Errorf("failed to generate content: status code %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("failed to generate content: status code %d", resp.StatusCode)
}
