package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/internal/logging"
	"contentpay/backend/pkg/models"
)

var builtinModels = map[string]models.ModelInfo{
	"gpt-4":        {Name: "gpt-4", Type: "text", Capabilities: []string{"text-generation"}},
	"dall-e-3":     {Name: "dall-e-3", Type: "image", Capabilities: []string{"image-generation"}},
	"whisper":      {Name: "whisper", Type: "audio", Capabilities: []string{"audio-generation"}},
	"stable-video": {Name: "stable-video", Type: "video", Capabilities: []string{"video-generation"}},
}

var defaultModels = map[string]string{
	"text-generation":  "gpt-4",
	"image-generation": "dall-e-3",
	"audio-generation": "whisper",
	"video-generation": "stable-video",
}

const fallbackModel = "gpt-4"

// DefaultModel returns the model used when a request does not name one.
func DefaultModel(contentType string) string {
	if m, ok := defaultModels[contentType]; ok {
		return m
	}
	return fallbackModel
}

// MockGenerator fabricates plausible artifacts after a simulated delay.
type MockGenerator struct {
	minLatency time.Duration
	maxLatency time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

// NewMockGenerator creates a MockGenerator that sleeps between minLatency and
// maxLatency per request.
func NewMockGenerator(minLatency, maxLatency time.Duration, logger *logging.Logger) *MockGenerator {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &MockGenerator{
		minLatency: minLatency,
		maxLatency: maxLatency,
		logger:     logger.With("component", "generator"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Models lists the built-in models sorted by name.
func (g *MockGenerator) Models(context.Context) ([]models.ModelInfo, error) {
	out := make([]models.ModelInfo, 0, len(builtinModels))
	for _, m := range builtinModels {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Generate validates the model and returns a mock artifact.
func (g *MockGenerator) Generate(ctx context.Context, contentType, prompt, model string) (*models.Artifact, error) {
	selected := model
	if selected == "" {
		selected = DefaultModel(contentType)
	}
	info, ok := builtinModels[selected]
	if !ok {
		return nil, apperrors.New(apperrors.ErrUnknownModel, "Unknown AI model: %s", selected)
	}
	if !info.Supports(contentType) {
		return nil, apperrors.New(apperrors.ErrModelCapabilityMismatch, "Model %s cannot generate %s", selected, contentType)
	}

	g.logger.Debug("Generating content", "content_type", contentType, "model", selected)

	delay := g.latency()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("generation cancelled: %w", ctx.Err())
	case <-timer.C:
	}

	content, err := json.Marshal(mockContent(contentType, prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}

	artifact := &models.Artifact{
		ContentID:   newContentID(),
		ContentType: contentType,
		Model:       selected,
		Prompt:      prompt,
		GeneratedAt: g.now(),
		Content:     content,
		Metadata: map[string]string{
			"processingTime": strconv.FormatInt(delay.Milliseconds(), 10),
			"modelVersion":   "1.0.0",
			"quality":        "high",
		},
	}
	g.logger.Info("Content generated", "content_id", artifact.ContentID, "model", selected)
	return artifact, nil
}

func (g *MockGenerator) latency() time.Duration {
	spread := g.maxLatency - g.minLatency
	if spread <= 0 {
		return g.minLatency
	}
	return g.minLatency + rand.N(spread)
}

func newContentID() string {
	return "content_" + uuid.NewString()
}

type mediaContent struct {
	URL         string      `json:"url"`
	Description string      `json:"description"`
	Dimensions  *dimensions `json:"dimensions,omitempty"`
	Duration    int         `json:"duration,omitempty"`
	Resolution  string      `json:"resolution,omitempty"`
	Format      string      `json:"format"`
}

type dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func mockContent(contentType, prompt string) any {
	switch contentType {
	case "text-generation":
		return fmt.Sprintf("Generated text based on prompt: %q. This is a mock AI-generated text content that would normally be much longer and more sophisticated.", prompt)
	case "image-generation":
		return mediaContent{
			URL:         "https://mockimage.example.com/" + newContentID() + ".jpg",
			Description: "AI-generated image: " + prompt,
			Dimensions:  &dimensions{Width: 1024, Height: 1024},
			Format:      "jpg",
		}
	case "audio-generation":
		return mediaContent{
			URL:         "https://mockaudio.example.com/" + newContentID() + ".mp3",
			Description: "AI-generated audio: " + prompt,
			Duration:    30 + rand.IntN(120),
			Format:      "mp3",
		}
	case "video-generation":
		return mediaContent{
			URL:         "https://mockvideo.example.com/" + newContentID() + ".mp4",
			Description: "AI-generated video: " + prompt,
			Duration:    10 + rand.IntN(50),
			Resolution:  "1920x1080",
			Format:      "mp4",
		}
	default:
		return "Mock content for " + contentType
	}
}
