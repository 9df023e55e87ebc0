// Package generator produces content artifacts for a prompt.
package generator

import (
	"context"

	"contentpay/backend/pkg/models"
)

// Generator is the content generation backend.
type Generator interface {
	// Generate produces an artifact of contentType for prompt. An empty model
	// selects the default model for the content type.
	Generate(ctx context.Context, contentType, prompt, model string) (*models.Artifact, error)
	// Models lists the models the backend can run.
	Models(ctx context.Context) ([]models.ModelInfo, error)
}
