package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"contentpay/backend/internal/pipeline"
	"contentpay/backend/pkg/models"
)

// GenerateResponse is returned by a successful generation job.
type GenerateResponse struct {
	Success   bool                  `json:"success"`
	JobID     string                `json:"jobId"`
	Results   *models.StepResults   `json:"results"`
	Content   *models.Artifact      `json:"content"`
	Ownership *models.ContentRecord `json:"ownership"`
	Payment   *models.Transaction   `json:"payment"`
}

// RatesResponse lists prices and available models.
type RatesResponse struct {
	Rates  map[string]models.Money `json:"rates"`
	Models []models.ModelInfo      `json:"models"`
}

// StatsResponse reports platform aggregates.
type StatsResponse struct {
	Platform  *models.RegistryStats `json:"platform"`
	Workflows []string              `json:"workflows"`
}

// Generate runs the content generation workflow for the caller.
// (POST /api/generate)
func (s *Server) Generate(c echo.Context) error {
	var req models.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.UserID != "" {
		if err := authorize(c, req.UserID); err != nil {
			return err
		}
	}

	job, err := s.svc.Generate(c.Request().Context(), req)
	if err != nil {
		if job != nil {
			return &jobError{jobID: job.ID, err: err}
		}
		return err
	}

	resp := GenerateResponse{Success: true, JobID: job.ID, Results: job.Results}
	if r, ok := job.Results.Get(pipeline.StepGenerate); ok {
		resp.Content = r.Content
	}
	if r, ok := job.Results.Get(pipeline.StepRegister); ok {
		resp.Ownership = r.ContentRecord
	}
	if r, ok := job.Results.Get(pipeline.StepPayment); ok {
		resp.Payment = r.Transaction
	}
	return c.JSON(http.StatusOK, resp)
}

// GetJob returns a snapshot of a generation job.
// (GET /api/jobs/{jobId})
func (s *Server) GetJob(c echo.Context, jobID string) error {
	job, err := s.svc.Job(jobID)
	if err != nil {
		return err
	}
	if err := authorize(c, job.Payload.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

// GetRates returns the price list and the generator's models.
// (GET /api/rates)
func (s *Server) GetRates(c echo.Context) error {
	rates, list, err := s.svc.Rates(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RatesResponse{Rates: rates, Models: list})
}

// GetStats returns registry aggregates and registered workflows.
// (GET /api/stats)
func (s *Server) GetStats(c echo.Context) error {
	stats, workflows, err := s.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StatsResponse{Platform: stats, Workflows: workflows})
}
