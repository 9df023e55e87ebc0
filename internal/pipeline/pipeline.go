// Package pipeline wires the ledger, the generator and the ownership registry
// into the pay-per-use content generation workflow.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/internal/generator"
	"contentpay/backend/internal/ledger"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/orchestrator"
	"contentpay/backend/internal/registry"
	"contentpay/backend/pkg/models"
)

// Workflow and step names of the content generation workflow.
const (
	ContentWorkflow = "ai-content-generation"

	StepValidate = "validate-request"
	StepPayment  = "process-payment"
	StepGenerate = "generate-content"
	StepRegister = "register-ownership"
)

// Service runs content generation jobs and answers the read side queries
// that combine the ledger and the registry.
type Service struct {
	orchestrator *orchestrator.Orchestrator
	ledger       *ledger.Ledger
	registry     *registry.Registry
	generator    generator.Generator
	genTimeout   time.Duration
	logger       *logging.Logger
}

// New creates a Service and registers the content workflow on o.
func New(o *orchestrator.Orchestrator, l *ledger.Ledger, r *registry.Registry, g generator.Generator, genTimeout time.Duration, logger *logging.Logger) (*Service, error) {
	s := &Service{
		orchestrator: o,
		ledger:       l,
		registry:     r,
		generator:    g,
		genTimeout:   genTimeout,
		logger:       logger.With("component", "pipeline"),
	}
	if err := o.RegisterWorkflow(ContentWorkflow, s.steps()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) steps() []orchestrator.Step {
	return []orchestrator.Step{
		{Name: StepValidate, Run: s.validate},
		{Name: StepPayment, Run: s.pay},
		{Name: StepGenerate, Run: s.generate},
		{Name: StepRegister, Run: s.register},
	}
}

func (s *Service) validate(_ context.Context, p models.GenerateRequest, _ *models.StepResults) (models.StepResult, error) {
	if p.Prompt == "" || p.ContentType == "" || p.UserID == "" {
		return models.StepResult{}, apperrors.New(apperrors.ErrValidation, "Missing required fields: prompt, contentType, userId")
	}
	return models.StepResult{Validation: &models.ValidationResult{Valid: true}}, nil
}

func (s *Service) pay(ctx context.Context, p models.GenerateRequest, _ *models.StepResults) (models.StepResult, error) {
	metadata := map[string]string{"prompt": p.Prompt}
	if p.Model != "" {
		metadata["model"] = p.Model
	}
	tx, err := s.ledger.ProcessPayment(ctx, p.UserID, p.ContentType, metadata)
	if err != nil {
		return models.StepResult{}, err
	}
	return models.StepResult{Transaction: tx}, nil
}

// generate holds no ledger or registry lock while it waits on the backend.
func (s *Service) generate(ctx context.Context, p models.GenerateRequest, _ *models.StepResults) (models.StepResult, error) {
	if s.genTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.genTimeout)
		defer cancel()
	}
	artifact, err := s.generator.Generate(ctx, p.ContentType, p.Prompt, p.Model)
	if err != nil {
		return models.StepResult{}, err
	}
	return models.StepResult{Content: artifact}, nil
}

func (s *Service) register(ctx context.Context, p models.GenerateRequest, results *models.StepResults) (models.StepResult, error) {
	generated, ok := results.Get(StepGenerate)
	if !ok || generated.Content == nil {
		return models.StepResult{}, fmt.Errorf("%s ran without a %s result", StepRegister, StepGenerate)
	}
	payment, ok := results.Get(StepPayment)
	if !ok || payment.Transaction == nil {
		return models.StepResult{}, fmt.Errorf("%s ran without a %s result", StepRegister, StepPayment)
	}

	artifact := generated.Content
	record, err := s.registry.RegisterContent(ctx,
		artifact.ContentID,
		p.UserID,
		p.ContentType,
		artifact.Model,
		p.Prompt,
		payment.Transaction.ID,
	)
	if err != nil {
		return models.StepResult{}, err
	}

	keys := make([]string, 0, len(artifact.Metadata))
	for k := range artifact.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.registry.AddMetadata(ctx, record.ID, k, artifact.Metadata[k]); err != nil {
			return models.StepResult{}, err
		}
	}
	return models.StepResult{ContentRecord: record}, nil
}

// Generate runs the content workflow for req. On failure the failed job
// snapshot is returned alongside the error when a job was started.
func (s *Service) Generate(ctx context.Context, req models.GenerateRequest) (*models.Job, error) {
	return s.orchestrator.ExecuteWorkflow(ctx, ContentWorkflow, req)
}

// Dashboard gathers a user's balance, owned content and transaction history.
func (s *Service) Dashboard(ctx context.Context, userID string) (*models.Dashboard, error) {
	d := &models.Dashboard{UserID: userID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		balance, err := s.ledger.GetBalance(gctx, userID)
		d.Balance = balance
		return err
	})
	g.Go(func() error {
		owned, err := s.registry.GetOwnedContent(gctx, userID)
		d.OwnedContent = owned
		return err
	})
	g.Go(func() error {
		history, err := s.ledger.GetTransactionHistory(gctx, userID)
		d.TransactionHistory = history
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build dashboard: %w", err)
	}

	if d.OwnedContent == nil {
		d.OwnedContent = []*models.ContentRecord{}
	}
	if d.TransactionHistory == nil {
		d.TransactionHistory = []*models.Transaction{}
	}
	d.Stats.TotalContent = len(d.OwnedContent)
	for _, tx := range d.TransactionHistory {
		d.Stats.TotalSpent += tx.Amount
	}
	return d, nil
}

// Rates returns the price list and the models the generator offers.
func (s *Service) Rates(ctx context.Context) (map[string]models.Money, []models.ModelInfo, error) {
	list, err := s.generator.Models(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list models: %w", err)
	}
	return s.ledger.GetServiceRates(), list, nil
}

// Stats returns registry aggregates and the registered workflow names.
func (s *Service) Stats(ctx context.Context) (*models.RegistryStats, []string, error) {
	stats, err := s.registry.GetStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stats, s.orchestrator.ListWorkflows(), nil
}

// Ledger exposes the ledger for direct balance operations.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Registry exposes the ownership registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Job returns a snapshot of a job.
func (s *Service) Job(jobID string) (*models.Job, error) {
	job, ok := s.orchestrator.GetJobStatus(jobID)
	if !ok {
		return nil, apperrors.New(apperrors.ErrJobNotFound, "Job %s not found", jobID)
	}
	return job, nil
}
