package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/internal/generator"
	"contentpay/backend/internal/ledger"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/orchestrator"
	"contentpay/backend/internal/registry"
	"contentpay/backend/internal/repository"
	"contentpay/backend/pkg/models"
)

func newService(t *testing.T, g generator.Generator) *Service {
	t.Helper()
	logger := logging.Nop()
	if g == nil {
		g = generator.NewMockGenerator(0, 0, logger)
	}
	s, err := New(
		orchestrator.New(logger),
		ledger.New(repository.NewMemoryLedgerStore(), logger),
		registry.New(repository.NewMemoryContentStore(), logger),
		g,
		time.Second,
		logger,
	)
	require.NoError(t, err)
	return s
}

type blockingGenerator struct{ generator.Generator }

func (blockingGenerator) Generate(ctx context.Context, _, _, _ string) (*models.Artifact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerate_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.Ledger().InitializeBalance(ctx, "u", 5000))

	job, err := s.Generate(ctx, models.GenerateRequest{Prompt: "a haiku", ContentType: "text-generation", UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, []string{StepValidate, StepPayment, StepGenerate, StepRegister}, job.Results.Names())

	balance, err := s.Ledger().GetBalance(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "49.95", balance.String())

	registered, ok := job.Results.Get(StepRegister)
	require.True(t, ok)
	require.NotNil(t, registered.ContentRecord)
	assert.Equal(t, "u", registered.ContentRecord.Owner)
	assert.Equal(t, "gpt-4", registered.ContentRecord.Model)

	payment, _ := job.Results.Get(StepPayment)
	assert.Equal(t, payment.Transaction.ID, registered.ContentRecord.PaymentTransaction)

	details, err := s.Registry().GetContentDetails(ctx, registered.ContentRecord.ID)
	require.NoError(t, err)
	assert.Equal(t, "high", details.Metadata["quality"])
	assert.Len(t, details.OwnershipHistory, 1)

	stats, _, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalContent)

	dash, err := s.Dashboard(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, dash.Stats.TotalContent)
	assert.Equal(t, models.Money(5), dash.Stats.TotalSpent)
	assert.Equal(t, models.Money(4995), dash.Balance)
	assert.Len(t, dash.OwnedContent, 1)
	assert.Len(t, dash.TransactionHistory, 1)
}

func TestGenerate_ValidationFailure(t *testing.T) {
	s := newService(t, nil)

	job, err := s.Generate(context.Background(), models.GenerateRequest{ContentType: "text-generation", UserID: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.EqualError(t, err, "Missing required fields: prompt, contentType, userId")
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.Results.Len())
}

func TestGenerate_InsufficientBalanceStopsBeforeGeneration(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.Ledger().InitializeBalance(ctx, "u", 10))

	job, err := s.Generate(ctx, models.GenerateRequest{Prompt: "p", ContentType: "image-generation", UserID: "u"})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	assert.Equal(t, []string{StepValidate}, job.Results.Names())

	stats, _, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalContent)
}

func TestGenerate_GenerationFailureKeepsCharge(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.Ledger().InitializeBalance(ctx, "u", 5000))

	job, err := s.Generate(ctx, models.GenerateRequest{Prompt: "p", ContentType: "video-generation", UserID: "u", Model: "gpt-4"})
	assert.ErrorIs(t, err, apperrors.ErrModelCapabilityMismatch)
	assert.Equal(t, models.JobStatusFailed, job.Status)

	balance, err := s.Ledger().GetBalance(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, models.Money(4900), balance)

	owned, err := s.Registry().GetOwnedContent(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestGenerate_GenerationTimeout(t *testing.T) {
	ctx := context.Background()
	s := newService(t, blockingGenerator{})
	s.genTimeout = 10 * time.Millisecond
	require.NoError(t, s.Ledger().InitializeBalance(ctx, "u", 100))

	job, err := s.Generate(ctx, models.GenerateRequest{Prompt: "p", ContentType: "text-generation", UserID: "u"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestJob(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.Ledger().InitializeBalance(ctx, "u", 100))

	job, err := s.Generate(ctx, models.GenerateRequest{Prompt: "p", ContentType: "text-generation", UserID: "u"})
	require.NoError(t, err)

	got, err := s.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = s.Job("x402_missing")
	assert.ErrorIs(t, err, apperrors.ErrJobNotFound)
}

func TestRatesAndStats(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)

	rates, list, err := s.Rates(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Money(25), rates["image-generation"])
	assert.NotEmpty(t, list)

	_, workflows, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ContentWorkflow}, workflows)
}

func TestDashboard_UnknownUser(t *testing.T) {
	s := newService(t, nil)

	dash, err := s.Dashboard(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, dash.Balance)
	assert.Empty(t, dash.OwnedContent)
	assert.Zero(t, dash.Stats.TotalContent)
}
