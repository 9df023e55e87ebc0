// Package orchestrator runs named workflows: ordered lists of steps that share
// a result context and are executed strictly one after another.
//
// A failing step stops its job immediately. Side effects of the steps that
// already ran are not undone, so re-running a workflow repeats them.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/internal/logging"
	"contentpay/backend/pkg/models"
)

const instrumentationName = "contentpay/backend/internal/orchestrator"

// StepFunc performs one unit of work. results holds the outputs of the steps
// that ran before it, keyed by step name; it is a private copy.
type StepFunc func(ctx context.Context, payload models.GenerateRequest, results *models.StepResults) (models.StepResult, error)

// Step is a named StepFunc.
type Step struct {
	Name string
	Run  StepFunc
}

// Orchestrator owns the registered workflows and the job table.
type Orchestrator struct {
	logger *logging.Logger
	tracer trace.Tracer
	jobRun metric.Int64Counter

	mu        sync.RWMutex
	workflows map[string][]Step
	// jobs keeps every job for the life of the process so that any returned
	// job id stays answerable by GetJobStatus.
	jobs map[string]*models.Job

	newID func() string
	now   func() time.Time
}

// New creates an Orchestrator with no workflows.
func New(logger *logging.Logger) *Orchestrator {
	jobRun, err := otel.Meter(instrumentationName).Int64Counter("contentpay.jobs",
		metric.WithDescription("Finished workflow jobs by workflow and status"))
	if err != nil {
		logger.Warn("failed to create job counter", "error", err)
	}
	return &Orchestrator{
		logger:    logger.With("component", "orchestrator"),
		tracer:    otel.Tracer(instrumentationName),
		jobRun:    jobRun,
		workflows: make(map[string][]Step),
		jobs:      make(map[string]*models.Job),
		newID:     func() string { return "x402_" + uuid.NewString() },
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterWorkflow stores steps under name, replacing any previous definition.
func (o *Orchestrator) RegisterWorkflow(name string, steps []Step) error {
	if name == "" {
		return apperrors.New(apperrors.ErrInvalidWorkflow, "workflow name is required")
	}
	if len(steps) == 0 {
		return apperrors.New(apperrors.ErrInvalidWorkflow, "workflow %q has no steps", name)
	}
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if s.Name == "" || s.Run == nil {
			return apperrors.New(apperrors.ErrInvalidWorkflow, "workflow %q: step %d needs a name and a function", name, i+1)
		}
		if _, dup := seen[s.Name]; dup {
			return apperrors.New(apperrors.ErrInvalidWorkflow, "workflow %q: duplicate step name %q", name, s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	stored := make([]Step, len(steps))
	copy(stored, steps)

	o.mu.Lock()
	o.workflows[name] = stored
	o.mu.Unlock()

	o.logger.Info("Workflow registered", "workflow", name, "steps", len(steps))
	return nil
}

// ListWorkflows returns the registered workflow names in sorted order.
func (o *Orchestrator) ListWorkflows() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.workflows))
	for name := range o.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetJobStatus returns a snapshot of a job.
func (o *Orchestrator) GetJobStatus(jobID string) (*models.Job, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// ExecuteWorkflow runs the named workflow for payload and returns a snapshot
// of the finished job. When a step fails the snapshot of the failed job is
// returned together with the step's error.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, name string, payload models.GenerateRequest) (*models.Job, error) {
	o.mu.RLock()
	steps, ok := o.workflows[name]
	o.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrWorkflowNotFound, "Workflow '%s' not found", name)
	}

	job := &models.Job{
		ID:        o.newID(),
		Workflow:  name,
		Status:    models.JobStatusRunning,
		Payload:   payload,
		Results:   models.NewStepResults(),
		StartTime: o.now(),
	}
	o.mu.Lock()
	o.jobs[job.ID] = job
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "workflow "+name, trace.WithAttributes(
		attribute.String("workflow.name", name),
		attribute.String("job.id", job.ID),
	))
	defer span.End()

	log := o.logger.With("workflow", name, "job_id", job.ID)
	log.Info("Starting workflow")

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, span, log, job, step.Name, err)
		}

		log.Debug("Executing step", "step", step.Name, "index", i+1)
		result, err := o.runStep(ctx, job, step)
		if err != nil {
			return o.fail(ctx, span, log, job, step.Name, err)
		}

		o.mu.Lock()
		job.Results.Set(step.Name, result)
		job.Status = models.StepCompletedStatus(i + 1)
		o.mu.Unlock()
	}

	o.mu.Lock()
	end := o.now()
	job.Status = models.JobStatusCompleted
	job.EndTime = &end
	snapshot := job.Clone()
	o.mu.Unlock()

	o.count(ctx, name, models.JobStatusCompleted)
	log.Info("Workflow completed", "duration", end.Sub(job.StartTime).String())
	return snapshot, nil
}

func (o *Orchestrator) runStep(ctx context.Context, job *models.Job, step Step) (models.StepResult, error) {
	ctx, span := o.tracer.Start(ctx, "step "+step.Name, trace.WithAttributes(attribute.String("step.name", step.Name)))
	defer span.End()

	o.mu.RLock()
	view := job.Results.Clone()
	o.mu.RUnlock()

	result, err := step.Run(ctx, job.Payload, view)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, log *logging.Logger, job *models.Job, stepName string, err error) (*models.Job, error) {
	o.mu.Lock()
	end := o.now()
	job.Status = models.JobStatusFailed
	job.Error = err.Error()
	job.EndTime = &end
	snapshot := job.Clone()
	o.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.count(ctx, job.Workflow, models.JobStatusFailed)
	log.Error("Workflow failed", "step", stepName, "error", err.Error())
	return snapshot, err
}

func (o *Orchestrator) count(ctx context.Context, workflow string, status models.JobStatus) {
	if o.jobRun == nil {
		return
	}
	o.jobRun.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("status", string(status)),
	))
}
