package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a workflow execution
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// StepCompletedStatus is the intermediate marker set after the n-th step (1-based) finishes.
func StepCompletedStatus(n int) JobStatus {
	return JobStatus(fmt.Sprintf("completed_step_%d", n))
}

// IsTerminal reports whether no further transitions happen from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ValidationResult is produced by a request validation step
type ValidationResult struct {
	Valid bool `json:"valid"`
}

// StepResult is the tagged output of a single workflow step. A step fills
// only the fields that describe what it did.
type StepResult struct {
	Validation    *ValidationResult `json:"validation,omitempty"`
	Transaction   *Transaction      `json:"transaction,omitempty"`
	Content       *Artifact         `json:"content,omitempty"`
	ContentRecord *ContentRecord    `json:"contentRecord,omitempty"`
}

// StepResults maps step names to results and remembers insertion order.
type StepResults struct {
	order []string
	items map[string]StepResult
}

// NewStepResults returns an empty result context.
func NewStepResults() *StepResults {
	return &StepResults{items: make(map[string]StepResult)}
}

// Set stores the result of a step. A name that is already present keeps its position.
func (r *StepResults) Set(name string, result StepResult) {
	if r.items == nil {
		r.items = make(map[string]StepResult)
	}
	if _, ok := r.items[name]; !ok {
		r.order = append(r.order, name)
	}
	r.items[name] = result
}

// Get returns the result recorded for a step.
func (r *StepResults) Get(name string) (StepResult, bool) {
	if r == nil {
		return StepResult{}, false
	}
	res, ok := r.items[name]
	return res, ok
}

// Names returns step names in insertion order.
func (r *StepResults) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of recorded results.
func (r *StepResults) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Clone returns a shallow copy whose ordering and map can be mutated independently.
func (r *StepResults) Clone() *StepResults {
	out := NewStepResults()
	if r == nil {
		return out
	}
	for _, name := range r.order {
		out.Set(name, r.items[name])
	}
	return out
}

// MarshalJSON encodes the results as an object with keys in step order.
func (r *StepResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r != nil {
		for i, name := range r.order {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(name)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(r.items[name])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Job represents one execution instance of a workflow
type Job struct {
	ID        string          `json:"id"`
	Workflow  string          `json:"workflow"`
	Status    JobStatus       `json:"status"`
	Payload   GenerateRequest `json:"payload"`
	Results   *StepResults    `json:"results"`
	StartTime time.Time       `json:"startTime"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Results = j.Results.Clone()
	if j.EndTime != nil {
		end := *j.EndTime
		out.EndTime = &end
	}
	return &out
}
