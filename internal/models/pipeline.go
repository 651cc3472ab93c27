// -----------------------------------------------------------------------
// Pipeline Run - Explicit state threaded through the analyze/search stages
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// PipelineKind distinguishes the single-workflow pipeline from the directory batch pipeline
type PipelineKind string

const (
	PipelineSingle PipelineKind = "single"
	PipelineBatch  PipelineKind = "batch"
)

// Stage is a state of the pipeline state machine
type Stage string

const (
	StageIdle             Stage = "idle"
	StageAnalyzing        Stage = "analyzing"
	StageEmittingArtifact Stage = "emitting_artifact"
	StageBatchProcessing  Stage = "batch_processing"
	StageSearching        Stage = "searching"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// IsTerminal reports whether the stage ends the run
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Outcome is the user-facing result of a finished run
type Outcome string

const (
	// OutcomeNoOp: nothing was missing, no further stage ran
	OutcomeNoOp Outcome = "no_op"
	// OutcomeSuccess: a report was produced
	OutcomeSuccess Outcome = "success"
	// OutcomeDegraded: search ran but produced no report
	OutcomeDegraded Outcome = "degraded"
	// OutcomeWarning: batch processed but the aggregate to search could not be found
	OutcomeWarning Outcome = "warning"
	// OutcomeFailed: a stage failed
	OutcomeFailed Outcome = "failed"
)

// stageTransitions lists the allowed edges. Failed is reachable from every
// non-terminal stage and is handled separately.
var stageTransitions = map[Stage][]Stage{
	StageIdle:             {StageAnalyzing, StageBatchProcessing},
	StageAnalyzing:        {StageEmittingArtifact, StageDone},
	StageEmittingArtifact: {StageSearching},
	StageBatchProcessing:  {StageSearching, StageDone},
	StageSearching:        {StageDone},
}

// CanTransition reports whether from -> to is an edge of the state machine
func CanTransition(from, to Stage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StageChange records one transition of a run
type StageChange struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// PipelineRun is created per user action and discarded when it finishes.
// It carries everything the stages produce so no stage reads process-wide state.
type PipelineRun struct {
	ID      string        `json:"id"`
	Kind    PipelineKind  `json:"kind"`
	Input   TaskInput     `json:"input"`
	Stage   Stage         `json:"stage"`
	History []StageChange `json:"history"`

	// Intermediate is the emitted tabular artifact of a single run
	Intermediate string `json:"intermediate,omitempty"`
	// Aggregate is the batch summary artifact searched by a batch run
	Aggregate string `json:"aggregate,omitempty"`
	// Report is the rendered report, set only on success
	Report string `json:"report,omitempty"`

	// Status is the latest status text shown for the run
	Status       string     `json:"status"`
	MissingCount int        `json:"missing_count"`
	Rows         []BatchRow `json:"rows,omitempty"`
	Progress     int        `json:"progress"`

	Outcome    Outcome    `json:"outcome,omitempty"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewPipelineRun creates a run in the Idle stage
func NewPipelineRun(id string, kind PipelineKind, input TaskInput) *PipelineRun {
	return &PipelineRun{
		ID:        id,
		Kind:      kind,
		Input:     input,
		Stage:     StageIdle,
		StartedAt: time.Now(),
	}
}

// Transition moves the run to the next stage, rejecting edges the state machine does not have
func (r *PipelineRun) Transition(to Stage) error {
	if !CanTransition(r.Stage, to) {
		return fmt.Errorf("invalid pipeline transition %s -> %s", r.Stage, to)
	}
	r.History = append(r.History, StageChange{From: r.Stage, To: to, At: time.Now()})
	r.Stage = to
	return nil
}

// Finish moves the run to Done (or Failed for OutcomeFailed) and records the outcome
func (r *PipelineRun) Finish(outcome Outcome, message string) error {
	target := StageDone
	if outcome == OutcomeFailed {
		target = StageFailed
	}
	if err := r.Transition(target); err != nil {
		return err
	}
	now := time.Now()
	r.Outcome = outcome
	r.Message = message
	r.FinishedAt = &now
	return nil
}

// Visited reports whether the run ever entered the given stage
func (r *PipelineRun) Visited(stage Stage) bool {
	if r.Stage == stage {
		return true
	}
	for _, change := range r.History {
		if change.To == stage {
			return true
		}
	}
	return false
}

// Snapshot returns a copy safe to hand to observers
func (r *PipelineRun) Snapshot() PipelineRun {
	cp := *r
	cp.History = append([]StageChange(nil), r.History...)
	cp.Rows = append([]BatchRow(nil), r.Rows...)
	return cp
}
