// Package pipeline composes the components into the two runs: web to object
// store, and object store to warehouse.
//
// A run is an ordered list of steps, each tagged with the stage it belongs
// to. Stages only move forward (Fetching, Transforming, Loading) and the
// first failing step ends the run in Failed. Nothing is retried and nothing
// already written is cleaned up.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taxietl/internal/logging"
	"taxietl/internal/metrics"
	"taxietl/internal/partition"
)

// State is where a run is.
type State int

const (
	StatePending State = iota
	StateFetching
	StateTransforming
	StateLoading
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Step is one unit of work inside a stage.
type Step struct {
	Stage State
	Name  string
	Run   func(ctx context.Context) error
}

// StageError reports which stage and step ended a run.
type StageError struct {
	Job   string
	Stage State
	Step  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s failed at %s: %v", e.Job, e.Stage, e.Step, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Runner executes steps in order.
type Runner struct {
	Job       string
	Partition partition.Partition
	Steps     []Step

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)

	state State
}

// State returns the current state.
func (r *Runner) State() State { return r.state }

// Run executes every step. It returns a *StageError for the first failure.
func (r *Runner) Run(ctx context.Context) error {
	if r.state != StatePending {
		return fmt.Errorf("pipeline: %s already ran (state %s)", r.Job, r.state)
	}
	if err := checkOrder(r.Steps); err != nil {
		return err
	}
	log := logging.Component("pipeline").With("job", r.Job, "partition", r.Partition.String())
	log.Info("run started", "steps", len(r.Steps))
	start := time.Now()

	for _, s := range r.Steps {
		if s.Stage != r.state {
			r.transition(log, s.Stage)
		}
		t0 := time.Now()
		err := s.Run(ctx)
		took := time.Since(t0)
		metrics.RecordStage(r.Job, s.Name, err, took)
		if err != nil {
			log.Error("step failed", "stage", s.Stage.String(), "step", s.Name, "duration", took, "err", err)
			r.transition(log, StateFailed)
			return &StageError{Job: r.Job, Stage: s.Stage, Step: s.Name, Err: err}
		}
		log.Info("step finished", "stage", s.Stage.String(), "step", s.Name, "duration", took)
	}

	r.transition(log, StateSucceeded)
	log.Info("run finished", "duration", time.Since(start))
	return nil
}

func (r *Runner) transition(log *slog.Logger, to State) {
	from := r.state
	r.state = to
	log.Debug("state", "from", from.String(), "to", to.String())
	if r.OnTransition != nil {
		r.OnTransition(from, to)
	}
}

// checkOrder rejects step lists whose stages go backwards or leave the
// Fetching..Loading range.
func checkOrder(steps []Step) error {
	prev := StateFetching
	for i, s := range steps {
		if s.Stage < StateFetching || s.Stage > StateLoading {
			return fmt.Errorf("pipeline: step %d (%s): invalid stage %s", i, s.Name, s.Stage)
		}
		if s.Stage < prev {
			return fmt.Errorf("pipeline: step %d (%s): stage %s after %s", i, s.Name, s.Stage, prev)
		}
		if s.Run == nil {
			return fmt.Errorf("pipeline: step %d (%s): nil Run", i, s.Name)
		}
		prev = s.Stage
	}
	return nil
}
