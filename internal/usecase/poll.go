package usecase

import (
	"context"
	"fmt"
	"time"

	"storybook-agent/internal/domain"
)

type pollState string

const (
	stateQueued    pollState = "queued"
	stateRunning   pollState = "running"
	stateCompleted pollState = "completed"
	stateFailed    pollState = "failed"
	stateCancelled pollState = "cancelled"
	stateExhausted pollState = "exhausted"
)

func (s pollState) terminal() bool {
	switch s {
	case stateCompleted, stateFailed, stateCancelled, stateExhausted:
		return true
	}
	return false
}

// nextState maps the status observed on the given attempt (1-based) to the
// poller state. Non-terminal observations on the last attempt exhaust the
// budget.
func nextState(observed domain.RunStatus, attempt, maxAttempts int) pollState {
	var s pollState
	switch observed {
	case domain.RunCompleted:
		s = stateCompleted
	case domain.RunFailed, domain.RunExpired, domain.RunIncomplete:
		s = stateFailed
	case domain.RunCancelled:
		s = stateCancelled
	case domain.RunQueued:
		s = stateQueued
	default:
		s = stateRunning
	}
	if !s.terminal() && attempt >= maxAttempts {
		return stateExhausted
	}
	return s
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// awaitRun polls the run at a fixed interval until it reaches a terminal
// state. The budget is an attempt count, so the wall-clock bound is only
// approximately attempts*interval plus request latency.
func (s *StoryService) awaitRun(ctx context.Context, run domain.Run) (domain.Run, error) {
	for attempt := 1; ; attempt++ {
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return run, newError(ErrorUpstream, "run_poll_interrupted", err)
		}
		got, err := s.gateway.GetRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return run, gatewayError("openai_get_run_error", err)
		}
		run = got

		state := nextState(run.Status, attempt, s.cfg.MaxPollAttempts)
		s.logger.Debug("run polled", "run_id", run.ID, "status", run.Status, "state", state, "attempt", attempt)
		if state == stateCompleted {
			return run, nil
		}
		if state.terminal() {
			return run, &Error{
				Code:    ErrorRunIncomplete,
				Reason:  "run_" + string(state),
				Message: fmt.Sprintf("Run did not complete. Status: %s", run.Status),
			}
		}
	}
}
