package eventbuilder

import (
	"context"
	"fmt"
)

// runCooperative pushes a single reused event through the whole chain once
// every stage reports ready.
func (o *Orchestrator) runCooperative(ctx context.Context, summary *RunSummary) error {
	event := NewEvent()
	backoff := newBackoffState(o.config.IdleBackoff)

	for !o.isInterrupted() {
		event.Clear()

		allReady, failed, finished := o.barrier(ctx, backoff)
		if failed != nil {
			return &ErrModuleFailed{Module: failed.name}
		}
		if o.isInterrupted() || (finished && !allReady) {
			break
		}
		backoff.reset()

		o.cycle(event)
		if o.maxEventsReached() {
			if o.config.Verbosity > 0 {
				message := fmt.Sprintf("Reached the maximum of %d events", o.config.MaxEvents)
				o.logger.Info(message, "orchestrator")
			}
			break
		}
	}
	return nil
}

// barrier polls every stage until all are ready, one is no longer OK, the
// start module ran out of input or the run is interrupted.
func (o *Orchestrator) barrier(ctx context.Context, backoff *backoffState) (allReady bool, failed *stage, finished bool) {
	for {
		allReady = true
		finished = false
		for _, st := range o.stages {
			if st.module.IsReady() {
				st.state = StateReady
			} else {
				st.state = StateNotReady
				allReady = false
				if o.config.Verbosity > 2 {
					message := fmt.Sprintf("Module %q is not yet ready", st.name)
					o.logger.Info(message, "orchestrator")
				}
			}
			if !st.module.IsOK() {
				o.logger.Error(fmt.Sprintf("Module %q is no longer OK... exiting analysis loop", st.name))
				return false, st, false
			}
			if st.module.IsFinished() {
				finished = true
			}
		}
		if allReady || finished || o.isInterrupted() {
			return allReady, nil, finished
		}
		sleepContext(ctx, backoff.next())
	}
}

// cycle runs the stages in order on one event and stops at the first stage
// that refuses or filters it.
func (o *Orchestrator) cycle(event *Event) {
	for _, st := range o.stages {
		if o.isInterrupted() {
			return
		}
		if !o.analyze(st, event) {
			if event.DataRead {
				o.rejected.Add(1)
				if o.config.Verbosity > 1 {
					message := fmt.Sprintf("Analysis failed for event %d in module %q", event.ID, st.name)
					o.logger.Info(message, "orchestrator")
				}
			}
			return
		}
		if !event.DataRead {
			return
		}
		if !event.Passes() {
			o.rejected.Add(1)
			return
		}
	}
	o.completed.Add(1)
}
