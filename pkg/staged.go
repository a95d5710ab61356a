package eventbuilder

import (
	"context"
	"fmt"
	"sync"
)

// runStaged moves events through per-stage queues. The start stage produces a
// fresh event whenever it is ready; every other stage takes the oldest event
// from its input queue. A stage whose successor queue is full holds its event
// and does no new work until the hand-off succeeds.
func (o *Orchestrator) runStaged(ctx context.Context, summary *RunSummary) error {
	for i := 1; i < len(o.stages); i++ {
		o.stages[i].input = NewEventQueue(o.config.QueueCapacity)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i, st := range o.stages {
		if o.config.UseWorkers && st.module.Descriptor().AllowMultithreading {
			st.worker = true
			wg.Add(1)
			go o.stageWorker(ctx, i, stop, &wg)
		}
	}

	var failed *stage
	for {
		if o.isInterrupted() {
			break
		}
		if failed == nil {
			for _, st := range o.stages {
				if !st.module.IsOK() {
					failed = st
					o.draining.Store(true)
					o.logger.Error(fmt.Sprintf("Module %q is no longer OK... draining the pipeline", st.name))
					break
				}
			}
		}

		progressed := false
		for i, st := range o.stages {
			if st.worker {
				continue
			}
			if o.advance(i) {
				progressed = true
			}
		}

		if o.maxEventsReached() {
			o.draining.Store(true)
			if o.inFlight.Load() == 0 {
				break
			}
		}
		if failed != nil && o.inFlight.Load() == 0 {
			break
		}
		if o.stages[0].module.IsFinished() && o.inFlight.Load() == 0 {
			break
		}
		if !progressed {
			sleepContext(ctx, o.config.TickInterval)
		}
	}

	close(stop)
	wg.Wait()

	summary.QueueHighWater = make([]int, len(o.stages))
	dropped := 0
	for i, st := range o.stages {
		if st.pending != nil {
			st.pending = nil
			dropped++
		}
		if st.input != nil {
			dropped += st.input.Drain()
			summary.QueueHighWater[i] = st.input.HighWater()
		}
	}
	if dropped > 0 && o.config.Verbosity > 0 {
		message := fmt.Sprintf("Discarded %d events still in the pipeline", dropped)
		o.logger.Info(message, "orchestrator")
	}

	if failed != nil {
		return &ErrModuleFailed{Module: failed.name}
	}
	return nil
}

func (o *Orchestrator) stageWorker(ctx context.Context, index int, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !o.advance(index) {
			sleepContext(ctx, o.config.TickInterval)
		}
	}
}

// advance performs at most one unit of work for a stage and reports whether
// anything moved.
func (o *Orchestrator) advance(index int) bool {
	st := o.stages[index]
	progressed := false

	if st.pending != nil {
		if !o.handOff(index) {
			return false
		}
		progressed = true
	}

	var event *Event
	if index == 0 {
		if o.draining.Load() || o.isInterrupted() || st.module.IsFinished() {
			return progressed
		}
		if !st.module.IsReady() {
			st.state = StateNotReady
			return progressed
		}
		event = NewEvent()
		o.inFlight.Add(1)
	} else {
		event = st.input.Pop()
		if event == nil {
			return progressed
		}
		if !st.module.IsOK() {
			o.drop(event)
			return true
		}
	}

	if !o.analyze(st, event) || !event.Passes() {
		if event.DataRead && o.config.Verbosity > 1 {
			message := fmt.Sprintf("Event %d stopped in module %q", event.ID, st.name)
			o.logger.Info(message, "orchestrator")
		}
		o.drop(event)
		return true
	}

	st.pending = event
	o.handOff(index)
	return true
}

// handOff passes the held event to the next queue, or releases it after the
// last stage.
func (o *Orchestrator) handOff(index int) bool {
	st := o.stages[index]
	if index == len(o.stages)-1 {
		st.pending = nil
		o.inFlight.Add(-1)
		o.completed.Add(1)
		return true
	}
	if o.stages[index+1].input.Push(st.pending) {
		st.pending = nil
		return true
	}
	return false
}

func (o *Orchestrator) drop(event *Event) {
	o.inFlight.Add(-1)
	if event.DataRead {
		o.rejected.Add(1)
	}
}
