package eventbuilder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Backoff bounds the idle wait of the cooperative readiness barrier. The wait
// starts at Initial and doubles up to Max while stages stay not ready.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

type backoffState struct {
	config  Backoff
	current time.Duration
}

func newBackoffState(b Backoff) *backoffState {
	if b.Initial <= 0 {
		b.Initial = 10 * time.Millisecond
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	return &backoffState{config: b}
}

func (b *backoffState) next() time.Duration {
	if b.current == 0 {
		b.current = b.config.Initial
	} else {
		b.current *= 2
		if b.current > b.config.Max {
			b.current = b.config.Max
		}
	}
	return b.current
}

func (b *backoffState) reset() {
	b.current = 0
}

type SchedulerConfig struct {
	Mode        SchedulerMode
	IdleBackoff Backoff
	// TickInterval is the staged-mode sleep after a tick in which no stage
	// made progress.
	TickInterval time.Duration
	// QueueCapacity bounds every staged hand-off queue. 0 means unbounded.
	QueueCapacity int
	// UseWorkers gives every multithread-capable stage its own goroutine in
	// staged mode.
	UseWorkers bool
	// MaxEvents stops the run after that many events passed every stage.
	// 0 means no limit.
	MaxEvents int
	Verbosity int
	Logger    Logger
}

type ModuleSummary struct {
	Name    string
	Tag     string
	State   State
	Elapsed time.Duration
	Report  Report
}

type RunSummary struct {
	RunID string
	Mode  SchedulerMode
	// Events counts events that went through every stage.
	Events int64
	// Rejected counts events with data that a stage refused or filtered.
	Rejected    int64
	Interrupted bool
	Duration    time.Duration
	Modules     []ModuleSummary
	// QueueHighWater holds, per stage, the longest its input queue got in
	// staged mode. The first stage has no input queue.
	QueueHighWater []int
}

type stage struct {
	module  Module
	name    string
	state   State
	elapsed time.Duration
	report  Report

	// staged mode only
	input   *EventQueue
	pending *Event
	worker  bool
}

// Orchestrator owns the ordered stage list and drives a run with one of the
// two scheduling strategies.
type Orchestrator struct {
	config   SchedulerConfig
	logger   Logger
	stages   []*stage
	registry *Registry

	interrupted atomic.Bool
	running     atomic.Bool

	inFlight  atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	draining  atomic.Bool
}

func NewOrchestrator(config SchedulerConfig, modules ...Module) (*Orchestrator, error) {
	if config.Mode == "" {
		config.Mode = ModeCooperative
	}
	if config.Mode != ModeCooperative && config.Mode != ModeStaged {
		return nil, fmt.Errorf("unknown scheduler mode %q", config.Mode)
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = NopLogger{}
	}

	warnings, err := ValidateChain(modules)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logger.Info(w, "orchestrator")
	}

	registry := NewRegistry()
	stages := make([]*stage, 0, len(modules))
	for _, m := range modules {
		if err := registry.Register(m); err != nil {
			return nil, err
		}
		stages = append(stages, &stage{module: m, name: m.Descriptor().Name, state: StateCreated})
	}

	return &Orchestrator{
		config:   config,
		logger:   logger,
		stages:   stages,
		registry: registry,
	}, nil
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Interrupt asks the run to stop. It is honored at loop and stage boundaries.
func (o *Orchestrator) Interrupt() {
	o.interrupted.Store(true)
	for _, st := range o.stages {
		st.module.SetInterrupt(true)
	}
}

func (o *Orchestrator) isInterrupted() bool {
	return o.interrupted.Load()
}

// States returns the lifecycle state of every stage. Only meaningful once Run
// returned.
func (o *Orchestrator) States() []State {
	states := make([]State, len(o.stages))
	for i, st := range o.stages {
		states[i] = st.state
	}
	return states
}

func (o *Orchestrator) Run(ctx context.Context) (RunSummary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return RunSummary{}, fmt.Errorf("analysis is already running")
	}
	defer o.running.Store(false)

	summary := RunSummary{RunID: uuid.NewString(), Mode: o.config.Mode}
	start := time.Now()

	o.interrupted.Store(false)
	o.draining.Store(false)
	o.inFlight.Store(0)
	o.completed.Store(0)
	o.rejected.Store(0)
	for _, st := range o.stages {
		st.state = StateCreated
		st.elapsed = 0
		st.report = nil
		st.pending = nil
		st.input = nil
		st.worker = false
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			o.Interrupt()
		case <-done:
		}
	}()

	if o.config.Verbosity > 0 {
		message := fmt.Sprintf("Run %s: %d modules, %s scheduling", summary.RunID, len(o.stages), o.config.Mode)
		o.logger.Info(message, "orchestrator")
	}

	err := o.initialize()
	if err == nil && !o.isInterrupted() {
		switch o.config.Mode {
		case ModeStaged:
			err = o.runStaged(ctx, &summary)
		default:
			err = o.runCooperative(ctx, &summary)
		}
	}

	o.finalize(&summary)

	summary.Events = o.completed.Load()
	summary.Rejected = o.rejected.Load()
	summary.Interrupted = o.isInterrupted()
	summary.Duration = time.Since(start)

	if summary.Interrupted {
		message := fmt.Sprintf("Analysis INTERRUPTED after %s", summary.Duration)
		o.logger.Info(message, "orchestrator")
	} else {
		message := fmt.Sprintf("Analysis finished in %s: %d events, %d rejected", summary.Duration, summary.Events, summary.Rejected)
		o.logger.Info(message, "orchestrator")
	}
	if o.config.Verbosity >= 2 {
		for _, m := range summary.Modules {
			message := fmt.Sprintf("Spent %s in module %s", m.Elapsed, m.Name)
			o.logger.Info(message, "orchestrator")
		}
	}
	return summary, err
}

func (o *Orchestrator) initialize() error {
	for _, st := range o.stages {
		st.module.SetInterrupt(false)
	}
	for _, st := range o.stages {
		start := time.Now()
		err := st.module.Initialize(o.registry)
		st.elapsed += time.Since(start)
		if err != nil {
			if o.isInterrupted() {
				return nil
			}
			errMessage := &ErrInitModule{Module: st.name, Err: err}
			o.logger.Error(errMessage.Error())
			return errMessage
		}
		st.state = StateInitialized
		if o.config.Verbosity > 0 {
			message := fmt.Sprintf("Module %q initialized", st.name)
			o.logger.Info(message, "orchestrator")
		}
		if o.isInterrupted() {
			return nil
		}
	}
	return nil
}

func (o *Orchestrator) finalize(summary *RunSummary) {
	for _, st := range o.stages {
		if st.state != StateCreated {
			start := time.Now()
			st.report = st.module.Finalize()
			st.elapsed += time.Since(start)
			st.state = StateFinalized
			if o.config.Verbosity > 0 && len(st.report) > 0 {
				message := fmt.Sprintf("Module %q: %s", st.name, st.report)
				o.logger.Info(message, "orchestrator")
			}
		}
		summary.Modules = append(summary.Modules, ModuleSummary{
			Name:    st.name,
			Tag:     st.module.Descriptor().Tag,
			State:   st.state,
			Elapsed: st.elapsed,
			Report:  st.report,
		})
	}
}

// analyze runs one AnalyzeEvent call. A panic counts as a refused event.
func (o *Orchestrator) analyze(st *stage, event *Event) (ok bool) {
	start := time.Now()
	st.state = StateAnalyzing
	defer func() {
		st.elapsed += time.Since(start)
		st.state = StateReady
		if r := recover(); r != nil {
			errMessage := fmt.Errorf("module %q recovered from panic on event %d: %v", st.name, event.ID, r)
			o.logger.Error(errMessage.Error())
			ok = false
		}
	}()
	return st.module.AnalyzeEvent(event)
}

func (o *Orchestrator) maxEventsReached() bool {
	return o.config.MaxEvents > 0 && o.completed.Load() >= int64(o.config.MaxEvents)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
