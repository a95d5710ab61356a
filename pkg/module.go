package eventbuilder

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// Descriptor is the static description of a processing stage.
type Descriptor struct {
	Name string
	// Tag must be unique within a run and contain no spaces. Sibling stages
	// are resolved by it.
	Tag string

	// Requires must be provided by earlier stages. SoftRequires only warns.
	Requires     Category
	SoftRequires Category
	Provides     Category
	// AllowedSuccessors restricts what may follow. Zero or
	// CategoryNoRestriction allows anything.
	AllowedSuccessors Category

	AllowMultithreading    bool
	AllowMultipleInstances bool
	HasOptionsUI           bool
	IsStartModule          bool
}

// Report holds the per-category counters a module tallied during the run.
type Report map[string]int64

// Keys returns the counter names in sorted order.
func (r Report) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (r Report) String() string {
	out := ""
	for i, k := range r.Keys() {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, r[k])
	}
	return out
}

// Module is the contract every pipeline stage honors.
//
// Initialize performs one-time setup and may resolve siblings through the
// registry. IsReady is a non-blocking poll reporting whether the stage can
// hand a unit downstream. AnalyzeEvent transforms one event in place; false
// means this event could not be processed, not that the module is broken.
// Finalize is called exactly once for every module that initialized.
type Module interface {
	Descriptor() Descriptor
	Initialize(registry *Registry) error
	IsReady() bool
	AnalyzeEvent(event *Event) bool
	Finalize() Report
	IsOK() bool
	IsFinished() bool
	SetInterrupt(interrupt bool)
}

// ModuleBase carries the runtime flags shared by all modules. Embed it and
// override the methods a stage needs.
type ModuleBase struct {
	failed      atomic.Bool
	interrupted atomic.Bool
	finished    atomic.Bool
}

// IsOK reports false once the module failed. It never recovers.
func (m *ModuleBase) IsOK() bool {
	return !m.failed.Load()
}

// Fail marks the module permanently broken.
func (m *ModuleBase) Fail() {
	m.failed.Store(true)
}

func (m *ModuleBase) IsInterrupted() bool {
	return m.interrupted.Load()
}

func (m *ModuleBase) SetInterrupt(interrupt bool) {
	m.interrupted.Store(interrupt)
}

func (m *ModuleBase) IsFinished() bool {
	return m.finished.Load()
}

// SetFinished is used by start modules once their input is exhausted.
func (m *ModuleBase) SetFinished() {
	m.finished.Store(true)
}

// IsReady defaults to true: most stages only transform what they are given.
func (m *ModuleBase) IsReady() bool {
	return true
}

func (m *ModuleBase) Initialize(*Registry) error {
	return nil
}

func (m *ModuleBase) Finalize() Report {
	return Report{}
}

// State is the lifecycle position of a stage inside a run.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateReady
	StateNotReady
	StateAnalyzing
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateInitialized:
		return "Initialized"
	case StateReady:
		return "Ready"
	case StateNotReady:
		return "NotReady"
	case StateAnalyzing:
		return "Analyzing"
	case StateFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}
