package eventbuilder

import (
	"fmt"
	"strings"
)

// Registry maps configuration tags to the modules of one run. It is filled
// before initialization and read-only afterwards.
type Registry struct {
	modules map[string]Module
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

func (r *Registry) Register(m Module) error {
	tag := m.Descriptor().Tag
	if tag == "" || strings.ContainsAny(tag, " \t\n") {
		return &ErrChainValidation{Module: m.Descriptor().Name, Reason: fmt.Sprintf("invalid tag %q", tag)}
	}
	if _, ok := r.modules[tag]; ok {
		return &ErrChainValidation{Module: m.Descriptor().Name, Reason: fmt.Sprintf("duplicate tag %q", tag)}
	}
	r.modules[tag] = m
	r.order = append(r.order, tag)
	return nil
}

func (r *Registry) Lookup(tag string) (Module, error) {
	m, ok := r.modules[tag]
	if !ok {
		return nil, &ErrResolveModule{Tag: tag}
	}
	return m, nil
}

// Tags returns the registered tags in registration order.
func (r *Registry) Tags() []string {
	return append([]string(nil), r.order...)
}

// ValidateChain checks the module sequence against the descriptors. Missing
// soft requirements are returned as warnings.
func ValidateChain(modules []Module) (warnings []string, err error) {
	if len(modules) == 0 {
		return nil, &ErrChainValidation{Module: "", Reason: "no modules"}
	}
	first := modules[0].Descriptor()
	if !first.IsStartModule {
		return nil, &ErrChainValidation{Module: first.Name, Reason: "the first module must load or generate the events"}
	}

	var provided Category
	seen := make(map[string]int)
	for i, m := range modules {
		d := m.Descriptor()

		seen[d.Name]++
		if seen[d.Name] > 1 && !d.AllowMultipleInstances {
			return warnings, &ErrChainValidation{Module: d.Name, Reason: "module does not allow multiple instances"}
		}
		if i > 0 && d.IsStartModule {
			return warnings, &ErrChainValidation{Module: d.Name, Reason: "start module must be first"}
		}

		if missing := d.Requires &^ provided; missing != 0 {
			return warnings, &ErrChainValidation{Module: d.Name, Reason: fmt.Sprintf("requires %v from preceding modules", missing)}
		}
		if missing := d.SoftRequires &^ provided; missing != 0 {
			warnings = append(warnings, fmt.Sprintf("module %q: recommended preceding %v not present", d.Name, missing))
		}

		if i > 0 {
			prev := modules[i-1].Descriptor()
			allowed := prev.AllowedSuccessors
			if allowed != 0 && allowed&CategoryNoRestriction == 0 && allowed&d.Provides == 0 {
				return warnings, &ErrChainValidation{Module: d.Name, Reason: fmt.Sprintf("not allowed after %q", prev.Name)}
			}
		}
		provided |= d.Provides
	}
	return warnings, nil
}
