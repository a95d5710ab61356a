package eventbuilder

import "fmt"

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error { return e.Err }

// ErrInitModule is returned when a module fails to initialize.
type ErrInitModule struct {
	Module string
	Err    error
}

func (e *ErrInitModule) Error() string {
	return fmt.Sprintf("initialization of module %q failed: %v", e.Module, e.Err)
}

func (e *ErrInitModule) Unwrap() error { return e.Err }

// ErrModuleFailed reports the module whose OK flag turned false during a run.
type ErrModuleFailed struct {
	Module string
}

func (e *ErrModuleFailed) Error() string {
	return fmt.Sprintf("module %q is no longer OK", e.Module)
}

// ErrResolveModule represents a failed lookup of a sibling module.
type ErrResolveModule struct {
	Tag    string
	Reason string
}

func (e *ErrResolveModule) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("no module with tag %q", e.Tag)
	}
	return fmt.Sprintf("module with tag %q: %s", e.Tag, e.Reason)
}

// ErrChainValidation represents an invalid module sequence.
type ErrChainValidation struct {
	Module string
	Reason string
}

func (e *ErrChainValidation) Error() string {
	return fmt.Sprintf("invalid module chain at %q: %s", e.Module, e.Reason)
}
