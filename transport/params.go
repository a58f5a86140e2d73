package transport

import (
	"fmt"
	"sync"
	"time"
)

// Kind selects the value domain of a parameter.
type Kind int

const (
	// KindFloat accepts ints and floats and stores a float64. Durations are
	// expressed as float seconds.
	KindFloat Kind = iota
	// KindInt accepts ints only and stores an int64.
	KindInt
	// KindString accepts strings.
	KindString
)

// ParamSpec describes one parameter: its value domain, optional numeric
// bounds (inclusive) and whether callers may write it. Descriptor tables are
// package-level values in each backend, fixed at compile time.
type ParamSpec struct {
	Kind     Kind
	Min, Max *float64
	ReadOnly bool
}

// Params is the lock-guarded parameter store held by every transport
// instance. Reads and writes are atomic under the store's own mutex,
// orthogonal to any queue locking; parameter I/O never touches network or
// disk. Background loops re-read values once per iteration, so a change
// takes effect on the following iteration.
type Params struct {
	mu     sync.Mutex
	specs  map[string]ParamSpec
	values map[string]any
}

// NewParams builds a store over the given descriptor table, seeded with
// defaults. Defaults are trusted and bypass validation.
func NewParams(specs map[string]ParamSpec, defaults map[string]any) *Params {
	values := make(map[string]any, len(defaults))
	for name, v := range defaults {
		values[name] = v
	}
	return &Params{specs: specs, values: values}
}

// Set validates value against the parameter's descriptor and swaps it in
// atomically; no partial update is ever visible.
func (p *Params) Set(name string, value any) error {
	spec, ok := p.specs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	if spec.ReadOnly {
		return fmt.Errorf("%w: %s is read-only", ErrInvalidParameterValue, name)
	}
	cast, err := castValue(spec.Kind, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParameterValue, name, err)
	}
	if err := checkBounds(spec, cast); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParameterValue, name, err)
	}
	p.mu.Lock()
	p.values[name] = cast
	p.mu.Unlock()
	return nil
}

// Get returns the current value of a parameter.
func (p *Params) Get(name string) (any, error) {
	if _, ok := p.specs[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[name], nil
}

// Store writes a value without descriptor validation. Backends use it for
// read-only parameters they maintain themselves (e.g. the bound server
// address).
func (p *Params) Store(name string, value any) {
	p.mu.Lock()
	p.values[name] = value
	p.mu.Unlock()
}

// Typed accessors for known-good parameters; they return the zero value when
// the stored value has a different type.

func (p *Params) Float(name string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, _ := p.values[name].(float64)
	return v
}

func (p *Params) Int(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, _ := p.values[name].(int64)
	return v
}

func (p *Params) Str(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, _ := p.values[name].(string)
	return v
}

// Duration reads a KindFloat parameter expressed in seconds.
func (p *Params) Duration(name string) time.Duration {
	return time.Duration(p.Float(name) * float64(time.Second))
}

func castValue(kind Kind, value any) (any, error) {
	switch kind {
	case KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case KindInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		}
	case KindString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unexpected type %T", value)
}

func checkBounds(spec ParamSpec, cast any) error {
	var n float64
	switch v := cast.(type) {
	case float64:
		n = v
	case int64:
		n = float64(v)
	default:
		return nil
	}
	if spec.Min != nil && n < *spec.Min {
		return fmt.Errorf("%v below minimum %v", cast, *spec.Min)
	}
	if spec.Max != nil && n > *spec.Max {
		return fmt.Errorf("%v above maximum %v", cast, *spec.Max)
	}
	return nil
}
