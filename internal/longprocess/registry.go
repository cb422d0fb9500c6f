package longprocess

import "fmt"

// Status is a LongProcess's lifecycle state (§3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusScheduled Status = "scheduled"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition is allowed (§3 invariant).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Process is implemented by every concrete saga type. Init receives the
// process's business data (the value given to Runner.Start on the first
// run; its generic JSON decoding, e.g. map[string]any, when a persisted
// process is reloaded) and RegisterSteps populates the frozen schema — this is
// the explicit-registration alternative to reflection-driven discovery
// named in §9.
type Process interface {
	ProcessClass() string
	Init(businessData any) error
	RegisterSteps(steps *ProcessSteps)
}

// Factory constructs a fresh, zero-valued Process of a registered class.
type Factory func() Process

// Registry maps a process_class discriminator to its Factory, so a
// persisted LongProcess row can be rehydrated into a runnable Process plus
// a freshly rebuilt ProcessSteps dispatch table.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a process_class to its Factory.
func (r *Registry) Register(class string, factory Factory) {
	r.factories[class] = factory
}

// Build instantiates the process for class, feeds it businessData, and
// returns both the Process and its freshly registered ProcessSteps.
func (r *Registry) Build(class string, businessData any) (Process, *ProcessSteps, error) {
	factory, ok := r.factories[class]
	if !ok {
		return nil, nil, fmt.Errorf("longprocess: unknown process class %q", class)
	}
	proc := factory()
	if err := proc.Init(businessData); err != nil {
		return nil, nil, fmt.Errorf("longprocess: init %q: %w", class, err)
	}
	steps := NewProcessSteps()
	proc.RegisterSteps(steps)
	return proc, steps, nil
}
