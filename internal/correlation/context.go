// Package correlation carries the per-operation identifiers (correlation
// id, command id, sequence counter) described by the specification's
// correlation context. It is deliberately not a process-wide singleton: the
// Go runtime is a parallel one, so a *Context is threaded explicitly
// alongside a context.Context, the same way the teacher threads its
// *gorm.DB and *zap.SugaredLogger through every constructor instead of
// reaching for package-level state.
package correlation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Context holds the identifiers for one logical operation: a command
// entering the pipeline, or a durable job resuming from a wire envelope.
type Context struct {
	mu            sync.Mutex
	correlationID string
	commandID     string
	sequence      int64
}

// New returns an empty context; correlationID is generated lazily on first
// Get().
func New() *Context {
	return &Context{}
}

// Init seeds the correlation id and restarts the sequence at 0. If id is
// empty, any existing id is cleared and the next Get() call generates one.
func (c *Context) Init(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.correlationID = id
	c.sequence = 0
}

// Get returns the correlation id, generating a UUIDv4 on first use and
// caching it for the lifetime of this Context.
func (c *Context) Get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.correlationID == "" {
		c.correlationID = uuid.NewString()
	}
	return c.correlationID
}

// Peek returns the correlation id without generating one; the empty string
// means none has been set yet.
func (c *Context) Peek() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.correlationID
}

// Set overwrites the correlation id explicitly, e.g. when resuming a job
// that carries __correlation_id in its payload envelope.
func (c *Context) Set(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.correlationID = id
}

// SetCommandID records the command id generated by the audit middleware.
func (c *Context) SetCommandID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commandID = id
}

// CommandID returns the current command id, or "" if none was set.
func (c *Context) CommandID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandID
}

// NextSequence returns the next value of the monotonic, per-correlation
// sequence counter, starting at 1 for the first call.
func (c *Context) NextSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence++
	return c.sequence
}

// Reset clears all fields. Middleware calls this in a finally-block so
// state never leaks between commands sharing the same goroutine/worker.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.correlationID = ""
	c.commandID = ""
	c.sequence = 0
}

type ctxKey struct{}

// Into attaches a *Context to a context.Context for ergonomic propagation
// through Gin handlers, Kafka consumers, and async queue jobs.
func Into(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// From retrieves the *Context attached by Into, creating and attaching a
// fresh one if none is present so callers never need a nil check.
func From(ctx context.Context) *Context {
	if c, ok := ctx.Value(ctxKey{}).(*Context); ok {
		return c
	}
	return New()
}

// Envelope is the set of keys a durable job carries so its correlation
// state can be restored on resume, per the wire payload envelope.
type Envelope struct {
	CorrelationID string `json:"__correlation_id"`
	Sequence      int64  `json:"__sequence"`
	EventID       string `json:"__event_id"`
}

// FromEnvelope rebuilds a *Context from a resumed job's envelope keys.
func FromEnvelope(e Envelope) *Context {
	c := New()
	c.Init(e.CorrelationID)
	c.mu.Lock()
	c.sequence = e.Sequence
	c.mu.Unlock()
	return c
}
