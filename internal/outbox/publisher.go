package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richardliu001/reliability-core/internal/asyncqueue"
)

// WrappedPayload is the stored payload augmented with the three envelope
// keys the processor injects before handing an entry to its transport.
type WrappedPayload map[string]any

func wrapPayload(e Entry) (WrappedPayload, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal stored payload: %w", err)
	}
	wrapped := make(WrappedPayload, len(payload)+3)
	for k, v := range payload {
		wrapped[k] = v
	}
	wrapped["__correlation_id"] = e.CorrelationID
	wrapped["__sequence"] = e.Sequence
	wrapped["__event_id"] = e.EventID
	return wrapped, nil
}

// ExternalSink is the injected, replaceable handler for entries routed to
// an external transport. It returns handled=false when it declines to
// process the entry (e.g. unknown integration_action), so the router can
// decide whether that constitutes failure.
type ExternalSink interface {
	Publish(ctx context.Context, entry Entry, wrapped WrappedPayload) (handled bool, err error)
}

// TransportResolver lets callers override the effective transport for an
// entry beyond its stored Transport field — the extensibility hook named
// in §4.6.
type TransportResolver func(entry Entry) Transport

// Publisher is the C6 collaborator the processor calls per claimed entry.
type Publisher interface {
	Publish(ctx context.Context, entry Entry, wrapped WrappedPayload) error
}

// Router is the default Publisher: it resolves the effective transport and
// routes to either the external sink or the in-process async queue.
type Router struct {
	Queue                    asyncqueue.Queue
	External                 ExternalSink
	Resolve                  TransportResolver
	RouteLargePayloadsExternal bool
	MaxInProcessBytes          int
	DefaultGroup               string
	JobName                    func(entry Entry) string
}

// NewRouter builds a Router with the given collaborators and defaults
// matching the outbox configuration table.
func NewRouter(queue asyncqueue.Queue, external ExternalSink) *Router {
	return &Router{
		Queue:             queue,
		External:          external,
		MaxInProcessBytes: 50_000,
		DefaultGroup:      "default",
		JobName:           func(e Entry) string { return "outbox_integration_" + e.IntegrationAction },
	}
}

// Publish implements Publisher.
func (r *Router) Publish(ctx context.Context, entry Entry, wrapped WrappedPayload) error {
	transport := entry.Transport
	if r.Resolve != nil {
		transport = r.Resolve(entry)
	}

	wantsExternal := transport == TransportExternal ||
		(r.RouteLargePayloadsExternal && entry.PayloadBytes > r.maxInProcessBytes())

	if wantsExternal {
		if r.External == nil {
			return ErrPublishNotHandled
		}
		handled, err := r.External.Publish(ctx, entry, wrapped)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
		if transport == TransportExternal {
			return ErrPublishNotHandled
		}
		// fall through to in-process when large-payload routing declined
	}

	return r.enqueueInProcess(ctx, entry, wrapped)
}

func (r *Router) enqueueInProcess(ctx context.Context, entry Entry, wrapped WrappedPayload) error {
	if r.Queue == nil {
		return fmt.Errorf("outbox: no in-process queue configured")
	}
	group := entry.Queue
	if group == "" {
		group = r.groupDefault()
	}
	job := asyncqueue.Job{Name: r.jobName(entry), Payload: wrapped, Group: group}

	if entry.DelaySeconds > 0 {
		at := entry.ScheduledAt
		if at.Before(time.Now()) {
			at = time.Now().Add(time.Duration(entry.DelaySeconds) * time.Second)
		}
		return r.Queue.ScheduleSingle(ctx, at, job)
	}
	return r.Queue.EnqueueAsync(ctx, job)
}

func (r *Router) maxInProcessBytes() int {
	if r.MaxInProcessBytes > 0 {
		return r.MaxInProcessBytes
	}
	return 50_000
}

func (r *Router) groupDefault() string {
	if r.DefaultGroup != "" {
		return r.DefaultGroup
	}
	return "default"
}

func (r *Router) jobName(entry Entry) string {
	if r.JobName != nil {
		return r.JobName(entry)
	}
	return "outbox_integration_" + entry.IntegrationAction
}
