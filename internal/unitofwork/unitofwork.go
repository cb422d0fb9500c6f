// Package unitofwork buffers events recorded by aggregates during one
// command so they can be drained and routed atomically before commit.
package unitofwork

import "github.com/richardliu001/reliability-core/internal/event"

// AggregateRoot is satisfied by any aggregate that records domain events
// as it mutates, the way the teacher's WalletService mutates a wallet and
// appends a transaction row in one pass.
type AggregateRoot interface {
	// RecordedEvents returns events recorded so far and clears the
	// aggregate's internal buffer.
	RecordedEvents() []event.DomainEvent
}

// UnitOfWork is a per-command buffer of recorded-but-not-yet-routed events,
// plus an audit trail of what has already been drained this command.
type UnitOfWork struct {
	pending   []event.DomainEvent
	published []event.DomainEvent
}

// New returns an empty UnitOfWork.
func New() *UnitOfWork {
	return &UnitOfWork{}
}

// Reset clears both the pending queue and the published audit log. Pipeline
// middleware calls this before invoking the handler so state never leaks
// between commands sharing the same UnitOfWork instance.
func (u *UnitOfWork) Reset() {
	u.pending = nil
	u.published = nil
}

// Record appends a single event directly to the pending queue.
func (u *UnitOfWork) Record(e event.DomainEvent) {
	u.pending = append(u.pending, e)
}

// CollectFrom drains every event recorded by agg and appends them to the
// pending queue, preserving the aggregate's recording order.
func (u *UnitOfWork) CollectFrom(agg AggregateRoot) {
	u.pending = append(u.pending, agg.RecordedEvents()...)
}

// Drain returns the queued events, appends them to the published audit
// log, and empties the pending queue. Safe to call multiple times per
// command; later calls only return newly recorded events.
func (u *UnitOfWork) Drain() []event.DomainEvent {
	drained := u.pending
	u.pending = nil
	u.published = append(u.published, drained...)
	return drained
}

// Published returns every event drained since the last Reset.
func (u *UnitOfWork) Published() []event.DomainEvent {
	return u.published
}
