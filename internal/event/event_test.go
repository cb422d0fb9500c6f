package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type plainDomainEvent struct{ action string }

func (e plainDomainEvent) Name() string   { return "plain" }
func (e plainDomainEvent) Action() string { return e.action }

type integrationEvent struct {
	action string
	unique bool
}

func (e integrationEvent) Name() string              { return "integration" }
func (e integrationEvent) Action() string             { return e.action }
func (e integrationEvent) IntegrationAction() string  { return e.action }
func (e integrationEvent) Payload() map[string]any    { return map[string]any{"k": "v"} }
func (e integrationEvent) Delay() int                 { return 0 }
func (e integrationEvent) IsUnique() bool             { return e.unique }

type recordingBus struct {
	published []IntegrationEvent
	err       error
}

func (b *recordingBus) Publish(ctx context.Context, e IntegrationEvent) error {
	b.published = append(b.published, e)
	return b.err
}

func TestRouter_Publish_DispatchesLocallyAlways(t *testing.T) {
	dispatcher := NewInProcessDispatcher()
	var seen []string
	dispatcher.Subscribe("x", func(e DomainEvent) { seen = append(seen, e.Name()) })

	r := NewRouter(dispatcher, nil)
	assert.NoError(t, r.Publish(context.Background(), plainDomainEvent{action: "x"}))
	assert.Equal(t, []string{"plain"}, seen)
}

func TestRouter_Publish_ForwardsIntegrationEventsToBus(t *testing.T) {
	bus := &recordingBus{}
	r := NewRouter(NewInProcessDispatcher(), bus)

	assert.NoError(t, r.Publish(context.Background(), integrationEvent{action: "y"}))
	assert.Len(t, bus.published, 1)
}

func TestRouter_Publish_PlainDomainEventDoesNotReachBus(t *testing.T) {
	bus := &recordingBus{}
	r := NewRouter(NewInProcessDispatcher(), bus)

	assert.NoError(t, r.Publish(context.Background(), plainDomainEvent{action: "x"}))
	assert.Empty(t, bus.published)
}

func TestRouter_Publish_PropagatesBusError(t *testing.T) {
	wantErr := errors.New("boom")
	bus := &recordingBus{err: wantErr}
	r := NewRouter(NewInProcessDispatcher(), bus)

	err := r.Publish(context.Background(), integrationEvent{action: "y"})
	assert.ErrorIs(t, err, wantErr)
}

func TestInProcessDispatcher_Dispatch_OnlyCallsMatchingAction(t *testing.T) {
	d := NewInProcessDispatcher()
	var aCalls, bCalls int
	d.Subscribe("a", func(e DomainEvent) { aCalls++ })
	d.Subscribe("b", func(e DomainEvent) { bCalls++ })

	d.Dispatch(plainDomainEvent{action: "a"})
	assert.Equal(t, 1, aCalls)
	assert.Equal(t, 0, bCalls)
}

func TestInProcessDispatcher_Dispatch_MultipleSubscribersAllRun(t *testing.T) {
	d := NewInProcessDispatcher()
	calls := 0
	d.Subscribe("a", func(e DomainEvent) { calls++ })
	d.Subscribe("a", func(e DomainEvent) { calls++ })

	d.Dispatch(plainDomainEvent{action: "a"})
	assert.Equal(t, 2, calls)
}
