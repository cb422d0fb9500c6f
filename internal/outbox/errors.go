package outbox

import "errors"

// ErrNotFound is returned when a lookup by event_id matches no row.
var ErrNotFound = errors.New("outbox: entry not found")

// ErrPublishNotHandled is returned by a Publisher when an external
// transport was required but nothing handled the delivery, so the caller
// can surface the misconfiguration through the normal retry/DLQ path
// instead of silently dropping the event.
var ErrPublishNotHandled = errors.New("outbox: no sink handled external publish")
