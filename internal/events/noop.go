package events

import "context"

// NoopPublisher drops cache and run events. The server uses it when
// NAVGRAPH_NATS_URL is unset so publishing never needs a nil check.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

// Publish discards event.
func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

// Close is a no-op.
func (*NoopPublisher) Close() error { return nil }
