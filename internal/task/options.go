package task

type options struct {
	name     string
	affinity Affinity
	blocking bool
	critical bool
}

// Option configures a node at construction.
type Option func(*options)

// WithName sets the display name used in logs and events.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithAffinity selects the lane the node runs on. Defaults to Concurrent.
func WithAffinity(a Affinity) Option {
	return func(o *options) { o.affinity = a }
}

// WithBlocking marks the node as one the host should show a busy indicator for.
func WithBlocking() Option {
	return func(o *options) { o.blocking = true }
}

// WithCritical makes an unhandled fault in the node cancel the manager's token.
func WithCritical() Option {
	return func(o *options) { o.critical = true }
}
