package logger

// Noop is a logger that discards all messages. It is primarily used in tests.
type Noop struct{}

// NewNoop creates a new no-op logger.
func NewNoop() Interface {
	return &Noop{}
}

// Debug does nothing.
func (n *Noop) Debug(msg string, fields ...any) {}

// Info does nothing.
func (n *Noop) Info(msg string, fields ...any) {}

// Warn does nothing.
func (n *Noop) Warn(msg string, fields ...any) {}

// Error does nothing.
func (n *Noop) Error(msg string, fields ...any) {}

// Fatal does nothing.
func (n *Noop) Fatal(msg string, fields ...any) {}

// With returns the same no-op logger.
func (n *Noop) With(fields ...any) Interface { return n }

// WithComponent returns the same no-op logger.
func (n *Noop) WithComponent(component string) Interface { return n }

// WithError returns the same no-op logger.
func (n *Noop) WithError(err error) Interface { return n }
