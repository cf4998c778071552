package assembler

// Option adjusts a single assembly call.
type Option func(*callOptions)

type callOptions struct {
	maxMessages int
	maxMemories int
}

func applyOptions(opts []Option) callOptions {
	var call callOptions
	for _, opt := range opts {
		opt(&call)
	}
	return call
}

// WithMaxMessages overrides the strategy policy's message cap for one
// conversation bundle. It bounds both the recent turn window and the number
// of included memories. Values <= 0 are ignored.
func WithMaxMessages(n int) Option {
	return func(c *callOptions) {
		c.maxMessages = n
	}
}

// WithMaxMemories overrides the configured cross-conversation memory cap for
// one user bundle. Values <= 0 are ignored.
func WithMaxMemories(n int) Option {
	return func(c *callOptions) {
		c.maxMemories = n
	}
}
