package discovery

// Listener yields raw advertised service instance names as they arrive on
// the network. Implementations own the underlying transport; Close releases
// it and closes the Names channel.
type Listener interface {
	// Names returns the channel of raw advertised names. The channel is
	// closed when the listener shuts down.
	Names() <-chan string

	// Close stops the listener. Safe to call multiple times.
	Close() error
}
