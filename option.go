package daide

// options holds the configuration for a connection.
type options struct {
	logger Logger
	dialer Dialer

	// onIncoming is called once per readable notification that queued at
	// least one incoming frame.
	onIncoming func(c *Conn)
	// onConnect is called with the result of the asynchronous connect.
	onConnect func(c *Conn, err error)
	// onClose is called after a close notification.
	onClose func(c *Conn, err error)

	readBufferSize int // size of the per-read scratch buffer
}

// Option is a function that configures connection options.
type Option func(*options)

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// DialerOption returns an Option that sets the dialer used by Connect.
// If not set, a non-blocking TCP socket dialer is used.
func DialerOption(dialer Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// ReadBufferSizeOption returns an Option that sets how many bytes a single
// readable notification reads at most. It does not limit the frame size.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// OnIncomingOption returns an Option that sets the callback invoked after
// new frames were queued for Pull.
func OnIncomingOption(cb func(c *Conn)) Option {
	return func(o *options) {
		o.onIncoming = cb
	}
}

// OnConnectOption returns an Option that sets the callback invoked with the
// result of the asynchronous connect.
func OnConnectOption(cb func(c *Conn, err error)) Option {
	return func(o *options) {
		o.onConnect = cb
	}
}

// OnCloseOption returns an Option that sets the callback invoked after a close
// notification. The callback may Destroy the connection.
func OnCloseOption(cb func(c *Conn, err error)) Option {
	return func(o *options) {
		o.onClose = cb
	}
}

// defaultReadBufferSize is the default per-read scratch size.
const defaultReadBufferSize = 1024

// checkOptions sets default values for connection options.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.dialer == nil {
		opts.dialer = defaultDialer()
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}
}
