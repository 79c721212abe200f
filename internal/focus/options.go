package focus

import (
	"time"

	"github.com/bryanchriswhite/FocusWatcher/internal/logger"
	"github.com/rs/zerolog"
)

const (
	// DefaultDispatchInterval is the pause between round-trips
	DefaultDispatchInterval = 10 * time.Millisecond
	// DefaultSendTimeout bounds a single sink delivery
	DefaultSendTimeout = 800 * time.Millisecond
	// DefaultIterationTimeout is the caller's per-tick budget
	DefaultIterationTimeout = time.Second
)

type options struct {
	relayCapacity    int
	dispatchInterval time.Duration
	sendTimeout      time.Duration
	iterationTimeout time.Duration
	observer         Observer
	watcherLog       *zerolog.Logger
	reporterLog      *zerolog.Logger
}

// Option configures Start.
type Option func(*options)

func defaultOptions() options {
	return options{
		relayCapacity:    DefaultRelayCapacity,
		dispatchInterval: DefaultDispatchInterval,
		sendTimeout:      DefaultSendTimeout,
		iterationTimeout: DefaultIterationTimeout,
		watcherLog:       logger.WithComponent("focus-watcher"),
		reporterLog:      logger.WithComponent("focus-reporter"),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRelayCapacity sets the relay buffer size.
func WithRelayCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.relayCapacity = n
		}
	}
}

// WithDispatchInterval sets the sleep between protocol round-trips.
func WithDispatchInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dispatchInterval = d
		}
	}
}

// WithSendTimeout bounds each delivery to the sink. It should stay below the
// iteration timeout.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sendTimeout = d
		}
	}
}

// WithIterationTimeout sets the per-tick budget used by Reporter.Run.
func WithIterationTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.iterationTimeout = d
		}
	}
}

// WithObserver registers a callback invoked after every delivery attempt.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithLogger replaces both component loggers.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		w := l.With().Str("component", "focus-watcher").Logger()
		r := l.With().Str("component", "focus-reporter").Logger()
		o.watcherLog = &w
		o.reporterLog = &r
	}
}
