package focus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Delivery describes one attempt to hand the active window to the sink.
type Delivery struct {
	Window   ActiveWindow `json:"window"`
	At       time.Time    `json:"at"`
	TimedOut bool         `json:"timed_out"`
	Err      error        `json:"-"`
}

// Observer is notified after every delivery attempt. It runs on the
// reporter's goroutine and must not block.
type Observer func(Delivery)

// Reporter is the consumer side of the relay. It is not safe for concurrent
// use; one goroutine drives it.
type Reporter struct {
	relay   *Relay
	watcher *Watcher

	lastKnown *ActiveWindow

	sendTimeout      time.Duration
	iterationTimeout time.Duration
	observer         Observer
	log              *zerolog.Logger
}

func newReporter(relay *Relay, watcher *Watcher, o options) *Reporter {
	return &Reporter{
		relay:            relay,
		watcher:          watcher,
		sendTimeout:      o.sendTimeout,
		iterationTimeout: o.iterationTimeout,
		observer:         o.observer,
		log:              o.reporterLog,
	}
}

// NewReporter creates a reporter reading from relay with no watcher attached.
func NewReporter(relay *Relay, opts ...Option) *Reporter {
	return newReporter(relay, nil, buildOptions(opts))
}

// RunIteration drains every queued snapshot, keeps the newest and delivers
// the last known window to sink. A delivery that exceeds the send timeout is
// logged and reported as success; the snapshot is kept for the next tick. An
// error returned by the sink is propagated.
func (r *Reporter) RunIteration(ctx context.Context, sink Sink) error {
	active, ok := r.Poll()
	if !ok {
		return nil
	}

	timedOut, err := r.deliver(ctx, sink, active)
	if r.observer != nil {
		r.observer(Delivery{
			Window:   active,
			At:       time.Now(),
			TimedOut: timedOut,
			Err:      err,
		})
	}
	if err != nil {
		return fmt.Errorf("send heartbeat for active window %q: %w", active.AppID, err)
	}
	return nil
}

func (r *Reporter) drain() {
	for {
		w, ok := r.relay.TryRecv()
		if !ok {
			return
		}
		r.lastKnown = &w
	}
}

// deliver calls the sink on its own goroutine so a sink that ignores ctx
// still cannot hold the reporter past the send timeout.
func (r *Reporter) deliver(ctx context.Context, sink Sink, w ActiveWindow) (bool, error) {
	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- sink.SendActiveWindow(sendCtx, w.AppID, w.Title)
	}()

	select {
	case err := <-result:
		if err == nil {
			return false, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			r.logTimeout(w)
			return true, nil
		}
		return false, err
	case <-sendCtx.Done():
		if err := ctx.Err(); err != nil {
			return false, err
		}
		r.logTimeout(w)
		return true, nil
	}
}

func (r *Reporter) logTimeout(w ActiveWindow) {
	r.log.Warn().
		Str("app_id", w.AppID).
		Dur("timeout", r.sendTimeout).
		Msg("Sending active window timed out, keeping it for the next tick")
}

// Run drives RunIteration every interval until ctx is done or the watcher
// exits. Iteration failures are logged and do not stop the loop. When the
// watcher dies Run returns its error.
func (r *Reporter) Run(ctx context.Context, sink Sink, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.Done():
			if err := r.Err(); err != nil {
				return err
			}
			return ErrWatcherStopped
		case <-ticker.C:
			iterCtx, cancel := context.WithTimeout(ctx, r.iterationTimeout)
			err := r.RunIteration(iterCtx, sink)
			cancel()
			if err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("Reporting iteration failed")
			}
		}
	}
}

// Poll drains the relay without blocking and returns the newest snapshot seen
// so far, from this call or an earlier one.
func (r *Reporter) Poll() (ActiveWindow, bool) {
	r.drain()
	return r.LastKnown()
}

// LastKnown returns the most recently drained snapshot.
func (r *Reporter) LastKnown() (ActiveWindow, bool) {
	if r.lastKnown == nil {
		return ActiveWindow{}, false
	}
	return *r.lastKnown, true
}

// Close drops the consumer side of the relay. The watcher notices on its next
// push or loop turn and exits.
func (r *Reporter) Close() {
	r.relay.Close()
}

// Done is closed when the watcher thread has exited. It is nil, and never
// ready, for a reporter without a watcher.
func (r *Reporter) Done() <-chan struct{} {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Done()
}

// Err returns the watcher's fatal error, if any.
func (r *Reporter) Err() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Err()
}
