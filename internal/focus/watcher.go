package focus

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// Watcher owns a protocol Session and turns toplevel state changes into
// ActiveWindow emissions. All of its state belongs to the watcher thread.
type Watcher struct {
	session  Session
	relay    *Relay
	interval time.Duration
	log      *zerolog.Logger

	activeIdentity ToplevelIdentity
	hasActive      bool
	stopped        bool

	// While priming, nobody drains the relay yet; only the newest
	// activation is kept and pushed once the initial round-trip is over.
	priming bool
	primed  *ActiveWindow

	done chan struct{}
	err  error
}

type startResult struct {
	watcher *Watcher
	err     error
}

// Start connects to the windowing system on a dedicated OS thread, binds the
// toplevel extension and performs one round-trip so toplevels that already
// exist are seen. It returns once startup has succeeded or failed. On failure
// no relay exists and the thread is gone.
func Start(connect Connector, opts ...Option) (*Reporter, error) {
	o := buildOptions(opts)

	ready := make(chan startResult, 1)
	go func() {
		// Dispatch blocks; keep it off the scheduler's shared threads
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		w, err := startWatcher(connect, o)
		ready <- startResult{watcher: w, err: err}
		if err != nil {
			return
		}
		w.run()
	}()

	res := <-ready
	if res.err != nil {
		o.watcherLog.Error().Err(res.err).Msg("Toplevel watcher failed to start")
		return nil, res.err
	}

	return newReporter(res.watcher.relay, res.watcher, o), nil
}

// startWatcher runs on the watcher thread
func startWatcher(connect Connector, o options) (*Watcher, error) {
	log := o.watcherLog
	log.Info().Msg("Starting toplevel watcher")

	session, err := connect()
	if err != nil {
		return nil, fmt.Errorf("connect toplevel session: %w", err)
	}

	w := newWatcher(session, NewRelay(o.relayCapacity), o)

	log.Debug().Msg("Performing initial roundtrip")
	w.priming = true
	if err := session.Roundtrip(w); err != nil {
		session.Close()
		return nil, fmt.Errorf("initial roundtrip: %w", err)
	}
	w.priming = false

	// The relay is empty and has room for at least one, so this cannot block
	if w.primed != nil {
		if err := w.relay.Send(*w.primed); err != nil {
			session.Close()
			return nil, fmt.Errorf("initial roundtrip: %w", err)
		}
		w.primed = nil
	}
	log.Info().Msg("Toplevel watcher initialized")

	return w, nil
}

func newWatcher(session Session, relay *Relay, o options) *Watcher {
	return &Watcher{
		session:  session,
		relay:    relay,
		interval: o.dispatchInterval,
		log:      o.watcherLog,
		done:     make(chan struct{}),
	}
}

// run is the steady-state dispatch loop. It exits on a dispatch error or once
// the relay's consumer is gone.
func (w *Watcher) run() {
	defer close(w.done)
	defer func() {
		if err := w.session.Close(); err != nil {
			w.log.Debug().Err(err).Msg("Failed to close toplevel session")
		}
	}()

	for !w.stopped {
		select {
		case <-w.relay.Closed():
			w.log.Info().Msg("Watcher shutting down: relay closed")
			return
		default:
		}

		if err := w.session.Roundtrip(w); err != nil {
			w.err = fmt.Errorf("toplevel dispatch: %w", err)
			w.log.Error().Err(err).Msg("Toplevel event loop failed, watcher exiting")
			return
		}

		time.Sleep(w.interval)
	}

	w.log.Info().Msg("Watcher shutting down: receiver closed")
}

// ToplevelNew handles a toplevel seen for the first time.
func (w *Watcher) ToplevelNew(t Toplevel) {
	w.observe(t)
}

// ToplevelUpdated handles a state change of a known toplevel.
func (w *Watcher) ToplevelUpdated(t Toplevel) {
	w.observe(t)
}

// ToplevelClosed leaves the active identity and the last report untouched.
// TODO: decide whether closing the active toplevel should report "no window"
// once the sink has a representation for it.
func (w *Watcher) ToplevelClosed(t Toplevel) {
	w.log.Debug().
		Str("app_id", t.AppID).
		Bool("was_active", w.hasActive && w.activeIdentity == t.Identity).
		Msg("Toplevel closed")
}

func (w *Watcher) observe(t Toplevel) {
	if w.stopped || !t.Activated {
		return
	}
	if w.hasActive && w.activeIdentity == t.Identity {
		return
	}

	w.activeIdentity = t.Identity
	w.hasActive = true

	w.log.Debug().
		Str("app_id", t.AppID).
		Str("title", t.Title).
		Msg("Active window changed")

	snapshot := ActiveWindow{AppID: t.AppID, Title: t.Title}
	if w.priming {
		w.primed = &snapshot
		return
	}
	if err := w.relay.Send(snapshot); err != nil {
		// The reporter is gone, which only happens at shutdown
		w.stopped = true
	}
}

// Done is closed when the watcher thread has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Err returns the fatal error that ended the watcher, or nil if it has not
// exited or exited because the relay was closed.
func (w *Watcher) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}
