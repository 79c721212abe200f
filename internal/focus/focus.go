// Package focus bridges a blocking toplevel-tracking protocol session and a
// polling reporter.
//
// The Watcher owns the protocol session on a dedicated OS thread and pushes an
// ActiveWindow onto a bounded Relay whenever the activated toplevel changes.
// The Reporter drains the relay without blocking on every tick and delivers the
// most recent snapshot to a Sink under a timeout. Closing the Reporter closes
// the relay, which is the Watcher's signal to exit.
package focus

import (
	"context"
	"errors"
)

var (
	// ErrCapabilityMissing is returned from Start when the compositor does not
	// offer the toplevel-tracking extension. There is no fallback source.
	ErrCapabilityMissing = errors.New("required toplevel protocol not available")

	// ErrRelayClosed is returned by Relay.Send once the consumer closed the relay.
	ErrRelayClosed = errors.New("relay closed")

	// ErrWatcherStopped is returned by Reporter.Run when the watcher exited
	// without a recorded error while the reporter was still running.
	ErrWatcherStopped = errors.New("watcher stopped")
)

// ActiveWindow is one activation event: the app id and title of the toplevel
// that just became active.
type ActiveWindow struct {
	AppID string `json:"app_id"`
	Title string `json:"title"`
}

// ToplevelIdentity identifies a tracked toplevel for as long as it exists.
// It is only ever compared for equality.
type ToplevelIdentity string

// Toplevel is a session's current view of one toplevel surface.
type Toplevel struct {
	Identity  ToplevelIdentity
	AppID     string
	Title     string
	Activated bool
}

// ToplevelHandler receives toplevel notifications while a Session dispatches.
type ToplevelHandler interface {
	ToplevelNew(t Toplevel)
	ToplevelUpdated(t Toplevel)
	ToplevelClosed(t Toplevel)
}

// Session is a connected protocol session with the toplevel extension bound.
// Roundtrip flushes outgoing requests, blocks until the compositor has
// answered, and calls h for every toplevel event seen on the way.
type Session interface {
	Roundtrip(h ToplevelHandler) error
	Close() error
}

// Connector opens a Session. It must fail with an error wrapping
// ErrCapabilityMissing when the extension cannot be bound.
type Connector func() (Session, error)

// Sink receives the active window on every reporting tick.
type Sink interface {
	SendActiveWindow(ctx context.Context, appID, title string) error
}
