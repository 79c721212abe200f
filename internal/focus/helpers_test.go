package focus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type eventKind int

const (
	evNew eventKind = iota
	evUpdated
	evClosed
)

type fakeEvent struct {
	kind eventKind
	t    Toplevel
}

func activated(id, appID, title string) Toplevel {
	return Toplevel{Identity: ToplevelIdentity(id), AppID: appID, Title: title, Activated: true}
}

func inactive(id, appID, title string) Toplevel {
	return Toplevel{Identity: ToplevelIdentity(id), AppID: appID, Title: title}
}

// scriptedSession replays one batch of events per Roundtrip. Once the script
// is exhausted it returns err, or idles if err is nil.
type scriptedSession struct {
	mu      sync.Mutex
	batches [][]fakeEvent
	err     error
	rounds  int
	closed  bool
}

func (s *scriptedSession) Roundtrip(h ToplevelHandler) error {
	s.mu.Lock()
	var batch []fakeEvent
	if s.rounds < len(s.batches) {
		batch = s.batches[s.rounds]
	} else if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	s.rounds++
	s.mu.Unlock()

	for _, ev := range batch {
		switch ev.kind {
		case evNew:
			h.ToplevelNew(ev.t)
		case evUpdated:
			h.ToplevelUpdated(ev.t)
		case evClosed:
			h.ToplevelClosed(ev.t)
		}
	}
	return nil
}

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// flappingSession activates a different toplevel on every round-trip.
type flappingSession struct {
	rounds atomic.Int64
	closed atomic.Bool
}

func (s *flappingSession) Roundtrip(h ToplevelHandler) error {
	i := s.rounds.Add(1)
	id := fmt.Sprintf("toplevel-%d", i%2)
	h.ToplevelUpdated(activated(id, "app"+id, fmt.Sprintf("round %d", i)))
	return nil
}

func (s *flappingSession) Close() error {
	s.closed.Store(true)
	return nil
}

type recordingSink struct {
	mu    sync.Mutex
	calls []ActiveWindow
	err   error
}

func (s *recordingSink) SendActiveWindow(_ context.Context, appID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ActiveWindow{AppID: appID, Title: title})
	return s.err
}

func (s *recordingSink) sent() []ActiveWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ActiveWindow(nil), s.calls...)
}

// stuckSink never returns until released, regardless of ctx.
type stuckSink struct {
	release chan struct{}
	calls   atomic.Int64
}

func newStuckSink() *stuckSink {
	return &stuckSink{release: make(chan struct{})}
}

func (s *stuckSink) SendActiveWindow(context.Context, string, string) error {
	s.calls.Add(1)
	<-s.release
	return nil
}

func quietOptions(extra ...Option) []Option {
	return append([]Option{WithLogger(zerolog.Nop())}, extra...)
}

func drainAll(r *Relay) []ActiveWindow {
	var out []ActiveWindow
	for {
		w, ok := r.TryRecv()
		if !ok {
			return out
		}
		out = append(out, w)
	}
}
