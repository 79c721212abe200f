// Package wayland implements focus.Session on the wlroots foreign toplevel
// management protocol.
package wayland

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/FocusWatcher/internal/focus"
	"github.com/bryanchriswhite/FocusWatcher/internal/logger"
	"github.com/neurlang/wayland/wl"
	"github.com/rs/zerolog"
)

var errManagerFinished = errors.New("compositor finished the toplevel manager")

// Session is a Wayland connection with the toplevel manager bound. It is
// confined to the thread that created it.
type Session struct {
	display  *wl.Display
	registry *wl.Registry
	manager  *toplevelManager
	log      *zerolog.Logger

	managerFound   bool
	managerName    uint32
	managerVersion uint32

	handler    focus.ToplevelHandler
	generation uint64
	finished   bool
	protoErr   error
}

// Connect opens the display named by the environment, enumerates globals
// and binds the foreign toplevel manager. It satisfies focus.Connector.
func Connect() (focus.Session, error) {
	log := logger.WithComponent("wayland")

	display, err := wl.Connect("")
	if err != nil {
		return nil, fmt.Errorf("connect to wayland display: %w", err)
	}

	s := &Session{display: display, log: log}
	display.AddErrorHandler(s)
	display.AddDeleteIdHandler(s)

	registry, err := display.GetRegistry()
	if err != nil {
		s.closeDisplay()
		return nil, fmt.Errorf("get registry: %w", err)
	}
	s.registry = registry
	registry.AddGlobalHandler(s)

	if err := s.sync(); err != nil {
		s.closeDisplay()
		return nil, fmt.Errorf("enumerate globals: %w", err)
	}

	if !s.managerFound {
		s.closeDisplay()
		return nil, fmt.Errorf("%w: compositor does not offer %s", focus.ErrCapabilityMissing, managerInterface)
	}

	version := s.managerVersion
	if version > maxManagerVersion {
		version = maxManagerVersion
	}

	s.manager = newToplevelManager(s)
	if err := registry.Bind(s.managerName, managerInterface, version, s.manager); err != nil {
		s.closeDisplay()
		return nil, fmt.Errorf("bind %s: %w", managerInterface, err)
	}

	log.Info().
		Str("interface", managerInterface).
		Uint32("version", version).
		Msg("Foreign toplevel manager bound")

	return s, nil
}

// HandleRegistryGlobal records the toplevel manager global when announced.
func (s *Session) HandleRegistryGlobal(ev wl.RegistryGlobalEvent) {
	if ev.Interface != managerInterface {
		return
	}
	s.managerFound = true
	s.managerName = ev.Name
	s.managerVersion = ev.Version
}

// HandleDisplayError records a fatal protocol error raised by the compositor.
func (s *Session) HandleDisplayError(ev wl.DisplayErrorEvent) {
	s.protoErr = fmt.Errorf("wayland protocol error %d: %s", ev.Code, ev.Message)
}

// HandleDisplayDeleteId drops the proxy for an id the compositor has retired.
func (s *Session) HandleDisplayDeleteId(ev wl.DisplayDeleteIdEvent) {
	p := s.display.Context().LookupProxy(wl.ProxyId(ev.Id))
	if p == nil {
		return
	}
	if u, ok := p.(interface{ Unregister() }); ok {
		u.Unregister()
	}
}

// Roundtrip flushes pending requests and dispatches events until the
// compositor has processed everything sent so far.
func (s *Session) Roundtrip(h focus.ToplevelHandler) error {
	s.handler = h
	defer func() { s.handler = nil }()

	if err := s.sync(); err != nil {
		return err
	}
	if s.finished {
		return errManagerFinished
	}
	return nil
}

// Close stops the manager and closes the connection.
func (s *Session) Close() error {
	if s.manager != nil && !s.finished {
		if err := s.manager.stop(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to stop toplevel manager")
		}
	}
	return s.closeDisplay()
}

func (s *Session) closeDisplay() error {
	return s.display.Context().Close()
}

// sync blocks until the compositor has answered a wl_display.sync, then
// releases the callback.
func (s *Session) sync() error {
	cb, err := s.display.Sync()
	if err != nil {
		return fmt.Errorf("display sync: %w", err)
	}
	defer cb.Unregister()

	if err := s.display.Context().RunTill(cb); err != nil {
		if s.protoErr != nil {
			return s.protoErr
		}
		return fmt.Errorf("dispatch: %w", err)
	}
	return s.protoErr
}

func (s *Session) newToplevel(id uint32) {
	s.generation++
	h := &toplevelHandle{session: s}
	s.display.Context().RegisterMapped(h, id)
	h.identity = focus.ToplevelIdentity(fmt.Sprintf("%d.%d", id, s.generation))

	s.log.Trace().Str("identity", string(h.identity)).Msg("Toplevel announced")
}

func (s *Session) toplevelDone(h *toplevelHandle) {
	if s.handler == nil {
		return
	}
	if !h.announced {
		h.announced = true
		s.handler.ToplevelNew(h.snapshot())
		return
	}
	s.handler.ToplevelUpdated(h.snapshot())
}

func (s *Session) toplevelClosed(h *toplevelHandle) {
	if s.handler != nil {
		s.handler.ToplevelClosed(h.snapshot())
	}
	if err := h.destroy(); err != nil {
		s.log.Debug().Err(err).Str("identity", string(h.identity)).Msg("Failed to destroy toplevel handle")
	}
}
