package wayland

import (
	"github.com/bryanchriswhite/FocusWatcher/internal/focus"
	"github.com/neurlang/wayland/wl"
)

// zwlr_foreign_toplevel_management_unstable_v1
const (
	managerInterface  = "zwlr_foreign_toplevel_manager_v1"
	maxManagerVersion = 3

	managerRequestStop = 0

	managerEventToplevel = 0
	managerEventFinished = 1

	handleRequestDestroy = 7

	handleEventTitle       = 0
	handleEventAppID       = 1
	handleEventOutputEnter = 2
	handleEventOutputLeave = 3
	handleEventState       = 4
	handleEventDone        = 5
	handleEventClosed      = 6
	handleEventParent      = 7

	stateActivated = 2
)

// toplevelManager is the client side of zwlr_foreign_toplevel_manager_v1.
type toplevelManager struct {
	wl.BaseProxy
	session *Session
}

func newToplevelManager(s *Session) *toplevelManager {
	m := &toplevelManager{session: s}
	s.display.Context().Register(m)
	return m
}

// Dispatch implements wl.Dispatcher
func (m *toplevelManager) Dispatch(ev *wl.Event) {
	switch ev.Opcode {
	case managerEventToplevel:
		m.session.newToplevel(ev.Uint32())
	case managerEventFinished:
		m.session.finished = true
	}
}

func (m *toplevelManager) stop() error {
	return m.Context().SendRequest(m, managerRequestStop)
}

// toplevelHandle accumulates the double-buffered state of one
// zwlr_foreign_toplevel_handle_v1 until its done event.
type toplevelHandle struct {
	wl.BaseProxy
	session *Session

	identity  focus.ToplevelIdentity
	appID     string
	title     string
	activated bool
	announced bool
}

// Dispatch implements wl.Dispatcher
func (h *toplevelHandle) Dispatch(ev *wl.Event) {
	switch ev.Opcode {
	case handleEventTitle:
		h.title = ev.String()
	case handleEventAppID:
		h.appID = ev.String()
	case handleEventState:
		h.activated = hasState(ev.Array(), stateActivated)
	case handleEventDone:
		h.session.toplevelDone(h)
	case handleEventClosed:
		h.session.toplevelClosed(h)
	case handleEventOutputEnter, handleEventOutputLeave, handleEventParent:
		// outputs and parents are not tracked
	}
}

func (h *toplevelHandle) snapshot() focus.Toplevel {
	return focus.Toplevel{
		Identity:  h.identity,
		AppID:     h.appID,
		Title:     h.title,
		Activated: h.activated,
	}
}

// destroy sends the destroy request and forgets the handle. The id itself is
// freed by the compositor's delete_id.
func (h *toplevelHandle) destroy() error {
	ctx := h.Context()
	if ctx == nil {
		return nil
	}
	err := ctx.SendRequest(h, handleRequestDestroy)
	h.Unregister()
	return err
}

func hasState(states []int32, want int32) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}
