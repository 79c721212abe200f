package wayland

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	displayID = 1

	displayRequestSync        = 0
	displayRequestGetRegistry = 1
	displayEventDeleteID      = 1

	registryRequestBind = 0
	registryEventGlobal = 0

	callbackEventDone = 0

	firstServerID = 0xff000000
)

var wire = binary.NativeEndian

// fakeCompositor speaks just enough of the Wayland wire protocol to drive a
// Session: the registry, wl_display.sync and the foreign toplevel manager.
type fakeCompositor struct {
	offerManager bool

	mu         sync.Mutex
	conn       net.Conn
	registryID uint32
	managerID  uint32
	nextID     uint32
	queued     []func() [][]byte
	callbacks  []uint32
	destroyed  []uint32
	stopped    bool
}

// startCompositor listens on a socket under a temp XDG_RUNTIME_DIR and serves
// one client.
func startCompositor(t *testing.T, offerManager bool) *fakeCompositor {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("WAYLAND_DISPLAY", "wl-test")

	ln, err := net.Listen("unix", filepath.Join(dir, "wl-test"))
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	fc := &fakeCompositor{offerManager: offerManager, nextID: firstServerID}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fc.mu.Lock()
		fc.conn = conn
		fc.mu.Unlock()
		fc.serve(conn)
	}()
	t.Cleanup(func() {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		if fc.conn != nil {
			fc.conn.Close()
		}
	})
	return fc
}

func (fc *fakeCompositor) serve(conn net.Conn) {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		object := wire.Uint32(header[0:])
		sizeOpcode := wire.Uint32(header[4:])
		body := make([]byte, int(sizeOpcode>>16)-8)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		for _, msg := range fc.handle(object, uint16(sizeOpcode), body) {
			if _, err := conn.Write(msg); err != nil {
				return
			}
		}
	}
}

func (fc *fakeCompositor) handle(object uint32, opcode uint16, body []byte) [][]byte {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	// new_id is the last argument of every request handled here
	var newID uint32
	if len(body) >= 4 {
		newID = wire.Uint32(body[len(body)-4:])
	}

	switch {
	case object == displayID && opcode == displayRequestGetRegistry:
		fc.registryID = newID
		if !fc.offerManager {
			return [][]byte{
				message(newID, registryEventGlobal, uint32(1), "wl_compositor", uint32(4)),
			}
		}
		return [][]byte{
			message(newID, registryEventGlobal, uint32(1), "wl_compositor", uint32(4)),
			message(newID, registryEventGlobal, uint32(2), managerInterface, uint32(3)),
		}

	case object == displayID && opcode == displayRequestSync:
		fc.callbacks = append(fc.callbacks, newID)
		var out [][]byte
		for _, q := range fc.queued {
			out = append(out, q()...)
		}
		fc.queued = nil
		return append(out,
			message(newID, callbackEventDone, uint32(0)),
			message(displayID, displayEventDeleteID, newID),
		)

	case object == fc.registryID && opcode == registryRequestBind:
		fc.managerID = newID

	case object == fc.managerID && opcode == managerRequestStop:
		fc.stopped = true

	case object >= firstServerID && opcode == handleRequestDestroy:
		fc.destroyed = append(fc.destroyed, object)
		return [][]byte{message(displayID, displayEventDeleteID, object)}
	}
	return nil
}

// announce queues a new toplevel for the next sync and returns its id.
func (fc *fakeCompositor) announce(appID, title string, states ...uint32) uint32 {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	id := fc.nextID
	fc.nextID++
	fc.queued = append(fc.queued, func() [][]byte {
		return [][]byte{
			message(fc.managerID, managerEventToplevel, id),
			message(id, handleEventTitle, title),
			message(id, handleEventAppID, appID),
			message(id, handleEventState, states),
			message(id, handleEventDone),
		}
	})
	return id
}

// close queues the closed event for a toplevel.
func (fc *fakeCompositor) close(id uint32) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.queued = append(fc.queued, func() [][]byte {
		return [][]byte{message(id, handleEventClosed)}
	})
}

func (fc *fakeCompositor) snapshot() (callbacks, destroyed []uint32, stopped bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]uint32(nil), fc.callbacks...), append([]uint32(nil), fc.destroyed...), fc.stopped
}

// message encodes one event. Arguments are uint32, string or []uint32.
func message(object uint32, opcode uint16, args ...interface{}) []byte {
	var body []byte
	for _, arg := range args {
		switch v := arg.(type) {
		case uint32:
			body = wire.AppendUint32(body, v)
		case string:
			body = wire.AppendUint32(body, uint32(len(v)+1))
			body = append(body, v...)
			body = append(body, 0)
			body = pad(body)
		case []uint32:
			body = wire.AppendUint32(body, uint32(4*len(v)))
			for _, x := range v {
				body = wire.AppendUint32(body, x)
			}
		default:
			panic(errors.New("unsupported argument type"))
		}
	}

	msg := wire.AppendUint32(nil, object)
	msg = wire.AppendUint32(msg, uint32(len(body)+8)<<16|uint32(opcode))
	return append(msg, body...)
}

func pad(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
