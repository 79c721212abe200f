package focus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayIsFIFO(t *testing.T) {
	r := NewRelay(3)
	require.NoError(t, r.Send(ActiveWindow{AppID: "a"}))
	require.NoError(t, r.Send(ActiveWindow{AppID: "b"}))
	require.NoError(t, r.Send(ActiveWindow{AppID: "c"}))

	assert.Equal(t, []ActiveWindow{{AppID: "a"}, {AppID: "b"}, {AppID: "c"}}, drainAll(r))
}

func TestRelaySendAfterCloseFails(t *testing.T) {
	r := NewRelay(3)
	r.Close()
	r.Close()

	assert.ErrorIs(t, r.Send(ActiveWindow{AppID: "a"}), ErrRelayClosed)
	assert.Equal(t, 0, r.Len())
}

func TestRelayCloseUnblocksFullSend(t *testing.T) {
	r := NewRelay(1)
	require.NoError(t, r.Send(ActiveWindow{AppID: "a"}))

	errc := make(chan error, 1)
	go func() { errc <- r.Send(ActiveWindow{AppID: "b"}) }()

	select {
	case <-errc:
		t.Fatal("send on a full relay returned early")
	case <-time.After(20 * time.Millisecond):
	}

	r.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrRelayClosed)
	case <-time.After(time.Second):
		t.Fatal("send stayed blocked after close")
	}
}

func TestRelayDefaultCapacity(t *testing.T) {
	r := NewRelay(0)
	assert.Equal(t, DefaultRelayCapacity, cap(r.ch))
}
