package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusWatcher/internal/focus"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delivery(appID, title string, err error) focus.Delivery {
	return focus.Delivery{
		Window: focus.ActiveWindow{AppID: appID, Title: title},
		At:     time.Now(),
		Err:    err,
	}
}

func TestHealth(t *testing.T) {
	srv := NewServer(NewTracker(), nil, "test")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestCurrentWindow(t *testing.T) {
	tracker := NewTracker()
	srv := NewServer(tracker, nil, "test")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/window/current", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tracker.Observe(delivery("firefox", "Inbox", nil))
	tracker.Observe(delivery("foot", "~", errors.New("server said no")))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/window/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got WindowStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "foot", got.AppID)
	assert.Equal(t, "~", got.Title)
	assert.Equal(t, "server said no", got.Error)
}

func TestConfigWithoutManager(t *testing.T) {
	srv := NewServer(NewTracker(), nil, "test")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWindowStream(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe(delivery("firefox", "Inbox", nil))

	srv := NewServer(tracker, nil, "test")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/window/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first WindowStatus
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "firefox", first.AppID)

	// Subscription happens before the initial write, so this is not lost
	tracker.Observe(delivery("foot", "~", nil))

	var second WindowStatus
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "foot", second.AppID)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestTrackerCloseEndsSubscriptions(t *testing.T) {
	tracker := NewTracker()
	ch := tracker.Subscribe()

	tracker.Close()
	_, ok := <-ch
	assert.False(t, ok)

	tracker.Unsubscribe(ch)

	late := tracker.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
