package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedsync/internal/cache"
	"feedsync/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus session.Status

func (s staticStatus) Status() session.Status { return session.Status(s) }

func newApp(h *Handlers) *fiber.App {
	app := fiber.New()
	app.Get("/health/live", h.Live)
	app.Get("/health/ready", h.Ready)
	app.Get("/status", h.Status)
	return app
}

func TestReady(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := cache.Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	tests := []struct {
		name       string
		status     session.Status
		downRedis  bool
		wantStatus int
	}{
		{"Signed in and connected", session.Status{SignedIn: true, Realtime: "connected"}, false, http.StatusOK},
		{"Realtime disabled", session.Status{SignedIn: true, Realtime: session.RealtimeDisabled}, false, http.StatusOK},
		{"Reconnecting", session.Status{SignedIn: true, Realtime: "connecting"}, false, http.StatusOK},
		{"Signed out", session.Status{Realtime: session.RealtimeDisabled}, false, http.StatusServiceUnavailable},
		{"Channel down", session.Status{SignedIn: true, Realtime: "disconnected"}, false, http.StatusServiceUnavailable},
		{"Redis down", session.Status{SignedIn: true, Realtime: "connected"}, true, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.downRedis {
				mr.SetError("LOADING")
				defer mr.SetError("")
			}
			app := newApp(&Handlers{Session: staticStatus(tt.status), Redis: rdb})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestLiveAndStatus(t *testing.T) {
	want := session.Status{
		SignedIn: true,
		UserID:   "me",
		Realtime: "connected",
		Polling:  []string{"peer"},
		Unread:   session.Counts{Notifications: 2, Messages: 5},
	}
	app := newApp(&Handlers{Session: staticStatus(want)})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got session.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, want, got)
}
