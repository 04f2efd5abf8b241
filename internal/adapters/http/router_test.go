package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Plaza/internal/adapters/signal"
	"github.com/dkeye/Plaza/internal/app"
	"github.com/dkeye/Plaza/internal/config"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:          "test",
		Secret:        "test-secret",
		PingPeriod:    time.Second,
		ConnectLimit:  0,
		ConnectWindow: time.Minute,
	}
}

func newRelay() *app.Relay {
	return app.NewRelay(app.NewRegistry(), app.SimplePolicy{}, domain.Position{X: 5, Y: 6})
}

func TestHealthzAndTokenCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(context.Background(), testConfig(), newRelay())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","participants":0}`, w.Body.String())

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "PlazaSessions", cookies[0].Name)

	// the same cookie keeps the same session, no new cookie is issued
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Result().Cookies())
}

func TestParticipantsSnapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	relay := newRelay()
	srv := httptest.NewServer(SetupRouter(context.Background(), testConfig(), relay))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := signal.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/signal", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	w, err := c.Receive()
	require.NoError(t, err)
	welcome, ok := w.(protocol.Welcome)
	require.True(t, ok)
	require.NoError(t, c.Send(protocol.Join{Name: "ann"}))
	_, err = c.Receive()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/participants")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []participantView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, string(welcome.ID), got[0].ID)
	assert.Equal(t, "ann", got[0].Name)
	assert.Equal(t, 5.0, got[0].X)
}
