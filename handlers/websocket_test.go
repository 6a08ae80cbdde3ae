package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"appointment-duration-api/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelWebSocketRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/ws/model", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/ws/model?token=bogus", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestModelWebSocketStreamsUpdates(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/model?token=" + env.adminToken(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The server subscribes after the upgrade, so keep publishing until the
	// first event arrives.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = env.cache.PublishModelUpdate(ctx, services.ModelUpdate{Version: "v9", SampleSize: 42})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var event struct {
		Type string               `json:"type"`
		Data services.ModelUpdate `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "model_update", event.Type)
	assert.Equal(t, "v9", event.Data.Version)
	assert.Equal(t, 42, event.Data.SampleSize)
}
