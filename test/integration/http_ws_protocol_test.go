package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samiralibabic/previewd/internal/events"
	"github.com/samiralibabic/previewd/internal/protocol"
	"github.com/samiralibabic/previewd/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPJSONRPCPreviewCreate(t *testing.T) {
	st := newStack(t)
	ts := httptest.NewServer(server.NewMux(st.cfg, st.svc))
	defer ts.Close()

	raw, err := json.Marshal(request(1, "preview.create", map[string]any{"project": st.root, "path": "main.typ"}))
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+st.cfg.Server.HTTPPath, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Nil(t, decoded.Error)
	var out protocol.PreviewCreateResult
	require.NoError(t, json.Unmarshal(decoded.Result, &out))
	assert.NotEmpty(t, out.Address)
	assert.Len(t, st.lsp.Commands(protocol.CommandStartPreview), 1)
}

func TestHTTPRejectsGet(t *testing.T) {
	st := newStack(t)
	ts := httptest.NewServer(server.NewMux(st.cfg, st.svc))
	defer ts.Close()

	resp, err := http.Get(ts.URL + st.cfg.Server.HTTPPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketPushesLifecycleEvents(t *testing.T) {
	st := newStack(t)
	ts := httptest.NewServer(server.NewMux(st.cfg, st.svc))
	defer ts.Close()

	wsURL := "ws" + ts.URL[len("http"):] + st.cfg.Server.WSPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(request(1, "preview.create", map[string]any{"project": st.root, "path": "main.typ"})))

	var gotResponse, gotStarted bool
	for !gotResponse || !gotStarted {
		var msg message
		require.NoError(t, conn.ReadJSON(&msg))
		switch {
		case msg.Method == events.PreviewStarted:
			gotStarted = true
		case string(msg.ID) == "1":
			require.Nil(t, msg.Error)
			gotResponse = true
		}
	}
}
