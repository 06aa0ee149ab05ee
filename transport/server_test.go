package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/dispatch"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/metrics"
	"github.com/hupe1980/grantmesh/protocol"
	"github.com/hupe1980/grantmesh/registry"
	"github.com/hupe1980/grantmesh/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) (*dispatch.Dispatcher, *httptest.Server) {
	t.Helper()
	m := metrics.New()
	d, err := dispatch.New(store.NewInMemoryStore(), registry.New(), func(o *dispatch.Options) { o.Metrics = m })
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(d, func(o *Options) { o.Metrics = m }))
	t.Cleanup(srv.Close)
	return d, srv
}

func postRPC(t *testing.T, srv *httptest.Server, method string, params any) *protocol.Response {
	t.Helper()
	req, err := protocol.NewRequest("1", method, params)
	require.NoError(t, err)
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := srv.Client().Post(srv.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out protocol.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

func TestHTTP_RPC(t *testing.T) {
	_, srv := setupServer(t)

	resp := postRPC(t, srv, protocol.MethodToolsCall, protocol.CallToolParams{
		Name:      dispatch.ActionNotifyNewGrant,
		Arguments: map[string]any{"title": "t", "description": "d", "amount": 5},
	})
	var g core.Grant
	require.NoError(t, resp.Decode(&g))
	assert.Equal(t, int64(1), g.ID)

	resp = postRPC(t, srv, protocol.MethodResourcesRead, protocol.ReadResourceParams{URI: dispatch.GrantURI(7)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CategoryNotFound, resp.Error.Category())
}

func TestHTTP_NotificationAndErrors(t *testing.T) {
	_, srv := setupServer(t)

	resp, err := srv.Client().Post(srv.URL+"/rpc", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"ping"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/rpc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	big := bytes.Repeat([]byte("a"), MaxRequestBytes+1)
	resp, err = srv.Client().Post(srv.URL+"/rpc", "application/json", bytes.NewReader(big))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	_, srv := setupServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])

	postRPC(t, srv, protocol.MethodPing, nil)
	postRPC(t, srv, protocol.MethodToolsCall, protocol.CallToolParams{Name: dispatch.ActionGetGrantDetails, Arguments: map[string]any{"grant_id": 1}})

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `grantmesh_dispatch_calls_total{method="tools/call",outcome="NOT_FOUND",target="get_grant_details"} 1`)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m protocol.Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWS_RequestResponseAndEvents(t *testing.T) {
	d, srv := setupServer(t)
	conn := dialWS(t, srv)

	require.Eventually(t, func() bool { return d.Hub().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	req, err := protocol.NewRequest("ws-1", protocol.MethodToolsCall, protocol.CallToolParams{
		Name:      dispatch.ActionNotifyNewGrant,
		Arguments: map[string]any{"title": "t", "description": "d", "amount": 1},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var gotResponse, gotEvent bool
	for i := 0; i < 2; i++ {
		m := readMessage(t, conn)
		if m.IsNotification() {
			assert.Equal(t, protocol.MethodNotifyEvent, m.Method)
			var ev feed.Event
			require.NoError(t, json.Unmarshal(m.Params, &ev))
			assert.Equal(t, feed.EventGrantCreated, ev.Type)
			gotEvent = true
			continue
		}
		assert.JSONEq(t, `"ws-1"`, string(m.ID))
		var g core.Grant
		require.NoError(t, m.Response().Decode(&g))
		assert.Equal(t, "t", g.Title)
		gotResponse = true
	}
	assert.True(t, gotResponse)
	assert.True(t, gotEvent)

	// events caused by other transports are pushed too
	postRPC(t, srv, protocol.MethodToolsCall, protocol.CallToolParams{
		Name:      dispatch.ActionBroadcastMessage,
		Arguments: map[string]any{"message": "hi"},
	})
	m := readMessage(t, conn)
	require.True(t, m.IsNotification())
	var ev feed.Event
	require.NoError(t, json.Unmarshal(m.Params, &ev))
	assert.Equal(t, feed.EventAgentMessage, ev.Type)
}

func TestWS_CloseDetachesSubscriber(t *testing.T) {
	d, srv := setupServer(t)
	conn := dialWS(t, srv)
	require.Eventually(t, func() bool { return d.Hub().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()
	require.Eventually(t, func() bool { return d.Hub().Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_MalformedFrame(t *testing.T) {
	_, srv := setupServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	m := readMessage(t, conn)
	require.NotNil(t, m.Error)
	assert.Equal(t, protocol.CodeParseError, m.Error.Code)
}

func TestHTTP_AdminReap(t *testing.T) {
	d, srv := setupServer(t)
	d.Registry().Register("tech-1", core.AgentTypeTechnical, "")

	resp, err := srv.Client().Post(srv.URL+"/admin/reap?threshold=1h", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out ReapResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Zero(t, out.Removed)
	assert.Equal(t, 1, d.Registry().Count())

	bad, err := srv.Client().Post(srv.URL+"/admin/reap?threshold=soon", "application/json", nil)
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}
