package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialWS connects a test client to the gateway's websocket endpoint.
func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func wsSend(t *testing.T, ws *websocket.Conn, cmd string, payload map[string]any) {
	require.NoError(t, ws.WriteJSON(Command{Cmd: cmd, Payload: payload}))
}

func wsRead(t *testing.T, ws *websocket.Conn) Reply {
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var r Reply
	require.NoError(t, json.Unmarshal(raw, &r))
	return r
}

func TestGatewayLoginOverWebsocket(t *testing.T) {
	f := newFakeBackend(t)
	f.respond = func(op string, _ map[string]any) (int, string) {
		return http.StatusOK, `{"data":[{"apikey":"abc123","id":7,"type":"Customer"}]}`
	}
	s := newTestServer(t, f)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ws := dialWS(t, ts)
	wsSend(t, ws, "LOGIN", map[string]any{"username": "alice", "password": "pw", "studentnum": "u1"})

	reply := wsRead(t, ws)
	assert.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, "LOGGED IN alice AS Customer", reply.Cmd)

	require.Eventually(t, func() bool { return s.registry.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestGatewayQuitShutsDownBeforeClosing(t *testing.T) {
	f := newFakeBackend(t)
	f.respond = func(op string, _ map[string]any) (int, string) {
		return http.StatusOK, `{"data":[{"apikey":"abc123","id":7,"type":"Customer"}]}`
	}
	s := newTestServer(t, f)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	a := dialWS(t, ts)
	b := dialWS(t, ts)
	wsSend(t, a, "LOGIN", map[string]any{"username": "alice", "password": "pw", "studentnum": "u1"})
	wsRead(t, a)
	wsSend(t, b, "LOGIN", map[string]any{"username": "bob", "password": "pw", "studentnum": "u1"})
	wsRead(t, b)

	wsSend(t, a, "QUIT", nil)

	// Both clients see the broadcast, then the close frame.
	for _, ws := range []*websocket.Conn{a, b} {
		reply := wsRead(t, ws)
		assert.Equal(t, StatusInfo, reply.Status)
		assert.Equal(t, "SERVER_SHUTDOWN", reply.Cmd)

		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := ws.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived) ||
			websocket.IsUnexpectedCloseError(err), "expected close, got %v", err)
	}

	// New connections are refused once shutdown has begun.
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, rsp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, rsp)
	assert.Equal(t, http.StatusServiceUnavailable, rsp.StatusCode)
}

func TestGatewayDisconnectTriggersRecovery(t *testing.T) {
	f := newFakeBackend(t)
	f.respond = func(op string, _ map[string]any) (int, string) {
		return http.StatusOK, `{"data":[{"apikey":"k-carol","id":7,"type":"Courier"}]}`
	}
	s := newTestServer(t, f)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	courier := dialWS(t, ts)
	wsSend(t, courier, "LOGIN", map[string]any{"username": "carol", "password": "pw", "studentnum": "u1"})
	wsRead(t, courier)

	wsSend(t, courier, "UPDATE_ORDER", map[string]any{
		"apikey": "k-carol", "studentnum": "u1", "order_id": 42,
		"dest_lat": nearLat, "dest_lng": testHQLng,
		"state": "Out for delivery", "drone_id": 7, "battery": 88.0, "altitude": 12.0,
	})
	wsRead(t, courier)

	courier.Close()

	require.Eventually(t, func() bool {
		ops := f.ops()
		// Login, UpdateOrder, then the two recovery calls.
		return len(ops) == 4 && ops[2] == "UpdateOrder" && ops[3] == "UpdateDrone"
	}, 2*time.Second, 10*time.Millisecond)

	order := f.call(2)
	assert.Equal(t, "Storage", order["state"])
	drone := f.call(3)
	assert.Equal(t, 17.0, drone["altitude"])
	assert.Zero(t, s.registry.Len())
}

func TestHealthEndpoint(t *testing.T) {
	f := newFakeBackend(t)
	s := newTestServer(t, f)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	rsp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer rsp.Body.Close()

	assert.Equal(t, http.StatusOK, rsp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
