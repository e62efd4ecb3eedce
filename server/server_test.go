package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dronegate/client/wheatley"
	"dronegate/config"
)

// Test coordinates: ~6.0 km and ~3.0 km north of headquarters
// (0.054 and 0.027 degrees of latitude).
const (
	testHQLat = 25.7472
	testHQLng = 28.2511
	farLat    = testHQLat + 0.054
	nearLat   = testHQLat + 0.027
)

// fakeBackend is a recording stand-in for the Wheatley API. respond, when
// set, picks the status and payload per operation; the default is an OK
// reply with an empty data array.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu    sync.Mutex
	calls []map[string]any

	respond func(op string, body map[string]any) (int, string)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	f := &fakeBackend{t: t}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.calls = append(f.calls, body)
		f.mu.Unlock()

		status, payload := http.StatusOK, `{"data":[]}`
		if f.respond != nil {
			op, _ := body["type"].(string)
			status, payload = f.respond(op, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, payload)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ops []string
	for _, c := range f.calls {
		op, _ := c["type"].(string)
		ops = append(ops, op)
	}
	return ops
}

func (f *fakeBackend) call(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(f.t, len(f.calls), i)
	return f.calls[i]
}

func newTestServer(t *testing.T, f *fakeBackend) *Server {
	cfg := &config.Config{
		Wheatley: config.WheatleyConfig{BaseURL: f.srv.URL, Username: "gateway", Password: "hunter2"},
		Geofence: config.GeofenceConfig{HQLat: testHQLat, HQLng: testHQLng, MaxKm: 5},
	}
	return New(cfg, wheatley.New(f.srv.URL, "gateway", "hunter2"))
}

// newTestConn builds a connection without a socket. The write pump never
// runs, so enqueued frames stay in the buffer for inspection.
func newTestConn() *conn {
	return &conn{id: uuid.New().String(), out: make(chan []byte, sendBuffer)}
}

// takeFrames drains whatever the dispatcher enqueued on the connection.
func takeFrames(c *conn) [][]byte {
	var frames [][]byte
	for {
		select {
		case f, ok := <-c.out:
			if !ok {
				return frames
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// takeReplies decodes the enqueued frames as reply envelopes.
func takeReplies(t *testing.T, c *conn) []Reply {
	var replies []Reply
	for _, f := range takeFrames(c) {
		var r Reply
		require.NoError(t, json.Unmarshal(f, &r), "frame %q", f)
		replies = append(replies, r)
	}
	return replies
}

func (c *conn) isClosed() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.closed
}

// envelope marshals a command for dispatch.
func envelope(t *testing.T, cmd string, payload map[string]any) []byte {
	b, err := json.Marshal(Command{Cmd: cmd, Payload: payload})
	require.NoError(t, err)
	return b
}
