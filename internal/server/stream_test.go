package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morezero/plugin-registry/pkg/events"
)

const streamTestPrefix = "server:stream_test"

// streamServer returns a running HTTP server whose dispatcher publishes to a broadcaster.
func streamServer(t *testing.T) *httptest.Server {
	t.Helper()
	base := testServer(t)
	broadcaster := events.NewBroadcaster(8)
	s := New(base.cfg, NewDispatcher(base.cfg, base.disp.Registry(), base.manifest, broadcaster), base.manifest)
	s.events = broadcaster
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dialEvents(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("%s - dial: %v", streamTestPrefix, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invokeOver(t *testing.T, ts *httptest.Server, operation, body string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/operations/"+operation, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("%s - invoke %s: %v", streamTestPrefix, operation, err)
	}
	resp.Body.Close()
}

func TestEventStream_DeliversInvocations(t *testing.T) {
	ts := streamServer(t)
	conn := dialEvents(t, ts, "")

	invokeOver(t, ts, "collections.count", `{"collection":["a","b"]}`)
	invokeOver(t, ts, "collections.take", `{"collection":["a"]}`)

	// Events are delivered off the result path, so arrival order is not fixed.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	byOperation := make(map[string]events.InvocationEvent)
	for i := 0; i < 2; i++ {
		var ev events.InvocationEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("%s - read event %d: %v", streamTestPrefix, i, err)
		}
		byOperation[ev.Operation] = ev
	}

	if ev, ok := byOperation["collections.count"]; !ok || !ev.Ok {
		t.Errorf("%s - count event = %+v", streamTestPrefix, ev)
	}
	if ev, ok := byOperation["collections.take"]; !ok || ev.Ok || ev.ErrorCode != "MISSING_ARGUMENT" {
		t.Errorf("%s - take event = %+v", streamTestPrefix, ev)
	}
}

func TestEventStream_GroupFilter(t *testing.T) {
	ts := streamServer(t)
	conn := dialEvents(t, ts, "?group=testing")

	invokeOver(t, ts, "collections.count", `{"collection":[]}`)
	invokeOver(t, ts, "testing.sleep", `{"ms":1}`)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev events.InvocationEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("%s - read: %v", streamTestPrefix, err)
	}
	if ev.Operation != "testing.sleep" || ev.Group != "testing" {
		t.Errorf("%s - expected only testing events, got %+v", streamTestPrefix, ev)
	}
}

func TestEventStream_Disabled(t *testing.T) {
	rec := do(t, testServer(t), http.MethodGet, "/events", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("%s - status = %d, want 404", streamTestPrefix, rec.Code)
	}
}
