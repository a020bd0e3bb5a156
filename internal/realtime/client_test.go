package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/igm/sockjs-go/sockjs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	session int32
	action  string
	auth    string
}

// newTestServer runs a sockjs endpoint that reports every inbound action and
// answers join-patient with a queue-update event.
func newTestServer(t *testing.T, dropFirst bool) (string, <-chan received) {
	t.Helper()
	out := make(chan received, 32)
	var sessions int32
	handler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		n := atomic.AddInt32(&sessions, 1)
		auth := session.Request().Header.Get("Authorization")
		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			var in struct {
				Action string `json:"action"`
			}
			if err := json.Unmarshal([]byte(msg), &in); err != nil {
				continue
			}
			out <- received{session: n, action: in.Action, auth: auth}
			if in.Action == "join-patient" {
				_ = session.Send(`{"type":"queue-update","payload":{"doctorId":"D1"},"created_at":"2024-06-01T10:00:00Z"}`)
				if dropFirst && n == 1 {
					_ = session.Close(3000, "bye")
					return
				}
			}
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return URLFromAPIBase(srv.URL), out
}

func next(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for server message")
	}
	return received{}
}

func TestURLFromAPIBase(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8090":    "ws://localhost:8090/realtime/websocket",
		"https://api.example.com/": "wss://api.example.com/realtime/websocket",
	}
	for in, want := range cases {
		if got := URLFromAPIBase(in); got != want {
			t.Fatalf("URLFromAPIBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmitAndDispatch(t *testing.T) {
	url, inbound := newTestServer(t, false)
	client := New(Options{URL: url, Credential: "tok"})
	t.Cleanup(func() { _ = client.Close() })

	events := make(chan Event, 4)
	dispose := client.On("queue-update", func(e Event) { events <- e })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Emit("join-patient", map[string]string{"patientId": "P1"}))

	got := next(t, inbound)
	assert.Equal(t, "join-patient", got.action)
	assert.Equal(t, "Bearer tok", got.auth)

	select {
	case e := <-events:
		var payload struct {
			DoctorID string `json:"doctorId"`
		}
		require.NoError(t, e.Decode(&payload))
		assert.Equal(t, "D1", payload.DoctorID)
	case <-time.After(5 * time.Second):
		t.Fatalf("handler not invoked")
	}

	assert.Equal(t, 1, client.HandlerCount("queue-update"))
	dispose()
	dispose()
	assert.Equal(t, 0, client.HandlerCount("queue-update"))
}

func TestReconnectReplaysJoins(t *testing.T) {
	url, inbound := newTestServer(t, true)
	client := New(Options{URL: url, ReconnectMax: time.Second})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Emit("join-queue", map[string]string{"doctorId": "D1"}))
	require.NoError(t, client.Emit("join-patient", map[string]string{"patientId": "P1"}))

	var second []string
	for len(second) < 2 {
		r := next(t, inbound)
		if r.session >= 2 {
			second = append(second, r.action)
		}
	}
	assert.Equal(t, []string{"join-queue", "join-patient"}, second)
}

func TestEmitWhileDisconnected(t *testing.T) {
	client := New(Options{URL: "ws://127.0.0.1:1/realtime/websocket"})

	assert.NoError(t, client.Emit("join-patient", map[string]string{"patientId": "P1"}))
	err := client.Emit("patient-paid", map[string]string{"patientId": "P1"})
	assert.True(t, errors.Is(err, ErrNotConnected))

	require.NoError(t, client.Close())
	assert.True(t, errors.Is(client.Emit("join-queue", nil), ErrClosed))
}

func TestMalformedEventsIgnored(t *testing.T) {
	handler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		_ = session.Send("not json")
		_ = session.Send(`{"payload":{}}`)
		_ = session.Send(`{"type":"prescription-delivered","payload":{"patientId":"P1"}}`)
		_, _ = session.Recv()
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := New(Options{URL: URLFromAPIBase(srv.URL)})
	t.Cleanup(func() { _ = client.Close() })
	var types []string
	done := make(chan struct{})
	client.On("prescription-delivered", func(e Event) {
		types = append(types, e.Type)
		close(done)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler not invoked")
	}
	assert.Equal(t, "prescription-delivered", strings.Join(types, ","))
}

func TestOnlyLatestJoinIsReplayed(t *testing.T) {
	client := New(Options{URL: "ws://127.0.0.1:1/realtime/websocket"})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Emit("join-queue", map[string]string{"doctorId": "D1"}))
	require.NoError(t, client.Emit("join-patient", map[string]string{"patientId": "P1"}))
	require.NoError(t, client.Emit("join-queue", map[string]string{"doctorId": "D2"}))

	client.mu.Lock()
	rooms := append([]outbound(nil), client.rooms...)
	client.mu.Unlock()
	require.Len(t, rooms, 2)
	assert.Equal(t, "join-queue", rooms[0].Action)
	assert.Equal(t, map[string]string{"doctorId": "D2"}, rooms[0].Payload)
	assert.Equal(t, "join-patient", rooms[1].Action)
}
