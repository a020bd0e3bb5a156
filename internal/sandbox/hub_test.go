package sandbox

import (
	"encoding/json"
	"testing"
	"time"

	"qms/patient-client/internal/logging"
)

func TestHubRoutesByRoom(t *testing.T) {
	h := NewHub(logging.Discard().WithComponent("hub"))
	patient := &Client{ID: "a", Send: make(chan []byte, 4)}
	watcher := &Client{ID: "b", Send: make(chan []byte, 4)}
	h.Register(patient)
	h.Register(watcher)
	h.JoinPatient(patient, "P1")
	h.JoinQueue(watcher, "D1")

	h.Publish(EventFeeReady, map[string]interface{}{"patientId": "P1", "totalFee": 250}, Room{PatientID: "P1"})
	h.Publish(EventQueueUpdate, map[string]string{"doctorId": "D1"}, Room{DoctorID: "D1"})

	if len(patient.Send) != 1 || len(watcher.Send) != 1 {
		t.Fatalf("expected one message each, got %d and %d", len(patient.Send), len(watcher.Send))
	}
	var env eventEnvelope
	if err := json.Unmarshal(<-patient.Send, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != EventFeeReady || env.CreatedAt.IsZero() {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if got := h.Members(Room{DoctorID: "D1"}); got != 1 {
		t.Fatalf("expected 1 queue member, got %d", got)
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	h := NewHub(logging.Discard().WithComponent("hub"))
	client := &Client{ID: "a", Send: make(chan []byte, 1)}
	h.Register(client)
	h.JoinPatient(client, "P1")

	done := make(chan struct{})
	go func() {
		h.Broadcast([]byte("one"), Room{PatientID: "P1"})
		h.Broadcast([]byte("two"), Room{PatientID: "P1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a full client")
	}
	if string(<-client.Send) != "one" {
		t.Fatalf("expected first message kept")
	}

	h.Unregister(client)
	h.Unregister(client)
	if h.Count() != 0 {
		t.Fatalf("expected no clients")
	}
}

func TestParseInbound(t *testing.T) {
	cases := []struct {
		raw    string
		ok     bool
		action string
	}{
		{`{"action":"join-queue","payload":{"doctorId":"D1"}}`, true, "join-queue"},
		{`{"payload":{}}`, false, ""},
		{`not json`, false, ""},
	}
	for _, tc := range cases {
		msg, ok := parseInbound([]byte(tc.raw))
		if ok != tc.ok || msg.Action != tc.action {
			t.Fatalf("parseInbound(%s) = %+v, %v", tc.raw, msg, ok)
		}
	}
}
