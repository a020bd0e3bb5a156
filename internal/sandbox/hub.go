package sandbox

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Room addresses a broadcast: a patient's private room or a doctor's queue.
type Room struct {
	PatientID string
	DoctorID  string
}

type Client struct {
	ID      string
	UserID  string
	Send    chan []byte
	patient string
	doctors map[string]bool
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logrus.Entry
}

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type inboundMessage struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{clients: make(map[string]*Client), log: log}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.doctors == nil {
		client.doctors = make(map[string]bool)
	}
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) JoinPatient(client *Client, patientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.patient = patientID
}

func (h *Hub) JoinQueue(client *Client, doctorID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.doctors[doctorID] = true
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Members counts the clients a broadcast to room would reach.
func (h *Hub) Members(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, client := range h.clients {
		if match(client, room) {
			n++
		}
	}
	return n
}

// Publish wraps payload in the event envelope and broadcasts it to room.
func (h *Hub) Publish(eventType string, payload interface{}, room Room) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.WithError(err).WithField("type", eventType).Error("encode event payload")
		return
	}
	message, err := json.Marshal(eventEnvelope{Type: eventType, Payload: raw, CreatedAt: time.Now().UTC()})
	if err != nil {
		h.log.WithError(err).WithField("type", eventType).Error("encode event")
		return
	}
	h.Broadcast(message, room)
}

func (h *Hub) Broadcast(payload []byte, room Room) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client, room) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.log.WithField("client", client.ID).Warn("drop message for slow client")
		}
	}
}

func match(client *Client, room Room) bool {
	if room.PatientID != "" && client.patient == room.PatientID {
		return true
	}
	if room.DoctorID != "" && client.doctors[room.DoctorID] {
		return true
	}
	return false
}

func parseInbound(data []byte) (inboundMessage, bool) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return inboundMessage{}, false
	}
	if msg.Action == "" {
		return inboundMessage{}, false
	}
	return msg, true
}
