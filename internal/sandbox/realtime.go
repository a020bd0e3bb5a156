package sandbox

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/sirupsen/logrus"
)

type joinPatientPayload struct {
	PatientID string `json:"patientId"`
}

type joinQueuePayload struct {
	DoctorID string `json:"doctorId"`
}

type patientPaidPayload struct {
	PatientID   string `json:"patientId"`
	TokenID     string `json:"tokenId"`
	TokenNumber int    `json:"tokenNumber"`
}

func (s *Server) serveSession(session sockjs.Session) {
	credential := credentialFromRequest(session.Request())
	if credential == "" {
		_ = session.Close(4001, "missing credential")
		return
	}
	user, err := s.backend.Authenticate(credential)
	if err != nil {
		_ = session.Close(4002, "invalid credential")
		return
	}

	client := &Client{ID: uuid.NewString(), UserID: user.ID, Send: make(chan []byte, 16)}
	s.hub.Register(client)
	defer s.hub.Unregister(client)
	log := s.log.WithFields(logrus.Fields{"client": client.ID, "user": user.ID})
	log.Debug("realtime session opened")

	go func() {
		for msg := range client.Send {
			_ = session.Send(string(msg))
		}
	}()

	for {
		raw, err := session.Recv()
		if err != nil {
			log.WithError(err).Debug("realtime session closed")
			return
		}
		msg, ok := parseInbound([]byte(raw))
		if !ok {
			continue
		}
		switch msg.Action {
		case "join-patient":
			var payload joinPatientPayload
			if json.Unmarshal(msg.Payload, &payload) != nil || payload.PatientID != user.ID {
				log.WithField("patient", payload.PatientID).Warn("join-patient rejected")
				continue
			}
			s.hub.JoinPatient(client, payload.PatientID)
		case "join-queue":
			var payload joinQueuePayload
			if json.Unmarshal(msg.Payload, &payload) != nil || payload.DoctorID == "" {
				continue
			}
			s.hub.JoinQueue(client, payload.DoctorID)
		case "patient-paid":
			var payload patientPaidPayload
			if json.Unmarshal(msg.Payload, &payload) != nil {
				continue
			}
			log.WithFields(logrus.Fields{
				"token_id":     payload.TokenID,
				"token_number": payload.TokenNumber,
			}).Info("patient paid")
		default:
			log.WithField("action", msg.Action).Debug("ignoring realtime action")
		}
	}
}
