package models

type Token struct {
	ID                string      `json:"_id"`
	TokenNumber       int         `json:"tokenNumber"`
	Doctor            *Doctor     `json:"doctor,omitempty"`
	Patient           *PatientRef `json:"patient,omitempty"`
	Position          int         `json:"position"`
	Status            string      `json:"status"`
	EstimatedWaitTime int         `json:"estimatedWaitTime"`
	BookingDate       string      `json:"bookingDate,omitempty"`
}

type PatientRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

type QueueStats struct {
	TotalWaiting          int `json:"totalWaiting"`
	NextEstimatedWaitTime int `json:"nextEstimatedWaitTime"`
}

const (
	TokenWaiting        = "waiting"
	TokenInConsultation = "in-consultation"
	TokenCompleted      = "completed"
	TokenCancelled      = "cancelled"
)

func (t *Token) DoctorID() string {
	if t == nil || t.Doctor == nil {
		return ""
	}
	return t.Doctor.ID
}

func (t *Token) DoctorName() string {
	if t == nil || t.Doctor == nil {
		return ""
	}
	return t.Doctor.Name
}

// Active reports whether the token still holds a place in a queue.
func (t *Token) Active() bool {
	if t == nil {
		return false
	}
	return t.Status == TokenWaiting || t.Status == TokenInConsultation
}
