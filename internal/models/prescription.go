package models

import "time"

type Prescription struct {
	ID          string              `json:"_id"`
	Doctor      *Doctor             `json:"doctor,omitempty"`
	Patient     *PatientRef         `json:"patient,omitempty"`
	TokenNumber int                 `json:"tokenNumber"`
	Details     PrescriptionDetails `json:"prescription"`
	Status      string              `json:"status"`
	Fee         *Fee                `json:"fee,omitempty"`
	CreatedAt   *time.Time          `json:"createdAt,omitempty"`
}

type PrescriptionDetails struct {
	Diagnosis string     `json:"diagnosis"`
	Medicines []Medicine `json:"medicines"`
	Notes     string     `json:"notes,omitempty"`
}

type Medicine struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage"`
	Duration string `json:"duration"`
}

type Fee struct {
	Consultation float64    `json:"consultation"`
	Subtotal     float64    `json:"subtotal"`
	Tax          float64    `json:"tax"`
	Total        float64    `json:"total"`
	PaidAt       *time.Time `json:"paidAt,omitempty"`
}

const (
	PrescriptionSubmitted       = "prescription-submitted"
	PrescriptionReadyForPayment = "ready-for-payment"
	PrescriptionPaid            = "paid"
	PrescriptionCompleted       = "completed"
)

func (p Prescription) FeeTotal() float64 {
	if p.Fee == nil {
		return 0
	}
	return p.Fee.Total
}
