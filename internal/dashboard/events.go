package dashboard

import (
	"context"

	"qms/patient-client/internal/models"
	"qms/patient-client/internal/router"
)

type NewPrescriptionEvent struct {
	PatientID string        `json:"patientId,omitempty"`
	Token     *models.Token `json:"token,omitempty"`
}

func (e NewPrescriptionEvent) patientID() string {
	if e.PatientID != "" {
		return e.PatientID
	}
	if e.Token != nil && e.Token.Patient != nil {
		return e.Token.Patient.ID
	}
	return ""
}

type FeeReadyEvent struct {
	PatientID string  `json:"patientId"`
	TotalFee  float64 `json:"totalFee"`
}

type DeliveredEvent struct {
	PatientID string `json:"patientId"`
}

// HandleQueueUpdate reconciles the queue view and notifies on token
// transitions.
func (d *Dashboard) HandleQueueUpdate(ctx context.Context) {
	tr, err := d.queue.HandleQueueUpdate(ctx)
	if err != nil {
		d.log.WithError(err).Warn("queue update refresh failed")
		return
	}
	d.notifier.QueueTransition(tr.Before, tr.After)
}

func (d *Dashboard) HandleNewPrescription(ctx context.Context, e NewPrescriptionEvent) {
	if e.patientID() != d.user.ID {
		return
	}
	d.alert("Prescription Ready!", "Your prescription is ready! Check the Prescriptions tab.")
	d.notifier.PrescriptionReady()
	if err := d.fetchPrescriptions(ctx); err != nil {
		d.log.WithError(err).Warn("refresh prescriptions")
	}
	if _, err := d.queue.FetchCurrentToken(ctx); err != nil {
		d.log.WithError(err).Warn("refresh token")
	}
}

func (d *Dashboard) HandleFeeReady(ctx context.Context, e FeeReadyEvent) {
	if e.PatientID != d.user.ID {
		return
	}
	d.notifier.FeeReady(e.TotalFee)
	if err := d.fetchPrescriptions(ctx); err != nil {
		d.log.WithError(err).Warn("refresh prescriptions")
	}
	d.router.SetTab(router.TabPharmacy)
}

func (d *Dashboard) HandleDelivered(ctx context.Context, e DeliveredEvent) {
	if e.PatientID != d.user.ID {
		return
	}
	d.alert("Delivery Complete", "Medication delivery/collection complete! Your order history has been updated.")
	d.notifier.DeliveryComplete()
	if err := d.fetchPrescriptions(ctx); err != nil {
		d.log.WithError(err).Warn("refresh prescriptions")
	}
	d.pharmacy.ClearDeliveryOTP()
}
