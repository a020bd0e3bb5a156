package pharmacy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/models"
	"qms/patient-client/internal/ui"

	"github.com/sirupsen/logrus"
)

const DefaultPaymentDelay = 1500 * time.Millisecond

type API interface {
	Prescriptions(ctx context.Context) ([]models.Prescription, error)
	DeletePrescription(ctx context.Context, id string) error
	PayFees(ctx context.Context, prescriptionID, otp string) error
	ResendOTP(ctx context.Context, prescriptionID, otp string) error
}

type Emitter interface {
	Emit(action string, payload interface{}) error
}

type Options struct {
	PatientID    string
	PaymentDelay time.Duration
	ResendWindow time.Duration
	Now          func() time.Time
	OTP          func() (string, error)
	Logger       *logging.Logger
}

// Payment is the outcome of a successful fee payment.
type Payment struct {
	Prescription models.Prescription
	OTP          string
	Amount       float64
}

type Snapshot struct {
	Prescriptions  []models.Prescription
	Selected       *models.Prescription
	DeliveryOTP    string
	Cooldown       Cooldown
	PaymentLoading bool
}

type ViewModel struct {
	api       API
	emitter   Emitter
	confirm   ui.Confirmer
	patientID string
	delay     time.Duration
	now       func() time.Time
	otp       func() (string, error)
	log       *logrus.Entry

	mu             sync.Mutex
	prescriptions  []models.Prescription
	selectedID     string
	deliveryOTP    string
	cooldown       Cooldown
	paymentLoading bool
}

func New(api API, emitter Emitter, confirm ui.Confirmer, opts Options) *ViewModel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OTP == nil {
		opts.OTP = GenerateOTP
	}
	if opts.PaymentDelay < 0 {
		opts.PaymentDelay = 0
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &ViewModel{
		api:       api,
		emitter:   emitter,
		confirm:   confirm,
		patientID: opts.PatientID,
		delay:     opts.PaymentDelay,
		now:       opts.Now,
		otp:       opts.OTP,
		log:       log.WithComponent("pharmacy"),
		cooldown:  Cooldown{Window: opts.ResendWindow},
	}
}

func (v *ViewModel) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := Snapshot{
		Prescriptions:  append([]models.Prescription(nil), v.prescriptions...),
		DeliveryOTP:    v.deliveryOTP,
		Cooldown:       v.cooldown,
		PaymentLoading: v.paymentLoading,
	}
	if p, ok := v.findLocked(v.selectedID); ok {
		snap.Selected = &p
	}
	return snap
}

// FetchPrescriptions replaces the list, newest first. A failed fetch leaves
// the list empty.
func (v *ViewModel) FetchPrescriptions(ctx context.Context) error {
	list, err := v.api.Prescriptions(ctx)
	if err != nil {
		v.log.WithError(err).Warn("fetch prescriptions")
		v.mu.Lock()
		v.prescriptions = nil
		v.mu.Unlock()
		return err
	}
	SortNewestFirst(list)
	v.mu.Lock()
	v.prescriptions = list
	v.mu.Unlock()
	return nil
}

// SelectForPharmacyTab picks the order the pharmacy tab should show: the first
// open order awaiting payment or delivery, else the first open order.
func (v *ViewModel) SelectForPharmacyTab() *models.Prescription {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selectedID = ""
	var fallback *models.Prescription
	for i := range v.prescriptions {
		p := v.prescriptions[i]
		if p.Status == models.PrescriptionCompleted {
			continue
		}
		if p.Status == models.PrescriptionReadyForPayment || p.Status == models.PrescriptionPaid {
			v.selectedID = p.ID
			return &p
		}
		if fallback == nil {
			fallback = &p
		}
	}
	if fallback != nil {
		v.selectedID = fallback.ID
	}
	return fallback
}

func (v *ViewModel) Select(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.findLocked(id); !ok {
		return false
	}
	v.selectedID = id
	return true
}

func (v *ViewModel) ClearSelection() {
	v.mu.Lock()
	v.selectedID = ""
	v.mu.Unlock()
}

func (v *ViewModel) ClearDeliveryOTP() {
	v.mu.Lock()
	v.deliveryOTP = ""
	v.mu.Unlock()
}

// PendingActionCount is the number of prescriptions waiting for payment.
func (v *ViewModel) PendingActionCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for _, p := range v.prescriptions {
		if p.Status == models.PrescriptionReadyForPayment {
			count++
		}
	}
	return count
}

func (v *ViewModel) PayFees(ctx context.Context, prescriptionID string) (Payment, error) {
	v.mu.Lock()
	p, ok := v.findLocked(prescriptionID)
	v.mu.Unlock()
	if !ok {
		return Payment{}, fmt.Errorf("prescription %s: %w", prescriptionID, models.ErrNotFound)
	}
	if p.Status != models.PrescriptionReadyForPayment {
		return Payment{}, models.ErrStateConflict
	}
	amount := p.FeeTotal()
	if !(amount > 0) {
		return Payment{}, models.ErrInvalidFee
	}

	v.setPaymentLoading(true)
	defer v.setPaymentLoading(false)

	if err := sleep(ctx, v.delay); err != nil {
		return Payment{}, err
	}
	code, err := v.otp()
	if err != nil {
		return Payment{}, err
	}
	if err := v.api.PayFees(ctx, p.ID, code); err != nil {
		v.log.WithError(err).WithField("prescription_id", p.ID).Warn("pay fees")
		return Payment{}, err
	}

	v.mu.Lock()
	for i := range v.prescriptions {
		if v.prescriptions[i].ID == p.ID {
			v.prescriptions[i].Status = models.PrescriptionPaid
		}
	}
	v.deliveryOTP = code
	v.cooldown.LastSent = v.now()
	v.mu.Unlock()
	v.log.WithFields(logrus.Fields{"prescription_id": p.ID, "amount": amount}).Info("fees paid")

	err = v.emitter.Emit("patient-paid", map[string]interface{}{
		"patientId":   v.patientID,
		"tokenId":     p.ID,
		"tokenNumber": p.TokenNumber,
	})
	if err != nil {
		v.log.WithError(err).Warn("notify pharmacy of payment")
	}
	if err := v.FetchPrescriptions(ctx); err != nil {
		v.log.WithError(err).Warn("refresh prescriptions after payment")
	}

	p.Status = models.PrescriptionPaid
	return Payment{Prescription: p, OTP: code, Amount: amount}, nil
}

// ResendOTP issues a fresh delivery code for a paid prescription once the
// cooldown has elapsed.
func (v *ViewModel) ResendOTP(ctx context.Context, prescriptionID string) (string, error) {
	v.mu.Lock()
	p, ok := v.findLocked(prescriptionID)
	allowed := ok && p.Status == models.PrescriptionPaid && v.cooldown.CanResend(v.now())
	v.mu.Unlock()
	if !allowed {
		return "", models.ErrStateConflict
	}

	v.setPaymentLoading(true)
	defer v.setPaymentLoading(false)

	code, err := v.otp()
	if err != nil {
		return "", err
	}
	if err := v.api.ResendOTP(ctx, p.ID, code); err != nil {
		v.log.WithError(err).WithField("prescription_id", p.ID).Warn("resend otp")
		return "", err
	}

	v.mu.Lock()
	v.deliveryOTP = code
	v.cooldown.LastSent = v.now()
	v.mu.Unlock()
	return code, nil
}

func (v *ViewModel) DeletePrescription(ctx context.Context, id string) error {
	ok, err := v.confirm.Confirm(ctx, "Confirm Delete", "Are you sure you want to delete this prescription?")
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrCancelled
	}
	if err := v.api.DeletePrescription(ctx, id); err != nil {
		v.log.WithError(err).WithField("prescription_id", id).Warn("delete prescription")
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.prescriptions[:0]
	for _, p := range v.prescriptions {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	v.prescriptions = kept
	if v.selectedID == id {
		v.selectedID = ""
	}
	return nil
}

func (v *ViewModel) findLocked(id string) (models.Prescription, bool) {
	if id == "" {
		return models.Prescription{}, false
	}
	for _, p := range v.prescriptions {
		if p.ID == id {
			return p, true
		}
	}
	return models.Prescription{}, false
}

func (v *ViewModel) setPaymentLoading(loading bool) {
	v.mu.Lock()
	v.paymentLoading = loading
	v.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
