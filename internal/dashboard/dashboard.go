package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/models"
	"qms/patient-client/internal/notify"
	"qms/patient-client/internal/pharmacy"
	"qms/patient-client/internal/queueview"
	"qms/patient-client/internal/realtime"
	"qms/patient-client/internal/router"
	"qms/patient-client/internal/ui"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrAlreadyMounted = errors.New("dashboard already mounted")

const (
	EventQueueUpdate           = "queue-update"
	EventNewPrescription       = "new-prescription"
	EventPrescriptionFeeReady  = "prescription-fee-ready"
	EventPrescriptionDelivered = "prescription-delivered"
)

type API interface {
	queueview.API
	pharmacy.API
}

type Realtime interface {
	On(eventType string, h realtime.Handler) func()
	Emit(action string, payload interface{}) error
}

type Options struct {
	User     models.User
	API      API
	Realtime Realtime
	Router   *router.Router
	Notifier *notify.Dispatcher
	Alerter  ui.Alerter
	Confirm  ui.Confirmer
	Pharmacy pharmacy.Options
	Logger   *logging.Logger
}

// Dashboard wires the patient view-models to the realtime channel, the
// notification dispatcher and the tab router for one signed-in patient.
type Dashboard struct {
	user     models.User
	queue    *queueview.ViewModel
	pharmacy *pharmacy.ViewModel
	rt       Realtime
	router   *router.Router
	notifier *notify.Dispatcher
	alerts   ui.Alerter
	log      *logrus.Entry

	mu         sync.Mutex
	mounted    bool
	refreshing bool
	inflight   sync.WaitGroup
}

func New(opts Options) *Dashboard {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	pharmacyOpts := opts.Pharmacy
	pharmacyOpts.PatientID = opts.User.ID
	if pharmacyOpts.Logger == nil {
		pharmacyOpts.Logger = log
	}
	return &Dashboard{
		user:     opts.User,
		queue:    queueview.New(opts.API, opts.Realtime, opts.Confirm, log),
		pharmacy: pharmacy.New(opts.API, opts.Realtime, opts.Confirm, pharmacyOpts),
		rt:       opts.Realtime,
		router:   opts.Router,
		notifier: opts.Notifier,
		alerts:   opts.Alerter,
		log:      log.WithComponent("dashboard").WithField("user_id", opts.User.ID),
	}
}

func (d *Dashboard) Queue() *queueview.ViewModel {
	return d.queue
}

func (d *Dashboard) Pharmacy() *pharmacy.ViewModel {
	return d.pharmacy
}

func (d *Dashboard) User() models.User {
	return d.user
}

// NavBar returns the bottom bar with the pharmacy badge filled in.
func (d *Dashboard) NavBar() []router.NavItem {
	return d.router.NavBar(d.pharmacy.PendingActionCount())
}

func (d *Dashboard) Refreshing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshing
}

// Mount loads the initial data, joins the patient's room and subscribes to
// push events. The returned func removes exactly the subscriptions made here.
func (d *Dashboard) Mount(ctx context.Context) (func(), error) {
	d.mu.Lock()
	if d.mounted {
		d.mu.Unlock()
		return nil, ErrAlreadyMounted
	}
	d.mounted = true
	d.mu.Unlock()
	lifetime, cancel := context.WithCancel(context.Background())

	if err := d.Refresh(ctx); err != nil {
		d.log.WithError(err).Warn("initial load incomplete")
	}
	if err := d.rt.Emit("join-patient", map[string]string{"patientId": d.user.ID}); err != nil {
		d.log.WithError(err).Warn("join patient room")
	}

	disposers := []func(){
		d.rt.On(EventQueueUpdate, func(realtime.Event) {
			d.async(lifetime, func(ctx context.Context) { d.HandleQueueUpdate(ctx) })
		}),
		d.rt.On(EventNewPrescription, func(e realtime.Event) {
			var payload NewPrescriptionEvent
			if d.decode(e, &payload) {
				d.async(lifetime, func(ctx context.Context) { d.HandleNewPrescription(ctx, payload) })
			}
		}),
		d.rt.On(EventPrescriptionFeeReady, func(e realtime.Event) {
			var payload FeeReadyEvent
			if d.decode(e, &payload) {
				d.async(lifetime, func(ctx context.Context) { d.HandleFeeReady(ctx, payload) })
			}
		}),
		d.rt.On(EventPrescriptionDelivered, func(e realtime.Event) {
			var payload DeliveredEvent
			if d.decode(e, &payload) {
				d.async(lifetime, func(ctx context.Context) { d.HandleDelivered(ctx, payload) })
			}
		}),
		d.router.OnTabChange(d.onTabChange),
	}
	d.log.Info("dashboard mounted")

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, dispose := range disposers {
				dispose()
			}
			cancel()
			d.inflight.Wait()
			d.mu.Lock()
			d.mounted = false
			d.mu.Unlock()
			d.log.Info("dashboard unmounted")
		})
	}, nil
}

// Refresh re-fetches doctors, the current token and prescriptions concurrently.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.setRefreshing(true)
	defer d.setRefreshing(false)

	var g errgroup.Group
	g.Go(func() error { return d.queue.FetchDoctors(ctx) })
	g.Go(func() error {
		_, err := d.queue.FetchCurrentToken(ctx)
		return err
	})
	g.Go(func() error { return d.fetchPrescriptions(ctx) })
	return g.Wait()
}

func (d *Dashboard) SelectDoctor(ctx context.Context, doctorID string) error {
	if err := d.queue.SelectDoctor(ctx, doctorID); err != nil {
		d.log.WithError(err).WithField("doctor_id", doctorID).Warn("load doctor queue")
		return err
	}
	return nil
}

func (d *Dashboard) Book(ctx context.Context, doctorID, bookingDate string) error {
	token, err := d.queue.BookToken(ctx, doctorID, bookingDate)
	if err != nil {
		var serverErr *models.ServerError
		switch {
		case errors.Is(err, models.ErrValidation):
			d.alert("Missing Info", models.UserMessage(err, "Please select a doctor and date."))
		case errors.As(err, &serverErr):
			d.alert("Booking Failed (Server)", models.UserMessage(err, "Server Error."))
		default:
			d.alert("Booking Failed", "An unexpected error occurred during the booking process.")
		}
		return err
	}
	d.notifier.BookingConfirmed(token)
	d.router.SetTab(router.TabQueue)
	return nil
}

func (d *Dashboard) Cancel(ctx context.Context) error {
	token, err := d.queue.CancelToken(ctx)
	if err != nil {
		if models.Silent(err) {
			return nil
		}
		d.alert("Error", models.UserMessage(err, "Error cancelling token."))
		return err
	}
	d.alert("Cancelled", fmt.Sprintf("Token #%d cancelled successfully.", token.TokenNumber))
	return nil
}

func (d *Dashboard) Pay(ctx context.Context, prescriptionID string) error {
	payment, err := d.pharmacy.PayFees(ctx, prescriptionID)
	if err != nil {
		switch {
		case models.Silent(err):
			return nil
		case errors.Is(err, models.ErrInvalidFee):
			d.alert("Invalid Fee", models.UserMessage(err, ""))
		default:
			d.alert("Payment Failed", models.UserMessage(err, "Payment failed. Please try again."))
		}
		return err
	}
	d.alert("Payment Successful!", fmt.Sprintf("Payment of %s successful! Pharmacy has been notified. Your OTP is %s.",
		notify.FormatINR(payment.Amount), payment.OTP))
	d.router.SetTab(router.TabPharmacy)
	return nil
}

func (d *Dashboard) ResendOTP(ctx context.Context, prescriptionID string) error {
	if _, err := d.pharmacy.ResendOTP(ctx, prescriptionID); err != nil {
		if models.Silent(err) {
			return nil
		}
		d.alert("Error", models.UserMessage(err, "Error resending OTP. Please wait and try again."))
		return err
	}
	d.alert("OTP Resent", "New OTP sent successfully! (Code updated for security)")
	return nil
}

func (d *Dashboard) DeletePrescription(ctx context.Context, id string) error {
	if err := d.pharmacy.DeletePrescription(ctx, id); err != nil {
		if models.Silent(err) {
			return nil
		}
		d.alert("Error", models.UserMessage(err, "Error deleting prescription."))
		return err
	}
	d.alert("Success", "Prescription deleted.")
	return nil
}

func (d *Dashboard) onTabChange(tab router.Tab) {
	switch tab {
	case router.TabPharmacy:
		d.pharmacy.SelectForPharmacyTab()
	case router.TabPrescriptions:
	default:
		d.pharmacy.ClearSelection()
	}
}

func (d *Dashboard) fetchPrescriptions(ctx context.Context) error {
	err := d.pharmacy.FetchPrescriptions(ctx)
	if d.router.Tab() == router.TabPharmacy {
		d.pharmacy.SelectForPharmacyTab()
	}
	return err
}

// async runs push follow-up work off the realtime reader goroutine.
func (d *Dashboard) async(lifetime context.Context, fn func(ctx context.Context)) {
	if lifetime.Err() != nil {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		fn(lifetime)
	}()
}

func (d *Dashboard) decode(e realtime.Event, v interface{}) bool {
	if err := e.Decode(v); err != nil {
		d.log.WithError(err).WithField("event", e.Type).Warn("malformed push payload")
		return false
	}
	return true
}

func (d *Dashboard) alert(title, message string) {
	if d.alerts != nil {
		d.alerts.Alert(title, message)
	}
}

func (d *Dashboard) setRefreshing(v bool) {
	d.mu.Lock()
	d.refreshing = v
	d.mu.Unlock()
}
