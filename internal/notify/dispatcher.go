package notify

import (
	"context"
	"expvar"
	"strconv"
	"sync"
	"time"

	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/models"

	"github.com/sirupsen/logrus"
)

var (
	notificationsSent   = expvar.NewInt("notifications_sent_total")
	notificationsFailed = expvar.NewInt("notifications_failed_total")
)

const defaultTimeout = 5 * time.Second

// Dispatcher turns observed state transitions into device notifications.
// Delivery is fire-and-forget: failures are logged and never reach callers.
type Dispatcher struct {
	provider Provider
	timeout  time.Duration
	log      *logrus.Entry
	wg       sync.WaitGroup
}

func NewDispatcher(provider Provider, timeout time.Duration, log *logging.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Dispatcher{provider: provider, timeout: timeout, log: log.WithComponent("notify")}
}

// QueueTransition evaluates the before/after pair of the patient's token and
// notifies at most once. It reports whether a notification was sent.
func (d *Dispatcher) QueueTransition(before, after *models.Token) bool {
	n, ok := Evaluate(before, after)
	if ok {
		d.dispatch(n)
	}
	return ok
}

func (d *Dispatcher) FeeReady(total float64) {
	d.dispatch(Render(KindPaymentRequired, payloadData{"amount": FormatINR(total)}))
}

func (d *Dispatcher) DeliveryComplete() {
	d.dispatch(Render(KindDeliveryComplete, nil))
}

func (d *Dispatcher) PrescriptionReady() {
	d.dispatch(Render(KindPrescriptionReady, nil))
}

func (d *Dispatcher) BookingConfirmed(token *models.Token) {
	if token == nil {
		return
	}
	d.dispatch(Render(KindBookingConfirmed, tokenPayload(token)))
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(n Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.provider.Send(ctx, n); err != nil {
			notificationsFailed.Add(1)
			d.log.WithError(err).WithField("kind", n.Kind).Warn("notification delivery failed")
			return
		}
		notificationsSent.Add(1)
		d.log.WithField("kind", n.Kind).Debug("notification delivered")
	}()
}

// Evaluate applies the queue notification rules to a token transition.
func Evaluate(before, after *models.Token) (Notification, bool) {
	if after == nil {
		return Notification{}, false
	}
	if after.Status == models.TokenWaiting && after.Position == 1 && before != nil && before.Position > 1 {
		return Render(KindNextInLine, tokenPayload(after)), true
	}
	if after.Status == models.TokenInConsultation && (before == nil || before.Status != models.TokenInConsultation) {
		return Render(KindYourTurn, tokenPayload(after)), true
	}
	return Notification{}, false
}

func tokenPayload(t *models.Token) payloadData {
	return payloadData{
		"token_number": strconv.Itoa(t.TokenNumber),
		"doctor":       t.DoctorName(),
		"position":     strconv.Itoa(t.Position),
	}
}
