package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"qms/patient-client/internal/models"
	"qms/patient-client/internal/notify"
	"qms/patient-client/internal/realtime"
	"qms/patient-client/internal/router"
	"qms/patient-client/internal/session"
	"qms/patient-client/internal/ui"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu            sync.Mutex
	calls         map[string]int
	token         *models.Token
	prescriptions []models.Prescription
	bookFn        func(doctorID, date string) (*models.Token, error)
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ListDoctors(context.Context) ([]models.Doctor, error) {
	f.hit("doctors")
	return []models.Doctor{{ID: "D1", Name: "Rao"}}, nil
}

func (f *fakeAPI) MyToken(context.Context) (*models.Token, error) {
	f.hit("my-token")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeAPI) BookToken(_ context.Context, doctorID, date string) (*models.Token, error) {
	f.hit("book")
	return f.bookFn(doctorID, date)
}

func (f *fakeAPI) CancelToken(context.Context, string) error {
	f.hit("cancel")
	return nil
}

func (f *fakeAPI) QueueStats(context.Context, string) (models.QueueStats, error) {
	f.hit("stats")
	return models.QueueStats{TotalWaiting: 3, NextEstimatedWaitTime: 15}, nil
}

func (f *fakeAPI) PublicQueue(context.Context, string) ([]models.Token, error) {
	f.hit("queue")
	return nil, nil
}

func (f *fakeAPI) Prescriptions(context.Context) ([]models.Prescription, error) {
	f.hit("prescriptions")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Prescription(nil), f.prescriptions...), nil
}

func (f *fakeAPI) DeletePrescription(context.Context, string) error {
	f.hit("delete")
	return nil
}

func (f *fakeAPI) PayFees(context.Context, string, string) error {
	f.hit("pay")
	return nil
}

func (f *fakeAPI) ResendOTP(context.Context, string, string) error {
	f.hit("resend")
	return nil
}

type fakeRealtime struct {
	mu       sync.Mutex
	handlers map[string]map[int]realtime.Handler
	next     int
	emitted  []string
}

func (f *fakeRealtime) On(eventType string, h realtime.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string]map[int]realtime.Handler{}
	}
	if f.handlers[eventType] == nil {
		f.handlers[eventType] = map[int]realtime.Handler{}
	}
	f.next++
	id := f.next
	f.handlers[eventType][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[eventType], id)
	}
}

func (f *fakeRealtime) Emit(action string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, action)
	return nil
}

func (f *fakeRealtime) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

func (f *fakeRealtime) push(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.mu.Lock()
	hs := make([]realtime.Handler, 0)
	for _, h := range f.handlers[eventType] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(realtime.Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	}
}

type recordingProvider struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingProvider) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingProvider) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

type authenticated struct{}

func (authenticated) State() session.State { return session.StateAuthenticated }

func (authenticated) User() (models.User, bool) {
	return models.User{ID: "P1", Role: models.RolePatient}, true
}

type harness struct {
	api       *fakeAPI
	rt        *fakeRealtime
	router    *router.Router
	provider  *recordingProvider
	notifier  *notify.Dispatcher
	alerts    *ui.Recorder
	dashboard *Dashboard
}

func newHarness() *harness {
	h := &harness{
		api:      &fakeAPI{},
		rt:       &fakeRealtime{},
		router:   router.New(authenticated{}),
		provider: &recordingProvider{},
		alerts:   &ui.Recorder{},
	}
	h.notifier = notify.NewDispatcher(h.provider, time.Second, nil)
	h.dashboard = New(Options{
		User:     models.User{ID: "P1", Name: "Asha", Role: models.RolePatient},
		API:      h.api,
		Realtime: h.rt,
		Router:   h.router,
		Notifier: h.notifier,
		Alerter:  h.alerts,
		Confirm:  ui.AutoConfirm(true),
	})
	return h
}

func TestMountSubscribesAndUnmountDisposes(t *testing.T) {
	h := newHarness()
	unmount, err := h.dashboard.Mount(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, h.api.count("doctors"))
	assert.Equal(t, 1, h.api.count("my-token"))
	assert.Equal(t, 1, h.api.count("prescriptions"))
	assert.Equal(t, []string{"join-patient"}, h.rt.emitted)
	assert.Equal(t, 4, h.rt.total())

	_, err = h.dashboard.Mount(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyMounted))
	assert.Equal(t, 4, h.rt.total())

	// An unrelated subscriber must survive the unmount.
	h.rt.On(EventQueueUpdate, func(realtime.Event) {})
	unmount()
	unmount()
	assert.Equal(t, 1, h.rt.total())

	again, err := h.dashboard.Mount(context.Background())
	require.NoError(t, err)
	again()
}

func TestBookingScenario(t *testing.T) {
	h := newHarness()
	h.api.bookFn = func(doctorID, date string) (*models.Token, error) {
		assert.Equal(t, "D1", doctorID)
		assert.Equal(t, "2024-06-01", date)
		return &models.Token{ID: "T12", TokenNumber: 12, Position: 4, Status: models.TokenWaiting, Doctor: &models.Doctor{ID: "D1", Name: "Rao"}}, nil
	}

	require.NoError(t, h.dashboard.Book(context.Background(), "D1", "2024-06-01"))
	h.notifier.Wait()

	assert.Equal(t, 1, h.api.count("book"))
	snap := h.dashboard.Queue().Snapshot()
	require.NotNil(t, snap.Token)
	assert.Equal(t, 12, snap.Token.TokenNumber)
	assert.Equal(t, 4, snap.Token.Position)
	assert.Equal(t, models.TokenWaiting, snap.Token.Status)
	assert.Equal(t, router.TabQueue, h.router.Tab())

	sent := h.provider.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "Success!", sent[0].Title)
	assert.Contains(t, sent[0].Body, "#12")
}

func TestBookingFailureAlerts(t *testing.T) {
	h := newHarness()
	h.api.bookFn = func(string, string) (*models.Token, error) {
		return nil, &models.ServerError{Status: 409, Message: "You already have an active token"}
	}
	err := h.dashboard.Book(context.Background(), "D1", "2024-06-01")
	assert.True(t, errors.Is(err, models.ErrBookingConflict))

	err = h.dashboard.Book(context.Background(), "", "2024-06-01")
	assert.True(t, errors.Is(err, models.ErrValidation))

	alerts := h.alerts.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "You already have an active token", alerts[0].Body)
	assert.Equal(t, "Missing Info", alerts[1].Title)
	assert.Equal(t, router.TabHome, h.router.Tab())
}

func TestFeeReadyScenario(t *testing.T) {
	h := newHarness()
	h.api.prescriptions = []models.Prescription{{ID: "R1", Status: models.PrescriptionReadyForPayment, Fee: &models.Fee{Total: 250}}}
	unmount, err := h.dashboard.Mount(context.Background())
	require.NoError(t, err)
	defer unmount()
	before := h.api.count("prescriptions")

	h.dashboard.HandleFeeReady(context.Background(), FeeReadyEvent{PatientID: "P1", TotalFee: 250.00})
	h.notifier.Wait()

	sent := h.provider.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "Payment Required!", sent[0].Title)
	assert.Contains(t, sent[0].Body, notify.FormatINR(250))
	assert.Equal(t, before+1, h.api.count("prescriptions"))
	assert.Equal(t, router.TabPharmacy, h.router.Tab())

	selected := h.dashboard.Pharmacy().Snapshot().Selected
	require.NotNil(t, selected)
	assert.Equal(t, "R1", selected.ID)
	assert.Equal(t, 1, h.dashboard.NavBar()[2].Badge)
}

func TestPushForOtherPatientIgnored(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.dashboard.HandleFeeReady(ctx, FeeReadyEvent{PatientID: "P2", TotalFee: 10})
	h.dashboard.HandleDelivered(ctx, DeliveredEvent{PatientID: "P2"})
	h.dashboard.HandleNewPrescription(ctx, NewPrescriptionEvent{Token: &models.Token{Patient: &models.PatientRef{ID: "P2"}}})
	h.notifier.Wait()

	assert.Empty(t, h.provider.all())
	assert.Empty(t, h.alerts.Alerts())
	assert.Zero(t, h.api.count("prescriptions"))
	assert.Equal(t, router.TabHome, h.router.Tab())
}

func TestNewPrescriptionMatchesTokenPatient(t *testing.T) {
	h := newHarness()
	h.dashboard.HandleNewPrescription(context.Background(), NewPrescriptionEvent{
		Token: &models.Token{Patient: &models.PatientRef{ID: "P1"}},
	})
	h.notifier.Wait()

	alerts := h.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Prescription Ready!", alerts[0].Title)
	assert.Equal(t, 1, h.api.count("prescriptions"))
	assert.Equal(t, 1, h.api.count("my-token"))
}

func TestQueueUpdatePushNotifiesYourTurn(t *testing.T) {
	h := newHarness()
	h.api.token = &models.Token{ID: "T7", TokenNumber: 7, Position: 1, Status: models.TokenWaiting, Doctor: &models.Doctor{ID: "D1", Name: "Rao"}}
	unmount, err := h.dashboard.Mount(context.Background())
	require.NoError(t, err)

	h.api.mu.Lock()
	h.api.token = &models.Token{ID: "T7", TokenNumber: 7, Position: 0, Status: models.TokenInConsultation, Doctor: &models.Doctor{ID: "D1", Name: "Rao"}}
	h.api.mu.Unlock()
	h.rt.push(t, EventQueueUpdate, map[string]string{"doctorId": "D1"})
	unmount()
	h.notifier.Wait()

	sent := h.provider.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "It's Your Turn!", sent[0].Title)
	assert.True(t, strings.Contains(sent[0].Body, "Dr. Rao"))
}

func TestDeliveredClearsOTP(t *testing.T) {
	h := newHarness()
	h.api.prescriptions = []models.Prescription{{ID: "R1", Status: models.PrescriptionReadyForPayment, Fee: &models.Fee{Total: 80}}}
	ctx := context.Background()
	require.NoError(t, h.dashboard.Refresh(ctx))
	require.NoError(t, h.dashboard.Pay(ctx, "R1"))
	assert.NotEmpty(t, h.dashboard.Pharmacy().Snapshot().DeliveryOTP)
	assert.Equal(t, router.TabPharmacy, h.router.Tab())

	h.dashboard.HandleDelivered(ctx, DeliveredEvent{PatientID: "P1"})
	h.notifier.Wait()
	assert.Empty(t, h.dashboard.Pharmacy().Snapshot().DeliveryOTP)

	titles := []string{}
	for _, a := range h.alerts.Alerts() {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, []string{"Payment Successful!", "Delivery Complete"}, titles)
}

func TestCancelWithoutTokenIsSilent(t *testing.T) {
	h := newHarness()
	assert.NoError(t, h.dashboard.Cancel(context.Background()))
	assert.Empty(t, h.alerts.Alerts())
	assert.Zero(t, h.api.count("cancel"))
}

func TestTabChangeDrivesSelection(t *testing.T) {
	h := newHarness()
	h.api.prescriptions = []models.Prescription{
		{ID: "R1", Status: models.PrescriptionSubmitted},
		{ID: "R2", Status: models.PrescriptionPaid},
	}
	unmount, err := h.dashboard.Mount(context.Background())
	require.NoError(t, err)
	defer unmount()

	h.router.SetTab(router.TabPharmacy)
	require.NotNil(t, h.dashboard.Pharmacy().Snapshot().Selected)
	assert.Equal(t, "R2", h.dashboard.Pharmacy().Snapshot().Selected.ID)

	h.router.SetTab(router.TabPrescriptions)
	assert.NotNil(t, h.dashboard.Pharmacy().Snapshot().Selected)

	h.router.SetTab(router.TabHome)
	assert.Nil(t, h.dashboard.Pharmacy().Snapshot().Selected)
}
