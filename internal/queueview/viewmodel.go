package queueview

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/models"
	"qms/patient-client/internal/ui"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const bookingDateLayout = "2006-01-02"

type API interface {
	ListDoctors(ctx context.Context) ([]models.Doctor, error)
	MyToken(ctx context.Context) (*models.Token, error)
	BookToken(ctx context.Context, doctorID, bookingDate string) (*models.Token, error)
	CancelToken(ctx context.Context, tokenID string) error
	QueueStats(ctx context.Context, doctorID string) (models.QueueStats, error)
	PublicQueue(ctx context.Context, doctorID string) ([]models.Token, error)
}

type Emitter interface {
	Emit(action string, payload interface{}) error
}

// Snapshot is an immutable copy of the view state.
type Snapshot struct {
	Doctors        []models.Doctor
	SelectedDoctor string
	Token          *models.Token
	Queue          []models.Token
	Stats          models.QueueStats
	StatsLoaded    bool
	Loading        bool
}

func (s Snapshot) PatientsAhead() []models.Token {
	return PatientsAhead(s.Queue, s.Token)
}

// Transition is the before/after pair of the patient's token around a refresh.
type Transition struct {
	Before *models.Token
	After  *models.Token
}

type ViewModel struct {
	api     API
	emitter Emitter
	confirm ui.Confirmer
	log     *logrus.Entry

	mu          sync.Mutex
	doctors     []models.Doctor
	selected    string
	token       *models.Token
	queue       []models.Token
	stats       models.QueueStats
	statsLoaded bool
	loading     bool

	// Stats and queue results are applied only for the most recently
	// requested doctor and never older than what was already applied.
	requested string
	seq       uint64
	statsSeq  uint64
	queueSeq  uint64

	// Token results follow the same rule: a response older than the token
	// already in place is dropped.
	tokenReq uint64
	tokenSeq uint64
}

func New(api API, emitter Emitter, confirm ui.Confirmer, log *logging.Logger) *ViewModel {
	if log == nil {
		log = logging.Discard()
	}
	return &ViewModel{
		api:     api,
		emitter: emitter,
		confirm: confirm,
		log:     log.WithComponent("queueview"),
	}
}

func (v *ViewModel) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		Doctors:        append([]models.Doctor(nil), v.doctors...),
		SelectedDoctor: v.selected,
		Token:          copyToken(v.token),
		Queue:          append([]models.Token(nil), v.queue...),
		Stats:          v.stats,
		StatsLoaded:    v.statsLoaded,
		Loading:        v.loading,
	}
}

func (v *ViewModel) FetchDoctors(ctx context.Context) error {
	doctors, err := v.api.ListDoctors(ctx)
	if err != nil {
		v.log.WithError(err).Warn("fetch doctors")
		return err
	}
	v.mu.Lock()
	v.doctors = doctors
	v.mu.Unlock()
	return nil
}

// FetchCurrentToken replaces the patient's token. A null token from the
// server clears it; on error the previous token is kept. It returns the token
// held once the result has been reconciled.
func (v *ViewModel) FetchCurrentToken(ctx context.Context) (*models.Token, error) {
	tr, err := v.fetchToken(ctx)
	if err != nil {
		return nil, err
	}
	return tr.After, nil
}

// fetchToken swaps in the server's token and reports the token it replaced.
// Before is read at the swap, so concurrent fetches never report the same
// change twice. A stale response leaves the token alone and reports no change.
func (v *ViewModel) fetchToken(ctx context.Context) (Transition, error) {
	v.mu.Lock()
	v.tokenReq++
	seq := v.tokenReq
	v.mu.Unlock()

	token, err := v.api.MyToken(ctx)
	if err != nil {
		v.log.WithError(err).Warn("fetch current token")
		return Transition{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq < v.tokenSeq {
		v.log.WithField("seq", seq).Debug("discard stale token")
		current := copyToken(v.token)
		return Transition{Before: current, After: copyToken(current)}, nil
	}
	before := v.token
	v.tokenSeq = seq
	v.token = copyToken(token)
	return Transition{Before: copyToken(before), After: copyToken(v.token)}, nil
}

// setTokenLocked records a token written by a user action. Fetches issued
// before it are stale from now on. Callers hold v.mu.
func (v *ViewModel) setTokenLocked(token *models.Token) {
	v.tokenReq++
	v.tokenSeq = v.tokenReq
	v.token = copyToken(token)
}

// SelectDoctor sets the doctor of interest and refreshes its stats and queue.
// An empty id clears both.
func (v *ViewModel) SelectDoctor(ctx context.Context, doctorID string) error {
	v.mu.Lock()
	v.selected = doctorID
	v.mu.Unlock()
	return v.refreshDoctor(ctx, doctorID)
}

func (v *ViewModel) BookToken(ctx context.Context, doctorID, bookingDate string) (*models.Token, error) {
	doctorID = strings.TrimSpace(doctorID)
	bookingDate = strings.TrimSpace(bookingDate)
	if doctorID == "" || bookingDate == "" {
		return nil, models.NewValidationError("booking", "Please select a doctor and date.")
	}
	if _, err := time.Parse(bookingDateLayout, bookingDate); err != nil {
		return nil, models.NewValidationError("bookingDate", "Please enter the date as YYYY-MM-DD.")
	}

	v.setLoading(true)
	defer v.setLoading(false)

	token, err := v.api.BookToken(ctx, doctorID, bookingDate)
	if err != nil {
		v.log.WithError(err).WithField("doctor_id", doctorID).Warn("book token")
		return nil, err
	}
	if token == nil {
		return nil, models.ErrInvalidResponse
	}

	v.mu.Lock()
	v.setTokenLocked(token)
	v.selected = doctorID
	v.mu.Unlock()
	v.log.WithFields(logrus.Fields{"doctor_id": doctorID, "token_number": token.TokenNumber}).Info("token booked")

	if err := v.emitter.Emit("join-queue", map[string]string{"doctorId": doctorID}); err != nil {
		v.log.WithError(err).Warn("join queue room")
	}
	if err := v.refreshDoctor(ctx, doctorID); err != nil {
		v.log.WithError(err).Warn("refresh queue after booking")
	}
	return copyToken(token), nil
}

// CancelToken cancels the patient's waiting token after confirmation and
// returns the cancelled token.
func (v *ViewModel) CancelToken(ctx context.Context) (*models.Token, error) {
	v.mu.Lock()
	current := copyToken(v.token)
	selected := v.selected
	v.mu.Unlock()

	if current == nil || !ValidTransition("cancel", current.Status) {
		return nil, models.ErrStateConflict
	}
	ok, err := v.confirm.Confirm(ctx, "Confirm Cancellation",
		fmt.Sprintf("Are you sure you want to cancel your token #%d? This action cannot be undone.", current.TokenNumber))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrCancelled
	}

	v.setLoading(true)
	defer v.setLoading(false)

	if err := v.api.CancelToken(ctx, current.ID); err != nil {
		v.log.WithError(err).WithField("token_id", current.ID).Warn("cancel token")
		return nil, err
	}

	v.mu.Lock()
	if v.token != nil && v.token.ID == current.ID {
		v.setTokenLocked(nil)
	}
	v.queue = nil
	v.mu.Unlock()

	if selected != "" {
		seq := v.request(selected)
		if err := v.fetchStats(ctx, selected, seq); err != nil {
			v.log.WithError(err).Warn("refresh stats after cancel")
		}
	}
	return current, nil
}

// HandleQueueUpdate reconciles state after a queue-update push and returns the
// token before and after so transitions can be observed.
func (v *ViewModel) HandleQueueUpdate(ctx context.Context) (Transition, error) {
	tr, err := v.fetchToken(ctx)
	if err != nil {
		current := v.Snapshot().Token
		return Transition{Before: current, After: copyToken(current)}, err
	}

	v.mu.Lock()
	selected := v.selected
	v.mu.Unlock()
	doctorID := tr.After.DoctorID()
	if doctorID == "" {
		doctorID = selected
	}
	if doctorID != "" {
		if err := v.refreshDoctor(ctx, doctorID); err != nil {
			v.log.WithError(err).WithField("doctor_id", doctorID).Warn("refresh queue")
		}
	}
	return tr, nil
}

func (v *ViewModel) refreshDoctor(ctx context.Context, doctorID string) error {
	seq := v.request(doctorID)
	if doctorID == "" {
		v.mu.Lock()
		if v.requested == "" {
			v.stats = models.QueueStats{}
			v.statsLoaded = false
			v.queue = nil
		}
		v.mu.Unlock()
		return nil
	}

	// A failed stats call must not cancel the queue fetch.
	var g errgroup.Group
	g.Go(func() error { return v.fetchStats(ctx, doctorID, seq) })
	g.Go(func() error { return v.fetchQueue(ctx, doctorID, seq) })
	return g.Wait()
}

func (v *ViewModel) request(doctorID string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	v.requested = doctorID
	return v.seq
}

func (v *ViewModel) fetchStats(ctx context.Context, doctorID string, seq uint64) error {
	stats, err := v.api.QueueStats(ctx, doctorID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.requested != doctorID || seq < v.statsSeq {
		v.log.WithFields(logrus.Fields{"doctor_id": doctorID, "seq": seq}).Debug("discard stale stats")
		return nil
	}
	v.statsSeq = seq
	v.stats = stats
	v.statsLoaded = true
	return nil
}

func (v *ViewModel) fetchQueue(ctx context.Context, doctorID string, seq uint64) error {
	queue, err := v.api.PublicQueue(ctx, doctorID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.requested != doctorID || seq < v.queueSeq {
		v.log.WithFields(logrus.Fields{"doctor_id": doctorID, "seq": seq}).Debug("discard stale queue")
		return nil
	}
	v.queueSeq = seq
	v.queue = queue
	return nil
}

func (v *ViewModel) setLoading(loading bool) {
	v.mu.Lock()
	v.loading = loading
	v.mu.Unlock()
}

func copyToken(t *models.Token) *models.Token {
	if t == nil {
		return nil
	}
	c := *t
	if t.Doctor != nil {
		d := *t.Doctor
		c.Doctor = &d
	}
	if t.Patient != nil {
		p := *t.Patient
		c.Patient = &p
	}
	return &c
}
