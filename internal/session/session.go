package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/models"
	"qms/patient-client/internal/store"

	"github.com/sirupsen/logrus"
)

type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid-credentials"
	ReasonDuplicateAccount   Reason = "duplicate-account"
	ReasonNetwork            Reason = "network-unreachable"
	ReasonInvalidResponse    Reason = "invalid-response"
	ReasonValidation         Reason = "validation"
	ReasonServer             Reason = "server"
	ReasonStorage            Reason = "storage"
)

const demoPassword = "password123"

// Result is what Login and Register report back to the caller. It never
// carries a Go error so the login screen can render Message directly.
type Result struct {
	Success bool
	Message string
	Reason  Reason
	User    *models.User
}

// Gateway is the part of the API client the session needs.
type Gateway interface {
	Login(ctx context.Context, email, password string) (models.Session, error)
	Register(ctx context.Context, profile models.Profile) (models.Session, error)
	SetCredential(credential string)
	ClearCredential()
}

// Store owns the authenticated session. There is exactly one per process.
type Store struct {
	api   Gateway
	creds store.CredentialStore
	log   *logrus.Entry

	mu        sync.RWMutex
	state     State
	session   models.Session
	observers map[uint64]func(State)
	nextID    uint64
}

func New(api Gateway, creds store.CredentialStore, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{
		api:       api,
		creds:     creds,
		log:       log.WithComponent("session"),
		state:     StateLoading,
		observers: make(map[uint64]func(State)),
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns the signed-in user, or false when unauthenticated.
func (s *Store) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return models.User{}, false
	}
	return s.session.User, true
}

// Credential returns the bearer credential of the current session, if any.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return ""
	}
	return s.session.Credential
}

// Subscribe registers fn to run after every state change.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Restore silently reloads a persisted session and settles the loading state.
func (s *Store) Restore(ctx context.Context) {
	saved, found, err := s.creds.Load(ctx)
	switch {
	case err != nil:
		s.log.WithError(err).Warn("stored session unreadable, discarding")
		if clearErr := s.creds.Clear(ctx); clearErr != nil {
			s.log.WithError(clearErr).Warn("clear stored session")
		}
	case found && saved.Valid():
		s.api.SetCredential(saved.Credential)
		s.transition(StateAuthenticated, saved)
		s.log.WithField("user_id", saved.User.ID).Info("session restored")
		return
	}
	s.transition(StateUnauthenticated, models.Session{})
}

func (s *Store) Login(ctx context.Context, email, password string) Result {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return failure(ReasonValidation, "Please enter email and password.")
	}
	sess, err := s.api.Login(ctx, email, password)
	if err != nil {
		return s.failed("login", err, loginFallback(err))
	}
	return s.establish(ctx, sess)
}

func (s *Store) Register(ctx context.Context, profile models.Profile) Result {
	if err := ValidateProfile(profile); err != nil {
		return failure(ReasonValidation, models.UserMessage(err, "Invalid registration details."))
	}
	if profile.Role == "" {
		profile.Role = models.RolePatient
	}
	sess, err := s.api.Register(ctx, profile)
	if err != nil {
		return s.failed("register", err, "Registration failed. Check server status.")
	}
	return s.establish(ctx, sess)
}

// DemoLogin signs in with the well-known demo account for role.
func (s *Store) DemoLogin(ctx context.Context, role string) Result {
	email := "doctor@demo.com"
	if role == models.RolePatient {
		email = "patient@demo.com"
	}
	return s.Login(ctx, email, demoPassword)
}

// Logout always ends the session locally. Storage failures are logged.
func (s *Store) Logout(ctx context.Context) {
	if err := s.creds.Clear(ctx); err != nil {
		s.log.WithError(err).Error("could not clear local session")
	}
	s.api.ClearCredential()
	s.transition(StateUnauthenticated, models.Session{})
	s.log.Info("logged out")
}

// HandleUnauthorized ends the session after the server rejected the credential.
func (s *Store) HandleUnauthorized() {
	if s.State() != StateAuthenticated {
		return
	}
	s.log.Warn("credential rejected by server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Logout(ctx)
}

// establish persists first and only then attaches the credential, so a
// storage failure leaves the store unauthenticated with nothing attached.
func (s *Store) establish(ctx context.Context, sess models.Session) Result {
	if !sess.Valid() {
		return failure(ReasonInvalidResponse, "Server login successful but returned invalid data.")
	}
	if err := s.creds.Save(ctx, sess); err != nil {
		s.log.WithError(err).Error("persist session")
		return failure(ReasonStorage, "Could not save session on this device.")
	}
	s.api.SetCredential(sess.Credential)
	s.transition(StateAuthenticated, sess)
	s.log.WithFields(logrus.Fields{"user_id": sess.User.ID, "role": sess.User.Role}).Info("signed in")
	user := sess.User
	return Result{Success: true, User: &user}
}

func (s *Store) failed(op string, err error, fallback string) Result {
	reason := classify(err)
	s.log.WithError(err).WithField("reason", reason).Warn(op + " failed")
	if reason == ReasonInvalidResponse {
		fallback = "Server returned invalid data."
	}
	return failure(reason, models.UserMessage(err, fallback))
}

func (s *Store) transition(next State, sess models.Session) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.session = sess
	observers := make([]func(State), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range observers {
		fn(next)
	}
}

func failure(reason Reason, message string) Result {
	return Result{Success: false, Reason: reason, Message: message}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, models.ErrValidation):
		return ReasonValidation
	case errors.Is(err, models.ErrUnauthorized):
		return ReasonInvalidCredentials
	case errors.Is(err, models.ErrBookingConflict):
		return ReasonDuplicateAccount
	case errors.Is(err, models.ErrNetwork):
		return ReasonNetwork
	case errors.Is(err, models.ErrInvalidResponse):
		return ReasonInvalidResponse
	}
	return ReasonServer
}

func loginFallback(err error) string {
	if errors.Is(err, models.ErrNetwork) {
		return "Login failed. Server unreachable."
	}
	return "Login failed."
}

// ValidateProfile applies the registration form rules before any network call.
func ValidateProfile(p models.Profile) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return models.NewValidationError("name", "Please enter your name.")
	case !strings.Contains(p.Email, "@"):
		return models.NewValidationError("email", "Please enter a valid email.")
	case p.Password != p.ConfirmPassword:
		return models.NewValidationError("confirmPassword", "Passwords do not match.")
	case len(p.Password) < 6:
		return models.NewValidationError("password", "Password must be at least 6 characters.")
	case p.Age < 0 || p.Age > 120:
		return models.NewValidationError("age", fmt.Sprintf("Please enter a valid age (0-120), got %d.", p.Age))
	}
	return nil
}
