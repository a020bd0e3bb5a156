package sandbox

import (
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"net/http"
	"time"

	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/models"

	"github.com/gorilla/mux"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Options struct {
	RateLimit      RateLimitConfig
	AllowedOrigins []string
	Now            func() time.Time
	Logger         *logging.Logger
}

// Server is an in-memory hospital backend speaking the patient app's REST and
// realtime contract.
type Server struct {
	backend *Backend
	hub     *Hub
	limiter *RateLimiter
	origins []string
	log     *logrus.Entry
}

type envelope struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	Data      interface{}    `json:"data,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Error     *responseError `json:"error,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type bookRequest struct {
	DoctorID    string `json:"doctorId"`
	BookingDate string `json:"bookingDate"`
}

type otpRequest struct {
	MockOTP string `json:"mockOtp"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	hub := NewHub(logger.WithComponent("sandbox-hub"))
	return &Server{
		backend: NewBackend(hub, opts.Now),
		hub:     hub,
		limiter: NewRateLimiter(opts.RateLimit),
		origins: origins,
		log:     logger.WithComponent("sandbox"),
	}
}

func (s *Server) Backend() *Backend {
	return s.backend
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", expvar.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.Handle("/auth/logout", s.authenticate(s.handleLogout)).Methods(http.MethodPost)
	api.Handle("/doctors/list", s.authenticate(s.handleDoctors)).Methods(http.MethodGet)
	api.Handle("/queue/my-token", s.authenticate(s.handleMyToken)).Methods(http.MethodGet)
	api.Handle("/queue/get-token", s.authenticate(s.handleBookToken)).Methods(http.MethodPost)
	api.Handle("/queue/cancel-token/{id}", s.authenticate(s.handleCancelToken)).Methods(http.MethodDelete)
	api.Handle("/queue/queue-stats/{doctorId}", s.authenticate(s.handleQueueStats)).Methods(http.MethodGet)
	api.Handle("/queue/public-queue/{doctorId}", s.authenticate(s.handlePublicQueue)).Methods(http.MethodGet)
	api.Handle("/patients/prescriptions", s.authenticate(s.handlePrescriptions)).Methods(http.MethodGet)
	api.Handle("/patients/prescriptions/{id}", s.authenticate(s.handleDeletePrescription)).Methods(http.MethodDelete)
	api.Handle("/patients/pay-fees/{id}", s.authenticate(s.handlePayFees)).Methods(http.MethodPost)
	api.Handle("/patients/resend-otp/{id}", s.authenticate(s.handleResendOTP)).Methods(http.MethodPost)

	api.HandleFunc("/sandbox/advance/{doctorId}", s.handleAdvance).Methods(http.MethodPost)
	api.HandleFunc("/sandbox/consult/{tokenId}", s.handleConsult).Methods(http.MethodPost)
	api.HandleFunc("/sandbox/fee/{prescriptionId}", s.handleFee).Methods(http.MethodPost)
	api.HandleFunc("/sandbox/deliver/{prescriptionId}", s.handleDeliver).Methods(http.MethodPost)

	r.PathPrefix("/realtime").Handler(sockjs.NewHandler("/realtime", sockjs.DefaultOptions, s.serveSession))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "Route not found")
	})
	return r
}

// Handler is Routes wrapped in CORS, rate limiting, request logging and tracing.
func (s *Server) Handler() http.Handler {
	withCORS := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}).Handler(s.Routes())
	return otelhttp.NewHandler(LoggingMiddleware(s.log, s.limiter.Middleware(withCORS)), "patient-sandbox")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	session, err := s.backend.Login(req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Login successful", session)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var profile models.Profile
	if !decodeRequest(w, r, &profile, false) {
		return
	}
	session, err := s.backend.Register(profile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Registration successful", session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.backend.Revoke(bearerToken(r.Header.Get("Authorization")))
	writeData(w, http.StatusOK, "Logged out", nil)
}

func (s *Server) handleDoctors(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", map[string]interface{}{"doctors": s.backend.Doctors()})
}

func (s *Server) handleMyToken(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeData(w, http.StatusOK, "", map[string]interface{}{"token": s.backend.MyToken(user.ID)})
}

func (s *Server) handleBookToken(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	user, _ := userFromContext(r.Context())
	if user.Role != models.RolePatient {
		writeError(w, r, http.StatusForbidden, "forbidden", "Only patients can book tokens")
		return
	}
	token, err := s.backend.BookToken(user, req.DoctorID, req.BookingDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Token booked", map[string]interface{}{"token": token})
}

func (s *Server) handleCancelToken(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	if err := s.backend.CancelToken(user.ID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Token cancelled", nil)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats := s.backend.QueueStats(mux.Vars(r)["doctorId"])
	writeData(w, http.StatusOK, "", map[string]interface{}{"stats": stats})
}

func (s *Server) handlePublicQueue(w http.ResponseWriter, r *http.Request) {
	queue := s.backend.PublicQueue(mux.Vars(r)["doctorId"])
	writeData(w, http.StatusOK, "", map[string]interface{}{"queue": queue})
}

func (s *Server) handlePrescriptions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeData(w, http.StatusOK, "", map[string]interface{}{"prescriptions": s.backend.Prescriptions(user.ID)})
}

func (s *Server) handleDeletePrescription(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	if err := s.backend.DeletePrescription(user.ID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Prescription deleted", nil)
}

func (s *Server) handlePayFees(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	user, _ := userFromContext(r.Context())
	prescription, err := s.backend.PayFees(user.ID, mux.Vars(r)["id"], req.MockOTP)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Payment successful", map[string]interface{}{"prescription": prescription})
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	user, _ := userFromContext(r.Context())
	if err := s.backend.ResendOTP(user.ID, mux.Vars(r)["id"], req.MockOTP); err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "OTP resent", nil)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	token, err := s.backend.Advance(mux.Vars(r)["doctorId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Queue advanced", map[string]interface{}{"token": token})
}

func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request) {
	var details models.PrescriptionDetails
	if !decodeRequest(w, r, &details, true) {
		return
	}
	prescription, err := s.backend.Consult(mux.Vars(r)["tokenId"], details)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Prescription submitted", map[string]interface{}{"prescription": prescription})
}

func (s *Server) handleFee(w http.ResponseWriter, r *http.Request) {
	var input FeeInput
	if !decodeRequest(w, r, &input, true) {
		return
	}
	prescription, err := s.backend.ReadyFee(mux.Vars(r)["prescriptionId"], input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Fee ready", map[string]interface{}{"prescription": prescription})
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var input DeliverInput
	if !decodeRequest(w, r, &input, true) {
		return
	}
	prescription, err := s.backend.Deliver(mux.Vars(r)["prescriptionId"], input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Medicines delivered", map[string]interface{}{"prescription": prescription})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, r, status, code, message)
}

// decodeRequest rejects unknown fields. An optional body may be empty.
func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, r, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	var inputErr *InputError
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, "invalid_input", inputErr.Message
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid credentials"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized", "Not authorized, token failed"
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict, "user_exists", "User already exists"
	case errors.Is(err, ErrActiveToken):
		return http.StatusConflict, "active_token", "You already have an active token"
	case errors.Is(err, ErrDoctorNotFound):
		return http.StatusNotFound, "doctor_not_found", "Doctor not found"
	case errors.Is(err, ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "Token not found"
	case errors.Is(err, ErrPrescriptionNotFound):
		return http.StatusNotFound, "prescription_not_found", "Prescription not found"
	case errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest, "invalid_state", "This action is not allowed right now"
	case errors.Is(err, ErrOTPMismatch):
		return http.StatusBadRequest, "otp_mismatch", "OTP does not match"
	default:
		return http.StatusInternalServerError, "internal_error", "Internal server error"
	}
}

func writeData(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, envelope{
		Message:   message,
		RequestID: r.Header.Get("X-Request-ID"),
		Error: &responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
