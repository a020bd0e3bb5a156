package sandbox

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"qms/patient-client/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DemoPassword   = "password123"
	DemoPatient    = "patient@demo.com"
	DemoDoctor     = "doctor@demo.com"
	consultMinutes = 15
	taxRate        = 0.05
)

const (
	EventQueueUpdate     = "queue-update"
	EventNewPrescription = "new-prescription"
	EventFeeReady        = "prescription-fee-ready"
	EventDelivered       = "prescription-delivered"
)

var otpPattern = regexp.MustCompile(`^\d{6}$`)

// Publisher fans backend changes out to realtime subscribers.
type Publisher interface {
	Publish(eventType string, payload interface{}, room Room)
}

type account struct {
	user         models.User
	passwordHash []byte
}

type FeeInput struct {
	Consultation float64 `json:"consultation"`
	Subtotal     float64 `json:"subtotal"`
}

type DeliverInput struct {
	OTP string `json:"otp"`
}

// Backend keeps the whole sandbox hospital in memory.
type Backend struct {
	mu            sync.Mutex
	now           func() time.Time
	publisher     Publisher
	byEmail       map[string]*account
	byID          map[string]*account
	credentials   map[string]string
	doctors       []models.Doctor
	tokens        []*models.Token
	prescriptions []*models.Prescription
	otps          map[string]string
	lastNumber    map[string]int
}

func NewBackend(publisher Publisher, now func() time.Time) *Backend {
	if now == nil {
		now = time.Now
	}
	b := &Backend{
		now:         now,
		publisher:   publisher,
		byEmail:     make(map[string]*account),
		byID:        make(map[string]*account),
		credentials: make(map[string]string),
		otps:        make(map[string]string),
		lastNumber:  make(map[string]int),
	}
	b.seed()
	return b
}

func (b *Backend) seed() {
	demo := []models.Profile{
		{Name: "Demo Patient", Email: DemoPatient, Password: DemoPassword, Role: models.RolePatient, Age: 34, Phone: "9876543210"},
		{Name: "Meera Iyer", Email: DemoDoctor, Password: DemoPassword, Role: models.RoleDoctor, Specialization: "General Medicine", Department: "OPD"},
		{Name: "Arjun Rao", Email: "cardio@demo.com", Password: DemoPassword, Role: models.RoleDoctor, Specialization: "Cardiology", Department: "Cardiology"},
		{Name: "Kavya Shah", Email: "peds@demo.com", Password: DemoPassword, Role: models.RoleDoctor, Specialization: "Pediatrics", Department: "Pediatrics"},
	}
	for _, profile := range demo {
		if _, err := b.addAccount(profile); err != nil {
			panic(err)
		}
	}
}

func (b *Backend) addAccount(profile models.Profile) (*account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(profile.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc := &account{
		user: models.User{
			ID:             newObjectID(b.now()),
			Name:           profile.Name,
			Email:          strings.ToLower(profile.Email),
			Role:           profile.Role,
			Phone:          profile.Phone,
			Age:            profile.Age,
			Specialization: profile.Specialization,
			Department:     profile.Department,
		},
		passwordHash: hash,
	}
	b.byEmail[acc.user.Email] = acc
	b.byID[acc.user.ID] = acc
	if acc.user.Role == models.RoleDoctor {
		b.doctors = append(b.doctors, models.Doctor{ID: acc.user.ID, Name: acc.user.Name, Specialization: acc.user.Specialization})
	}
	return acc, nil
}

func (b *Backend) Login(email, password string) (models.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return models.Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return models.Session{}, ErrInvalidCredentials
	}
	return b.issue(acc), nil
}

func (b *Backend) Register(profile models.Profile) (models.Session, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Email = strings.TrimSpace(profile.Email)
	if profile.Name == "" || profile.Email == "" || profile.Password == "" {
		return models.Session{}, invalidInput("Name, email and password are required")
	}
	if !strings.Contains(profile.Email, "@") {
		return models.Session{}, invalidInput("Please enter a valid email")
	}
	if len(profile.Password) < 6 {
		return models.Session{}, invalidInput("Password must be at least 6 characters")
	}
	if profile.Role == "" {
		profile.Role = models.RolePatient
	}
	if profile.Role != models.RolePatient && profile.Role != models.RoleDoctor {
		return models.Session{}, invalidInput("Unknown role")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.byEmail[strings.ToLower(profile.Email)]; exists {
		return models.Session{}, ErrUserExists
	}
	acc, err := b.addAccount(profile)
	if err != nil {
		return models.Session{}, err
	}
	return b.issue(acc), nil
}

func (b *Backend) issue(acc *account) models.Session {
	credential := uuid.NewString()
	b.credentials[credential] = acc.user.ID
	return models.Session{Credential: credential, User: acc.user}
}

// Authenticate resolves a bearer credential to its user.
func (b *Backend) Authenticate(credential string) (models.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.credentials[credential]
	if !ok {
		return models.User{}, ErrUnauthenticated
	}
	acc, ok := b.byID[id]
	if !ok {
		return models.User{}, ErrUnauthenticated
	}
	return acc.user, nil
}

// Revoke forgets a credential so later calls with it are rejected.
func (b *Backend) Revoke(credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.credentials, credential)
}

func (b *Backend) Doctors() []models.Doctor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.doctors)
}

func (b *Backend) doctor(id string) (models.Doctor, bool) {
	for _, doctor := range b.doctors {
		if doctor.ID == id {
			return doctor, true
		}
	}
	return models.Doctor{}, false
}

func (b *Backend) MyToken(patientID string) *models.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneToken(b.activeToken(patientID))
}

func (b *Backend) activeToken(patientID string) *models.Token {
	for _, token := range b.tokens {
		if token.Patient != nil && token.Patient.ID == patientID && token.Active() {
			return token
		}
	}
	return nil
}

func (b *Backend) BookToken(patient models.User, doctorID, bookingDate string) (*models.Token, error) {
	if doctorID == "" || bookingDate == "" {
		return nil, invalidInput("Doctor and booking date are required")
	}
	if _, err := time.Parse("2006-01-02", bookingDate); err != nil {
		return nil, invalidInput("bookingDate must be YYYY-MM-DD")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	doctor, ok := b.doctor(doctorID)
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if b.activeToken(patient.ID) != nil {
		return nil, ErrActiveToken
	}
	key := doctorID + "/" + bookingDate
	b.lastNumber[key]++
	token := &models.Token{
		ID:          newObjectID(b.now()),
		TokenNumber: b.lastNumber[key],
		Doctor:      &doctor,
		Patient:     &models.PatientRef{ID: patient.ID, Name: patient.Name},
		Status:      models.TokenWaiting,
		BookingDate: bookingDate,
	}
	b.tokens = append(b.tokens, token)
	b.reindex(doctorID)
	b.publishQueue(doctorID)
	return cloneToken(token), nil
}

func (b *Backend) CancelToken(patientID, tokenID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	token := b.token(tokenID)
	if token == nil || token.Patient == nil || token.Patient.ID != patientID {
		return ErrTokenNotFound
	}
	if token.Status != models.TokenWaiting {
		return ErrInvalidState
	}
	token.Status = models.TokenCancelled
	token.Position = 0
	token.EstimatedWaitTime = 0
	b.reindex(token.DoctorID())
	b.publishQueue(token.DoctorID())
	return nil
}

func (b *Backend) token(id string) *models.Token {
	for _, token := range b.tokens {
		if token.ID == id {
			return token
		}
	}
	return nil
}

func (b *Backend) QueueStats(doctorID string) models.QueueStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	var stats models.QueueStats
	for _, token := range b.tokens {
		if token.DoctorID() == doctorID && token.Status == models.TokenWaiting {
			stats.TotalWaiting++
		}
	}
	stats.NextEstimatedWaitTime = stats.TotalWaiting * consultMinutes
	return stats
}

// PublicQueue lists the active tokens of a doctor, the one in consultation
// first, without patient names.
func (b *Backend) PublicQueue(doctorID string) []models.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	queue := make([]models.Token, 0)
	for _, token := range b.tokens {
		if token.DoctorID() != doctorID || !token.Active() {
			continue
		}
		entry := *cloneToken(token)
		if entry.Patient != nil {
			entry.Patient = &models.PatientRef{ID: entry.Patient.ID}
		}
		queue = append(queue, entry)
	}
	slices.SortStableFunc(queue, func(a, c models.Token) int {
		return a.Position - c.Position
	})
	return queue
}

// Advance completes the doctor's current consultation and calls the next
// waiting token in. It returns the token now in consultation, if any.
func (b *Backend) Advance(doctorID string) (*models.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.doctor(doctorID); !ok {
		return nil, ErrDoctorNotFound
	}
	var next *models.Token
	for _, token := range b.tokens {
		if token.DoctorID() != doctorID {
			continue
		}
		switch token.Status {
		case models.TokenInConsultation:
			token.Status = models.TokenCompleted
		case models.TokenWaiting:
			if next == nil || token.Position < next.Position {
				next = token
			}
		}
	}
	if next != nil {
		next.Status = models.TokenInConsultation
	}
	b.reindex(doctorID)
	b.publishQueue(doctorID)
	return cloneToken(next), nil
}

// Consult writes a prescription for the token's patient and closes the token.
func (b *Backend) Consult(tokenID string, details models.PrescriptionDetails) (*models.Prescription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	token := b.token(tokenID)
	if token == nil {
		return nil, ErrTokenNotFound
	}
	if token.Status != models.TokenInConsultation && token.Status != models.TokenCompleted {
		return nil, ErrInvalidState
	}
	if details.Diagnosis == "" {
		details.Diagnosis = "General check-up"
	}
	if len(details.Medicines) == 0 {
		details.Medicines = []models.Medicine{{Name: "Paracetamol", Dosage: "500mg twice daily", Duration: "3 days"}}
	}
	token.Status = models.TokenCompleted
	b.reindex(token.DoctorID())

	created := b.now().UTC()
	prescription := &models.Prescription{
		ID:          newObjectID(created),
		Doctor:      token.Doctor,
		Patient:     token.Patient,
		TokenNumber: token.TokenNumber,
		Details:     details,
		Status:      models.PrescriptionSubmitted,
		CreatedAt:   &created,
	}
	b.prescriptions = append(b.prescriptions, prescription)
	b.publishQueue(token.DoctorID())
	b.publish(EventNewPrescription, map[string]interface{}{
		"patientId": token.Patient.ID,
		"token":     cloneToken(token),
	}, Room{PatientID: token.Patient.ID})
	return clonePrescription(prescription), nil
}

// ReadyFee prices a submitted prescription and asks the patient to pay.
func (b *Backend) ReadyFee(prescriptionID string, input FeeInput) (*models.Prescription, error) {
	if input.Consultation < 0 || input.Subtotal < 0 {
		return nil, invalidInput("Fees cannot be negative")
	}
	if input.Consultation == 0 && input.Subtotal == 0 {
		input = FeeInput{Consultation: 200, Subtotal: 50}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prescription := b.prescription(prescriptionID)
	if prescription == nil {
		return nil, ErrPrescriptionNotFound
	}
	if prescription.Status != models.PrescriptionSubmitted {
		return nil, ErrInvalidState
	}
	tax := roundCents(input.Subtotal * taxRate)
	prescription.Fee = &models.Fee{
		Consultation: input.Consultation,
		Subtotal:     input.Subtotal,
		Tax:          tax,
		Total:        roundCents(input.Consultation + input.Subtotal + tax),
	}
	prescription.Status = models.PrescriptionReadyForPayment
	b.publish(EventFeeReady, map[string]interface{}{
		"patientId": prescription.Patient.ID,
		"totalFee":  prescription.Fee.Total,
	}, Room{PatientID: prescription.Patient.ID})
	return clonePrescription(prescription), nil
}

func (b *Backend) prescription(id string) *models.Prescription {
	for _, prescription := range b.prescriptions {
		if prescription.ID == id {
			return prescription
		}
	}
	return nil
}

func (b *Backend) owned(patientID, prescriptionID string) (*models.Prescription, error) {
	prescription := b.prescription(prescriptionID)
	if prescription == nil || prescription.Patient == nil || prescription.Patient.ID != patientID {
		return nil, ErrPrescriptionNotFound
	}
	return prescription, nil
}

func (b *Backend) Prescriptions(patientID string) []models.Prescription {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := make([]models.Prescription, 0)
	for _, prescription := range b.prescriptions {
		if prescription.Patient != nil && prescription.Patient.ID == patientID {
			list = append(list, *clonePrescription(prescription))
		}
	}
	return list
}

func (b *Backend) PayFees(patientID, prescriptionID, otp string) (*models.Prescription, error) {
	if !otpPattern.MatchString(otp) {
		return nil, invalidInput("A 6-digit OTP is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	prescription, err := b.owned(patientID, prescriptionID)
	if err != nil {
		return nil, err
	}
	if prescription.Status != models.PrescriptionReadyForPayment || prescription.FeeTotal() <= 0 {
		return nil, ErrInvalidState
	}
	paidAt := b.now().UTC()
	prescription.Fee.PaidAt = &paidAt
	prescription.Status = models.PrescriptionPaid
	b.otps[prescription.ID] = otp
	return clonePrescription(prescription), nil
}

func (b *Backend) ResendOTP(patientID, prescriptionID, otp string) error {
	if !otpPattern.MatchString(otp) {
		return invalidInput("A 6-digit OTP is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	prescription, err := b.owned(patientID, prescriptionID)
	if err != nil {
		return err
	}
	if prescription.Status != models.PrescriptionPaid {
		return ErrInvalidState
	}
	b.otps[prescription.ID] = otp
	return nil
}

// Deliver hands paid medicines over. An empty OTP skips the check.
func (b *Backend) Deliver(prescriptionID string, input DeliverInput) (*models.Prescription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prescription := b.prescription(prescriptionID)
	if prescription == nil {
		return nil, ErrPrescriptionNotFound
	}
	if prescription.Status != models.PrescriptionPaid {
		return nil, ErrInvalidState
	}
	if input.OTP != "" && input.OTP != b.otps[prescription.ID] {
		return nil, ErrOTPMismatch
	}
	prescription.Status = models.PrescriptionCompleted
	delete(b.otps, prescription.ID)
	b.publish(EventDelivered, map[string]interface{}{
		"patientId": prescription.Patient.ID,
	}, Room{PatientID: prescription.Patient.ID})
	return clonePrescription(prescription), nil
}

// DeletePrescription removes a prescription that has no payment in flight.
func (b *Backend) DeletePrescription(patientID, prescriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prescription, err := b.owned(patientID, prescriptionID)
	if err != nil {
		return err
	}
	if prescription.Status == models.PrescriptionReadyForPayment || prescription.Status == models.PrescriptionPaid {
		return ErrInvalidState
	}
	b.prescriptions = slices.DeleteFunc(b.prescriptions, func(p *models.Prescription) bool {
		return p.ID == prescriptionID
	})
	delete(b.otps, prescriptionID)
	return nil
}

// reindex renumbers the waiting tokens of a doctor by token number.
func (b *Backend) reindex(doctorID string) {
	var waiting []*models.Token
	for _, token := range b.tokens {
		if token.DoctorID() != doctorID {
			continue
		}
		switch token.Status {
		case models.TokenWaiting:
			waiting = append(waiting, token)
		default:
			token.Position = 0
			token.EstimatedWaitTime = 0
		}
	}
	slices.SortFunc(waiting, func(a, c *models.Token) int {
		if a.BookingDate != c.BookingDate {
			return strings.Compare(a.BookingDate, c.BookingDate)
		}
		return a.TokenNumber - c.TokenNumber
	})
	for i, token := range waiting {
		token.Position = i + 1
		token.EstimatedWaitTime = token.Position * consultMinutes
	}
}

func (b *Backend) publishQueue(doctorID string) {
	b.publish(EventQueueUpdate, map[string]string{"doctorId": doctorID}, Room{DoctorID: doctorID})
}

func (b *Backend) publish(eventType string, payload interface{}, room Room) {
	if b.publisher == nil {
		return
	}
	b.publisher.Publish(eventType, payload, room)
}

func cloneToken(token *models.Token) *models.Token {
	if token == nil {
		return nil
	}
	copied := *token
	if token.Doctor != nil {
		doctor := *token.Doctor
		copied.Doctor = &doctor
	}
	if token.Patient != nil {
		patient := *token.Patient
		copied.Patient = &patient
	}
	return &copied
}

func clonePrescription(p *models.Prescription) *models.Prescription {
	copied := *p
	if p.Doctor != nil {
		doctor := *p.Doctor
		copied.Doctor = &doctor
	}
	if p.Patient != nil {
		patient := *p.Patient
		copied.Patient = &patient
	}
	if p.Fee != nil {
		fee := *p.Fee
		copied.Fee = &fee
	}
	copied.Details.Medicines = slices.Clone(p.Details.Medicines)
	return &copied
}

// newObjectID returns a 24-hex id whose leading four bytes are the creation
// time in seconds, the same layout document stores use.
func newObjectID(now time.Time) string {
	var id [12]byte
	binary.BigEndian.PutUint32(id[:4], uint32(now.Unix()))
	random := uuid.New()
	copy(id[4:], random[:8])
	return hex.EncodeToString(id[:])
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
