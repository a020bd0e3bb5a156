package sandbox

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserExists           = errors.New("user already exists")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrTokenNotFound        = errors.New("token not found")
	ErrActiveToken          = errors.New("active token exists")
	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrOTPMismatch          = errors.New("otp mismatch")
)

// InputError carries a message fit for the caller alongside ErrInvalidInput.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

func invalidInput(message string) error {
	return &InputError{Message: message}
}
