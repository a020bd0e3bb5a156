package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"qms/patient-client/internal/models"
)

type authData struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (d authData) session() (models.Session, error) {
	if d.Token == "" || d.User == nil || d.User.ID == "" {
		return models.Session{}, models.ErrInvalidResponse
	}
	return models.Session{Credential: d.Token, User: *d.User}, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (models.Session, error) {
	var data authData
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &data); err != nil {
		return models.Session{}, err
	}
	return data.session()
}

func (c *Client) Register(ctx context.Context, profile models.Profile) (models.Session, error) {
	var data authData
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", profile, &data); err != nil {
		return models.Session{}, err
	}
	return data.session()
}

func (c *Client) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	var data struct {
		Doctors []models.Doctor `json:"doctors"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/doctors/list", nil, &data); err != nil {
		return nil, err
	}
	return data.Doctors, nil
}

// MyToken returns the patient's active token, or nil when there is none.
func (c *Client) MyToken(ctx context.Context) (*models.Token, error) {
	var data struct {
		Token *models.Token `json:"token"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/queue/my-token", nil, &data); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return data.Token, nil
}

func (c *Client) BookToken(ctx context.Context, doctorID, bookingDate string) (*models.Token, error) {
	var data struct {
		Token *models.Token `json:"token"`
	}
	body := map[string]string{"doctorId": doctorID, "bookingDate": bookingDate}
	if err := c.do(ctx, http.MethodPost, "/api/queue/get-token", body, &data); err != nil {
		return nil, err
	}
	if data.Token == nil {
		return nil, models.ErrInvalidResponse
	}
	return data.Token, nil
}

func (c *Client) CancelToken(ctx context.Context, tokenID string) error {
	return c.do(ctx, http.MethodDelete, "/api/queue/cancel-token/"+url.PathEscape(tokenID), nil, nil)
}

func (c *Client) QueueStats(ctx context.Context, doctorID string) (models.QueueStats, error) {
	var data struct {
		Stats models.QueueStats `json:"stats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/queue/queue-stats/"+url.PathEscape(doctorID), nil, &data); err != nil {
		return models.QueueStats{}, err
	}
	return data.Stats, nil
}

func (c *Client) PublicQueue(ctx context.Context, doctorID string) ([]models.Token, error) {
	var data struct {
		Queue []models.Token `json:"queue"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/queue/public-queue/"+url.PathEscape(doctorID), nil, &data); err != nil {
		return nil, err
	}
	return data.Queue, nil
}

func (c *Client) Prescriptions(ctx context.Context) ([]models.Prescription, error) {
	var data struct {
		Prescriptions []models.Prescription `json:"prescriptions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/patients/prescriptions", nil, &data); err != nil {
		return nil, err
	}
	return data.Prescriptions, nil
}

func (c *Client) DeletePrescription(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/patients/prescriptions/"+url.PathEscape(id), nil, nil)
}

func (c *Client) PayFees(ctx context.Context, prescriptionID, otp string) error {
	body := map[string]string{"mockOtp": otp}
	return c.do(ctx, http.MethodPost, "/api/patients/pay-fees/"+url.PathEscape(prescriptionID), body, nil)
}

func (c *Client) ResendOTP(ctx context.Context, prescriptionID, otp string) error {
	body := map[string]string{"mockOtp": otp}
	return c.do(ctx, http.MethodPost, "/api/patients/resend-otp/"+url.PathEscape(prescriptionID), body, nil)
}
