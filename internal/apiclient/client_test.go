package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"qms/patient-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status < 400,
		"message": message,
		"data":    data,
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL})
}

func TestLoginDecodesSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body["email"])
		writeEnvelope(w, http.StatusOK, "", map[string]interface{}{
			"token": "tok-1",
			"user":  map[string]interface{}{"id": "P1", "name": "Asha", "role": "patient"},
		})
	})

	session, err := client.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.Credential)
	assert.Equal(t, "P1", session.User.ID)
}

func TestBearerAttachedOnlyWhileSet(t *testing.T) {
	var seen []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, "", map[string]interface{}{"doctors": []interface{}{}})
	})

	ctx := context.Background()
	client.SetCredential("abc")
	_, err := client.ListDoctors(ctx)
	require.NoError(t, err)
	client.ClearCredential()
	_, err = client.ListDoctors(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer abc", ""}, seen)
}

func TestServerMessageSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, "You already have an active token", nil)
	})

	_, err := client.BookToken(context.Background(), "D1", "2024-06-01")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrBookingConflict))
	assert.Equal(t, "You already have an active token", models.UserMessage(err, "fallback"))
}

func TestNetworkErrorMapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(Options{BaseURL: srv.URL})

	_, err := client.ListDoctors(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNetwork))
	assert.False(t, errors.Is(err, models.ErrServer))
}

func TestInvalidResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	})

	_, err := client.Prescriptions(context.Background())
	assert.True(t, errors.Is(err, models.ErrInvalidResponse))
}

func TestLoginMissingTokenIsInvalidResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, "", map[string]interface{}{"user": map[string]string{"id": "P1"}})
	})

	_, err := client.Login(context.Background(), "a@b.c", "secret")
	assert.True(t, errors.Is(err, models.ErrInvalidResponse))
}

func TestUnauthorizedHookOnlyWithCredential(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, "Invalid credentials", nil)
	})
	var calls int32
	client.OnUnauthorized(func() { atomic.AddInt32(&calls, 1) })

	ctx := context.Background()
	_, err := client.Login(ctx, "a@b.c", "wrong")
	require.True(t, errors.Is(err, models.ErrUnauthorized))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	client.SetCredential("expired")
	_, err = client.MyToken(ctx)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMyTokenNullAndNotFound(t *testing.T) {
	status := http.StatusOK
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, status, "", map[string]interface{}{"token": nil})
	})

	token, err := client.MyToken(context.Background())
	require.NoError(t, err)
	assert.Nil(t, token)

	status = http.StatusNotFound
	token, err = client.MyToken(context.Background())
	require.NoError(t, err)
	assert.Nil(t, token)
}

func TestEndpointPaths(t *testing.T) {
	var got []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPost {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Len(t, body["mockOtp"], 6)
		}
		writeEnvelope(w, http.StatusOK, "", map[string]interface{}{
			"stats": map[string]int{"totalWaiting": 3, "nextEstimatedWaitTime": 15},
			"queue": []map[string]interface{}{{"_id": "T1", "tokenNumber": 4, "position": 1, "status": "waiting"}},
		})
	})

	ctx := context.Background()
	require.NoError(t, client.CancelToken(ctx, "T1"))
	stats, err := client.QueueStats(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalWaiting)
	queue, err := client.PublicQueue(ctx, "D1")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, 4, queue[0].TokenNumber)
	require.NoError(t, client.DeletePrescription(ctx, "R1"))
	require.NoError(t, client.PayFees(ctx, "R1", "123456"))
	require.NoError(t, client.ResendOTP(ctx, "R1", "654321"))

	assert.Equal(t, []string{
		"DELETE /api/queue/cancel-token/T1",
		"GET /api/queue/queue-stats/D1",
		"GET /api/queue/public-queue/D1",
		"DELETE /api/patients/prescriptions/R1",
		"POST /api/patients/pay-fees/R1",
		"POST /api/patients/resend-otp/R1",
	}, got)
}
