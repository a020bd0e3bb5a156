package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"qms/patient-client/internal/models"
)

type recordingProvider struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingProvider) Send(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingProvider) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

func TestRenderTemplate(t *testing.T) {
	payload := payloadData{"token_number": "12", "doctor": "Rao", "position": "4"}
	got := renderTemplate("Token #{token_number} booked for Dr. {doctor}. Your position is {position}.", payload)
	if got != "Token #12 booked for Dr. Rao. Your position is 4." {
		t.Fatalf("unexpected template render: %s", got)
	}
}

func TestEvaluate(t *testing.T) {
	doctor := &models.Doctor{ID: "D1", Name: "Rao"}
	tok := func(status string, pos int) *models.Token {
		return &models.Token{ID: "T", TokenNumber: 7, Status: status, Position: pos, Doctor: doctor}
	}
	tests := []struct {
		name   string
		before *models.Token
		after  *models.Token
		kind   string
	}{
		{"moved to front", tok(models.TokenWaiting, 3), tok(models.TokenWaiting, 1), KindNextInLine},
		{"already first", tok(models.TokenWaiting, 1), tok(models.TokenWaiting, 1), ""},
		{"first fetch at front", nil, tok(models.TokenWaiting, 1), ""},
		{"called in", tok(models.TokenWaiting, 1), tok(models.TokenInConsultation, 0), KindYourTurn},
		{"called in on first fetch", nil, tok(models.TokenInConsultation, 0), KindYourTurn},
		{"still consulting", tok(models.TokenInConsultation, 0), tok(models.TokenInConsultation, 0), ""},
		{"token gone", tok(models.TokenWaiting, 2), nil, ""},
		{"moved but not front", tok(models.TokenWaiting, 4), tok(models.TokenWaiting, 2), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := Evaluate(tt.before, tt.after)
			if tt.kind == "" {
				if ok {
					t.Fatalf("expected no notification, got %+v", n)
				}
				return
			}
			if !ok || n.Kind != tt.kind {
				t.Fatalf("expected %s, got %+v (ok=%v)", tt.kind, n, ok)
			}
		})
	}

	n, _ := Evaluate(tok(models.TokenWaiting, 1), tok(models.TokenInConsultation, 0))
	if n.Title != "It's Your Turn!" || !strings.Contains(n.Body, "#7") || !strings.Contains(n.Body, "Dr. Rao") {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestFormatINR(t *testing.T) {
	got := FormatINR(250)
	if !strings.Contains(got, "250") || got == "₹ 0.00" {
		t.Fatalf("unexpected INR format %q", got)
	}
	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		if got := FormatINR(bad); got != "₹ 0.00" {
			t.Fatalf("expected fallback for %v, got %q", bad, got)
		}
	}
}

func TestDispatcherFeeReady(t *testing.T) {
	rec := &recordingProvider{}
	d := NewDispatcher(rec, 0, nil)
	d.FeeReady(250)
	d.BookingConfirmed(&models.Token{TokenNumber: 12, Position: 4, Doctor: &models.Doctor{Name: "Rao"}})
	d.Wait()

	sent := rec.all()
	if len(sent) != 2 {
		t.Fatalf("expected two notifications, got %d", len(sent))
	}
	byKind := map[string]Notification{}
	for _, n := range sent {
		byKind[n.Kind] = n
	}
	if fee := byKind[KindPaymentRequired]; fee.Title != "Payment Required!" || !strings.Contains(fee.Body, "250") {
		t.Fatalf("unexpected fee notification %+v", fee)
	}
	if booked := byKind[KindBookingConfirmed]; booked.Body != "Token #12 booked for Dr. Rao. Your position is 4." {
		t.Fatalf("unexpected booking notification %+v", booked)
	}
}

func TestDispatcherSwallowsProviderFailure(t *testing.T) {
	d := NewDispatcher(NewProvider(ProviderConfig{Kind: "fail"}), 0, nil)
	if !d.QueueTransition(nil, &models.Token{Status: models.TokenInConsultation}) {
		t.Fatalf("expected transition to notify")
	}
	d.Wait()
}

func TestWebhookProvider(t *testing.T) {
	var got Notification
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{Kind: "webhook", WebhookURL: srv.URL, Token: "secret"})
	if err := p.Send(context.Background(), Render(KindDeliveryComplete, nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer secret" || got.Title != "Delivery Complete" {
		t.Fatalf("unexpected webhook delivery %q %+v", auth, got)
	}

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer rejecting.Close()
	if err := NewProvider(ProviderConfig{Kind: rejecting.URL}).Send(context.Background(), Notification{}); err == nil {
		t.Fatalf("expected rejection error")
	}
}

func TestWriterProvider(t *testing.T) {
	var out bytes.Buffer
	p := NewProvider(ProviderConfig{Kind: "stdout", Out: &out})
	if err := p.Send(context.Background(), Render(KindPrescriptionReady, nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out.String(), "Prescription Ready!") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
