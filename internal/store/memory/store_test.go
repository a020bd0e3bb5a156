package memory

import (
	"context"
	"testing"

	"qms/patient-client/internal/models"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	if _, found, err := st.Load(ctx); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}
	session := models.Session{Credential: "tok", User: models.User{ID: "u1", Role: models.RolePatient}}
	if err := st.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := st.Load(ctx)
	if err != nil || !found || got != session {
		t.Fatalf("unexpected load: %+v found=%v err=%v", got, found, err)
	}
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := st.Load(ctx); found {
		t.Fatalf("expected cleared store")
	}
}
