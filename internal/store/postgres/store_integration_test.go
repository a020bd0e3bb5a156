package postgres

import (
	"context"
	"os"
	"strings"
	"testing"

	"qms/patient-client/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestPool(t, ctx)
	t.Cleanup(cleanup)

	st := NewStore(pool, "kiosk-"+uuid.NewString())
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, found, err := st.Load(ctx); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}

	session := models.Session{Credential: "tok-1", User: models.User{ID: "p1", Name: "Ravi", Role: models.RolePatient}}
	if err := st.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}
	session.Credential = "tok-2"
	if err := st.Save(ctx, session); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, found, err := st.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if got != session {
		t.Fatalf("expected %+v, got %+v", session, got)
	}

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := st.Load(ctx); found {
		t.Fatalf("expected cleared session")
	}
}

func setupTestPool(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	return pool, func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
}

func execOnce(ctx context.Context, dsn, sql string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}
