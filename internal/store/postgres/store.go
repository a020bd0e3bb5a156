package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"qms/patient-client/internal/models"
	"qms/patient-client/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS patient_sessions (
		device_id   TEXT PRIMARY KEY,
		credential  TEXT NOT NULL,
		user_json   JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Store keeps one session row per kiosk device, for shared hospital terminals
// where local disk is wiped between shifts.
type Store struct {
	pool     *pgxpool.Pool
	deviceID string
}

func NewStore(pool *pgxpool.Pool, deviceID string) *Store {
	return &Store{pool: pool, deviceID: deviceID}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) Load(ctx context.Context) (models.Session, bool, error) {
	var credential string
	var userJSON []byte
	row := s.pool.QueryRow(ctx, `
		SELECT credential, user_json
		FROM patient_sessions
		WHERE device_id = $1
	`, s.deviceID)
	if err := row.Scan(&credential, &userJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, err
	}
	var user models.User
	if err := json.Unmarshal(userJSON, &user); err != nil {
		return models.Session{}, false, store.ErrCorrupt
	}
	return models.Session{Credential: credential, User: user}, true, nil
}

func (s *Store) Save(ctx context.Context, session models.Session) error {
	userJSON, err := json.Marshal(session.User)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO patient_sessions (device_id, credential, user_json, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id) DO UPDATE
		SET credential = EXCLUDED.credential, user_json = EXCLUDED.user_json, updated_at = EXCLUDED.updated_at
	`, s.deviceID, session.Credential, userJSON, time.Now().UTC())
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM patient_sessions WHERE device_id = $1`, s.deviceID)
	return err
}
