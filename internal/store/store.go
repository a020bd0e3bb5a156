package store

import (
	"context"
	"errors"

	"qms/patient-client/internal/models"
)

var ErrCorrupt = errors.New("stored session is unreadable")

// CredentialStore persists the authenticated session across process restarts.
// Load reports found=false when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (models.Session, bool, error)
	Save(ctx context.Context, session models.Session) error
	Clear(ctx context.Context) error
}
