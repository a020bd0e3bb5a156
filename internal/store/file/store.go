package file

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"qms/patient-client/internal/models"
	"qms/patient-client/internal/store"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sessionFile = "session.bin"
	keyFile     = "device.key"
	saltSize    = 16
	keyInfo     = "qms-patient-session-v1"
)

// Store keeps the session in a single file sealed with XChaCha20-Poly1305.
// The sealing key is derived with HKDF from the configured secret, or from a
// random per-device key created next to the session file.
type Store struct {
	dir    string
	secret []byte
}

func NewStore(dir, secret string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("session dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	s := &Store{dir: dir}
	if secret != "" {
		s.secret = []byte(secret)
		return s, nil
	}
	key, err := loadOrCreateDeviceKey(filepath.Join(dir, keyFile))
	if err != nil {
		return nil, err
	}
	s.secret = key
	return s, nil
}

func (s *Store) Load(ctx context.Context) (models.Session, bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, sessionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, err
	}
	if len(raw) < saltSize+chacha20poly1305.NonceSizeX {
		return models.Session{}, false, store.ErrCorrupt
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	sealed := raw[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := s.aead(salt)
	if err != nil {
		return models.Session{}, false, err
	}
	plain, err := aead.Open(nil, nonce, sealed, []byte(keyInfo))
	if err != nil {
		return models.Session{}, false, store.ErrCorrupt
	}
	var session models.Session
	if err := json.Unmarshal(plain, &session); err != nil {
		return models.Session{}, false, store.ErrCorrupt
	}
	return session, true, nil
}

func (s *Store) Save(ctx context.Context, session models.Session) error {
	plain, err := json.Marshal(session)
	if err != nil {
		return err
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	aead, err := s.aead(salt)
	if err != nil {
		return err
	}
	out := make([]byte, 0, len(salt)+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plain, []byte(keyInfo))
	return writeAtomic(filepath.Join(s.dir, sessionFile), out)
}

func (s *Store) Clear(ctx context.Context) error {
	err := os.Remove(filepath.Join(s.dir, sessionFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) aead(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.secret, salt, []byte(keyInfo)), key); err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key)
}

func loadOrCreateDeviceKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read device key: %w", err)
	}
	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := writeAtomic(path, key); err != nil {
		return nil, fmt.Errorf("write device key: %w", err)
	}
	return key, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
