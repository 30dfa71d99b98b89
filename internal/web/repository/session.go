package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/belkagoyda/orex-workspace/internal/web/models"
)

type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Create stores a session bound to the IP and fingerprint presented at login
func (r *SessionRepository) Create(userID, ip, fingerprint string, ttl time.Duration) (*models.Session, error) {
	now := r.now().UTC()
	s := &models.Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		IP:          ip,
		Fingerprint: fingerprint,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	_, err := r.db.Exec(`
		INSERT INTO sessions (id, user_id, ip, fingerprint, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.IP, s.Fingerprint, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// Get returns a live session with its username; nil when missing or expired
func (r *SessionRepository) Get(id string) (*models.Session, error) {
	s := &models.Session{}
	err := r.db.QueryRow(`
		SELECT s.id, s.user_id, u.username, s.ip, s.fingerprint, s.expires_at, s.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.Username, &s.IP, &s.Fingerprint, &s.ExpiresAt, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Expired(r.now()) {
		return nil, nil
	}
	return s, nil
}

// Delete removes a session; deleting a missing session is not an error
func (r *SessionRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// DeleteByUser removes every session of a user
func (r *SessionRepository) DeleteByUser(userID string) (int64, error) {
	res, err := r.db.Exec("DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired purges sessions past their expiry
func (r *SessionRepository) DeleteExpired() (int64, error) {
	res, err := r.db.Exec("DELETE FROM sessions WHERE expires_at <= ?", r.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
