package repository

import (
	"context"
	"errors"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSessionExpired = arena.Statusf(401, "Session expired")

type SessionRepository struct {
	conn *pgxpool.Pool
}

func NewSessionRepository(conn *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{conn: conn}
}

// CreateSession creates a session for the user, returning the session token.
func (s *SessionRepository) CreateSession(ctx context.Context, userID string, lifetime time.Duration) (*arena.Session, error) {
	sess := &arena.Session{
		ID:        arena.RandomString(arena.SessionTokenLength),
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	sess.ExpiresAt = sess.CreatedAt.Add(lifetime)
	_, err := s.conn.Exec(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)",
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// SessionUser returns the user owning a live session and the session expiry.
// Returns nil if the session doesn't exist and ErrSessionExpired if it has expired, in which case it's also removed.
func (s *SessionRepository) SessionUser(ctx context.Context, sessionID string) (*arena.User, time.Time, error) {
	var expiresAt time.Time
	var u user
	err := s.conn.QueryRow(ctx, `
		SELECT sessions.expires_at, users.id, users.username, users.display_name, users.password_hash, users.role
		FROM sessions INNER JOIN users ON users.id = sessions.user_id
		WHERE sessions.id = $1`, sessionID,
	).Scan(&expiresAt, &u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	if !time.Now().Before(expiresAt) {
		if err := s.RemoveSession(ctx, sessionID); err != nil {
			return nil, time.Time{}, err
		}
		return nil, time.Time{}, ErrSessionExpired
	}
	full, err := u.full()
	if err != nil {
		return nil, time.Time{}, err
	}
	return full, expiresAt, nil
}

func (s *SessionRepository) RemoveSession(ctx context.Context, sessionID string) error {
	_, err := s.conn.Exec(ctx, "DELETE FROM sessions WHERE id = $1", sessionID)
	return err
}

// RemoveUserSessions removes all sessions of a user and returns their tokens.
func (s *SessionRepository) RemoveUserSessions(ctx context.Context, userID string) ([]string, error) {
	rows, _ := s.conn.Query(ctx, "DELETE FROM sessions WHERE user_id = $1 RETURNING id", userID)
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// RemoveExpiredSessions removes every expired session and returns how many there were.
func (s *SessionRepository) RemoveExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.conn.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= NOW()")
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
