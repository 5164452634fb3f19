package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KiloProjects/arena"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var ErrUsernameTaken = arena.Statusf(409, "Username is already taken")

type UserRepository struct {
	conn *pgxpool.Pool
}

func NewUserRepository(conn *pgxpool.Pool) *UserRepository {
	return &UserRepository{conn: conn}
}

type user struct {
	ID           string  `db:"id"`
	Username     string  `db:"username"`
	DisplayName  *string `db:"display_name"`
	PasswordHash string  `db:"password_hash"`
	Role         int     `db:"role"`
}

func (u *user) full() (*arena.User, error) {
	role, err := arena.RoleFromInt(u.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return &arena.User{
		ID:           u.ID,
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		Role:         role,
	}, nil
}

const userColumns = "id, username, display_name, password_hash, role"

func collectUsers(rows pgx.Rows) ([]*arena.User, error) {
	users, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[user])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []*arena.User{}, nil
		}
		return nil, err
	}
	full := make([]*arena.User, 0, len(users))
	for _, u := range users {
		fu, err := u.full()
		if err != nil {
			return nil, err
		}
		full = append(full, fu)
	}
	return full, nil
}

func (s *UserRepository) users(ctx context.Context, sb sq.SelectBuilder) ([]*arena.User, error) {
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, _ := s.conn.Query(ctx, query, args...)
	return collectUsers(rows)
}

func (s *UserRepository) user(ctx context.Context, sb sq.SelectBuilder) (*arena.User, error) {
	users, err := s.users(ctx, sb.Limit(1))
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return users[0], nil
}

// UserByID returns nil if the user does not exist.
func (s *UserRepository) UserByID(ctx context.Context, id string) (*arena.User, error) {
	return s.user(ctx, sq.Select(userColumns).From("users").Where(sq.Eq{"id": id}))
}

// UserByName looks up a user by username, case-insensitively. It returns nil if the user does not exist.
func (s *UserRepository) UserByName(ctx context.Context, username string) (*arena.User, error) {
	return s.user(ctx, sq.Select(userColumns).From("users").Where(sq.Expr("lower(username) = lower(?)", username)))
}

func (s *UserRepository) UsersWithRole(ctx context.Context, role arena.Role) ([]*arena.User, error) {
	return s.users(ctx, sq.Select(userColumns).From("users").Where(sq.Eq{"role": int(role)}).OrderBy("username ASC"))
}

func (s *UserRepository) Users(ctx context.Context) ([]*arena.User, error) {
	return s.users(ctx, sq.Select(userColumns).From("users").OrderBy("username ASC"))
}

// CreateUser inserts a new user with an already hashed password and fills in its ID.
func (s *UserRepository) CreateUser(ctx context.Context, u *arena.User) error {
	if u.ID == "" {
		u.ID = arena.NewID()
	}
	_, err := s.conn.Exec(ctx,
		"INSERT INTO users (id, username, display_name, password_hash, role) VALUES ($1, $2, $3, $4, $5)",
		u.ID, strings.TrimSpace(u.Username), u.DisplayName, u.PasswordHash, int(u.Role),
	)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	return err
}

// UpsertUser creates the user, or updates the password, display name and role of
// the existing user with the same name. It returns the stored user.
func (s *UserRepository) UpsertUser(ctx context.Context, u *arena.User) (*arena.User, error) {
	rows, _ := s.conn.Query(ctx, `
		INSERT INTO users (id, username, display_name, password_hash, role) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lower(username)) DO UPDATE SET display_name = EXCLUDED.display_name, password_hash = EXCLUDED.password_hash, role = EXCLUDED.role
		RETURNING `+userColumns,
		arena.NewID(), strings.TrimSpace(u.Username), u.DisplayName, u.PasswordHash, int(u.Role),
	)
	users, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, errors.New("upsert returned no user")
	}
	return users[0], nil
}

// UpdateUser updates a user.
// Returns ErrNotFound if the user does not exist
func (s *UserRepository) UpdateUser(ctx context.Context, id string, upd arena.UserUpdate) error {
	updQuery := sq.Update("users").Where(sq.Eq{"id": id})

	if v := upd.Username; v != nil {
		updQuery = updQuery.Set("username", strings.TrimSpace(*v))
	}
	if upd.ClearDisplayName {
		updQuery = updQuery.Set("display_name", nil)
	} else if v := upd.DisplayName; v != nil {
		updQuery = updQuery.Set("display_name", strings.TrimSpace(*v))
	}
	if v := upd.PasswordHash; v != nil {
		updQuery = updQuery.Set("password_hash", *v)
	}

	query, args, err := updQuery.ToSql()
	if err != nil {
		// squirrel refuses updates without any SET clause
		return arena.ErrNoUpdates
	}

	tag, err := s.conn.Exec(ctx, query, args...)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return arena.ErrNotFound
	}
	return nil
}

// DeleteUser removes the user along with its sessions, submissions and test runs.
func (s *UserRepository) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return arena.ErrNotFound
	}
	return nil
}

var ErrInvalidLogin = arena.Statusf(401, "Invalid username or password")

// VerifyLogin returns the user with the given credentials.
func (s *UserRepository) VerifyLogin(ctx context.Context, username, password string) (*arena.User, error) {
	u, err := s.UserByName(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidLogin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}
	return u, nil
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
