package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/model"
)

// BcryptCost is the work factor for new password hashes.
var BcryptCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

var (
	missingUserOnce sync.Once
	missingUserHash []byte
)

// placeholderHash returns a hash at BcryptCost that no password is checked
// against successfully. It is built on first use.
func placeholderHash() []byte {
	missingUserOnce.Do(func() {
		missingUserHash, _ = bcrypt.GenerateFromPassword([]byte("no such user"), BcryptCost)
	})
	return missingUserHash
}

// CheckPassword reports whether password matches the user's hash. A nil user
// still costs one bcrypt comparison so unknown usernames take as long as
// wrong passwords.
func CheckPassword(u *model.User, password string) bool {
	if u == nil {
		_ = bcrypt.CompareHashAndPassword(placeholderHash(), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// RegisterUser hashes the password and creates a user with the user role.
func RegisterUser(ctx context.Context, d *db.DB, username, email, password string) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return CreateUser(ctx, d, username, email, hash, model.RoleUser)
}

// CreateUser creates a new user. A single lookup on username or email guards
// the insert; the unique indexes decide races.
func CreateUser(ctx context.Context, d *db.DB, username, email, passwordHash, role string) (*model.User, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	var taken int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`, username, email,
	).Scan(&taken)
	if err != nil {
		return nil, storageErr("checking user", err)
	}
	if taken > 0 {
		return nil, ErrUserAlreadyExists
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, ?, ?) RETURNING id`,
		username, email, passwordHash, role,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return nil, ErrUserAlreadyExists
	}
	if err != nil {
		return nil, storageErr("creating user", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing user", err)
	}

	return GetUser(ctx, d, id)
}

// GetUser returns a user by ID, or nil if it does not exist.
func GetUser(ctx context.Context, d *db.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := d.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, role, created_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("getting user", err)
	}
	return u, nil
}

// GetUserByUsername returns a user by username, or nil if it does not exist.
func GetUserByUsername(ctx context.Context, d *db.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := d.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, role, created_at
		 FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("getting user by username", err)
	}
	return u, nil
}

// IsAdmin reports whether the user exists and has the admin role.
func IsAdmin(ctx context.Context, d *db.DB, id int64) (bool, error) {
	u, err := GetUser(ctx, d, id)
	if err != nil {
		return false, err
	}
	return u.IsAdmin(), nil
}

// SetUserRole changes a user's role.
func SetUserRole(ctx context.Context, d *db.DB, id int64, role string) error {
	if !model.ValidRole(role) {
		return fmt.Errorf("invalid role %q", role)
	}
	result, err := d.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return storageErr("updating user role", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("updating user role", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user.
func DeleteUser(ctx context.Context, d *db.DB, id int64) error {
	result, err := d.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return storageErr("deleting user", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("deleting user", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
