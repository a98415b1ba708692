// Package store implements the persistence layer for users, messages
// and shared files. All operations are single atomic statements on one
// shared connection, multi-step checks are check-then-insert without a
// transaction (single desktop user, the race window is accepted).
package store

import (
	"errors"
	"fmt"

	"facebox/model"
	"facebox/pkg/security"
	"facebox/validators"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrDuplicateUsername = errors.New("this username is already taken")
	// ErrInvalidCredentials deliberately covers both an unknown username
	// and a wrong password so callers can't enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
)

type Credentials struct {
	db    *gorm.DB
	argon *security.Argon2ID
}

func NewCredentials(db *gorm.DB, argon *security.Argon2ID) *Credentials {
	return &Credentials{db: db, argon: argon}
}

// Register validates and creates a new account with the biometric ID
// unset. Returns the new user's ID.
func (s *Credentials) Register(username, password string) (uint, error) {
	if err := validators.UsernameValidator(username); err != nil {
		return 0, err
	}

	if err := validators.PasswordValidator(password); err != nil {
		return 0, err
	}

	var found bool

	r := s.db.Model(&model.User{}).
		Select("count(*) > 0").
		Where("username = ?", username).
		Find(&found)
	if r.Error != nil {
		return 0, fmt.Errorf("failed to check if username is taken, %w", r.Error)
	}

	if found {
		return 0, ErrDuplicateUsername
	}

	hash, err := s.argon.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password, %w", err)
	}

	u := model.User{
		Username:     username,
		PasswordHash: hash,
	}

	if err := s.db.Create(&u).Error; err != nil {
		return 0, fmt.Errorf("failed to create user, %w", err)
	}

	zap.L().Info("User registered", zap.Uint("user_id", u.ID), zap.String("username", username))

	return u.ID, nil
}

// Authenticate resolves username and re-hash-and-compares password.
// Any mismatch comes back as ErrInvalidCredentials.
func (s *Credentials) Authenticate(username, password string) (*model.User, error) {
	var u model.User

	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to look up user, %w", err)
	}

	ok, err := s.argon.Compare(password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password, %w", err)
	}

	if !ok {
		return nil, ErrInvalidCredentials
	}

	return &u, nil
}

// AuthenticateByBiometricID resolves a classifier ID to a user. The
// biometric_id column carries a unique index so at most one row can
// ever match.
func (s *Credentials) AuthenticateByBiometricID(id uint) (*model.User, error) {
	var u model.User

	if err := s.db.Where("biometric_id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to look up user by biometric id, %w", err)
	}

	return &u, nil
}

func (s *Credentials) LookupByUsername(username string) (*model.User, error) {
	var u model.User

	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to look up user, %w", err)
	}

	return &u, nil
}

func (s *Credentials) ByID(id uint) (*model.User, error) {
	var u model.User

	if err := s.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to look up user, %w", err)
	}

	return &u, nil
}

// BindBiometricID attaches a trained classifier ID to a user. Only the
// enrollment controller calls this, and only after training reported
// success. The update is idempotent.
func (s *Credentials) BindBiometricID(userID, biometricID uint) error {
	r := s.db.Model(&model.User{}).
		Where("id = ?", userID).
		Update("biometric_id", biometricID)
	if r.Error != nil {
		return fmt.Errorf("failed to bind biometric id, %w", r.Error)
	}

	if r.RowsAffected == 0 {
		return ErrUserNotFound
	}

	zap.L().Info("Biometric id bound",
		zap.Uint("user_id", userID),
		zap.Uint("biometric_id", biometricID))

	return nil
}
