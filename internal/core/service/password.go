package service

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/medora/clinic-core/internal/core/domain"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

// PasswordHasher wraps bcrypt with a configurable cost.
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher returns a hasher. A cost outside bcrypt's range falls back
// to bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("clinic-core-timing-equaliser"), cost)
	return &PasswordHasher{cost: cost, dummyHash: dummy}
}

// Hash returns the bcrypt hash of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare reports whether password matches hash.
func (h *PasswordHasher) Compare(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CompareDummy burns the same time as a real comparison so that unknown
// accounts are not distinguishable by latency.
func (h *PasswordHasher) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}

// ValidatePassword enforces the password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return domain.NewValidationError("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return domain.NewValidationError("password must be at most %d bytes", maxPasswordLength)
	}
	return nil
}
