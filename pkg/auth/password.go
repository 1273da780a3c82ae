package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 8
	MaxPasswordLen = 72 // bcrypt ignores input past 72 bytes
)

// PasswordValidationError lists the rules a password broke. Error() stays
// generic so responses do not reveal which rule failed.
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "invalid password"
}

// passwordRule returns a failure description, or "" when the password passes
type passwordRule func(password, email string) string

var passwordRules = []passwordRule{
	lengthRule,
	characterClassRule,
	numericRule,
	commonRule,
	emailSimilarityRule,
}

var commonPasswords = map[string]bool{
	"password": true, "password1": true, "password123": true, "password123!": true,
	"12345678": true, "123456789": true, "qwerty123": true, "abc12345": true,
	"letmein1": true, "welcome1": true, "iloveyou": true, "passw0rd": true,
	"p@ssw0rd": true, "sunshine": true, "princess": true, "football": true,
	"trustno1": true, "starwars": true, "changeme": true, "admin123": true,
}

func lengthRule(password, _ string) string {
	switch {
	case len([]rune(password)) < MinPasswordLen:
		return fmt.Sprintf("must be at least %d characters", MinPasswordLen)
	case len(password) > MaxPasswordLen:
		return fmt.Sprintf("must be at most %d bytes", MaxPasswordLen)
	}
	return ""
}

func characterClassRule(password, _ string) string {
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return "must mix upper and lower case letters, digits and symbols"
	}
	return ""
}

func numericRule(password, _ string) string {
	if password == "" {
		return ""
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return ""
		}
	}
	return "cannot be entirely numeric"
}

func commonRule(password, _ string) string {
	if commonPasswords[strings.ToLower(password)] {
		return "is too common"
	}
	return ""
}

// emailSimilarityRule rejects passwords containing the mailbox name
func emailSimilarityRule(password, email string) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	if len(local) < 4 {
		return ""
	}
	if strings.Contains(strings.ToLower(password), local) {
		return "is too similar to the email address"
	}
	return ""
}

// ValidatePassword checks password strength without account context
func ValidatePassword(password string) error {
	return ValidatePasswordFor(password, "")
}

// ValidatePasswordFor also rejects passwords derived from the account email
func ValidatePasswordFor(password, email string) error {
	var failures []string
	for _, rule := range passwordRules {
		if msg := rule(password, email); msg != "" {
			failures = append(failures, msg)
		}
	}
	if len(failures) > 0 {
		return &PasswordValidationError{Errors: failures}
	}
	return nil
}

func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, BcryptCost)
}

// HashPasswordWithCost hashes with an explicit bcrypt cost (tests use bcrypt.MinCost)
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// dummyHash is compared against when the account does not exist so unknown
// and known emails take the same time to reject.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("bastion-dummy-password"), BcryptCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// DummyCompare burns one bcrypt comparison and always reports failure.
func DummyCompare(password string) error {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return bcrypt.ErrMismatchedHashAndPassword
}
