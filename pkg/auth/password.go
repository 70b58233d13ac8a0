package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used for stored account passwords
const DefaultBcryptCost = 12

// PasswordPolicy describes what a new account password must satisfy
type PasswordPolicy struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy applies to password reset completion
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:     10,
	MaxLength:     128,
	RequireUpper:  true,
	RequireLower:  true,
	RequireDigit:  true,
	RequireSymbol: true,
}

// PolicyViolationError lists every rule a password broke
type PolicyViolationError struct {
	Violations []string
}

func (e *PolicyViolationError) Error() string {
	if len(e.Violations) == 0 {
		return "password does not meet policy"
	}
	return "password " + strings.Join(e.Violations, "; ")
}

// Frequently breached passwords, compared case-insensitively
var breachedPasswords = map[string]struct{}{
	"password1234":  {},
	"password123!":  {},
	"qwerty12345!":  {},
	"welcome123!":   {},
	"letmein12345":  {},
	"changeme123!":  {},
	"p@ssw0rd1234":  {},
	"admin123456!":  {},
	"iloveyou123!":  {},
	"1qaz2wsx3edc":  {},
	"qwertyuiop1!":  {},
	"sunshine123!":  {},
	"football123!":  {},
	"trustno1trust": {},
}

// Check returns a *PolicyViolationError when the password breaks any rule.
// Passwords equal to one of the forbidden values (such as the account email)
// are rejected as well.
func (p PasswordPolicy) Check(password string, forbidden ...string) error {
	var violations []string

	if n := len([]rune(password)); n < p.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", p.MinLength))
	} else if p.MaxLength > 0 && len(password) > p.MaxLength {
		violations = append(violations, fmt.Sprintf("must be at most %d bytes", p.MaxLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.RequireUpper && !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "must contain a digit")
	}
	if p.RequireSymbol && !symbol {
		violations = append(violations, "must contain a symbol")
	}

	folded := strings.ToLower(password)
	if _, ok := breachedPasswords[folded]; ok {
		violations = append(violations, "appears in breached password lists")
	}
	for _, f := range forbidden {
		if f != "" && folded == strings.ToLower(f) {
			violations = append(violations, "must not match account details")
			break
		}
	}

	if len(violations) > 0 {
		return &PolicyViolationError{Violations: violations}
	}
	return nil
}

// PasswordHasher hashes and verifies account passwords with bcrypt
type PasswordHasher struct {
	Cost int
}

// NewPasswordHasher clamps cost into bcrypt's accepted range
func NewPasswordHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return PasswordHasher{Cost: cost}
}

func (h PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil only when password matches the stored hash
func (h PasswordHasher) Verify(hashed, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}

// HashPassword hashes with DefaultBcryptCost
func HashPassword(password string) (string, error) {
	return NewPasswordHasher(DefaultBcryptCost).Hash(password)
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword checks password against DefaultPasswordPolicy
func ValidatePassword(password string, forbidden ...string) error {
	return DefaultPasswordPolicy.Check(password, forbidden...)
}
