package identity

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is the sentinel for a failed compare
var ErrMismatchedHashAndPassword = errors.New("password does not match")

// sentinelHash keeps Authenticate on the bcrypt code path even when no user
// or stored hash exists, so all credential failures share a timing class.
var sentinelHash, _ = HashPassword("sentinel-timing-equalizer-1A!")

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// ValidatePasswordPolicy enforces the credential policy: at least 8
// characters with upper case, lower case, a digit, and a symbol.
func ValidatePasswordPolicy(password string) error {
	if len(password) < 8 {
		return ErrPasswordPolicy
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

	if !upper || !lower || !digit || !symbol {
		return ErrPasswordPolicy
	}

	return nil
}
