package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func VerifyPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

const (
	passwordLength = 12

	lowerChars = "abcdefghijkmnopqrstuvwxyz"
	upperChars = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars = "23456789"
)

// GenerateRandomPassword returns a random temporary password with at
// least one lowercase letter, one uppercase letter and one digit.
// Ambiguous glyphs (l, I, O, 0, 1) are excluded.
func GenerateRandomPassword() (string, error) {
	all := lowerChars + upperChars + digitChars

	buf := make([]byte, passwordLength)
	pick := func(set string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return 0, fmt.Errorf("auth: generate password: %w", err)
		}
		return set[n.Int64()], nil
	}

	var err error
	if buf[0], err = pick(lowerChars); err != nil {
		return "", err
	}
	if buf[1], err = pick(upperChars); err != nil {
		return "", err
	}
	if buf[2], err = pick(digitChars); err != nil {
		return "", err
	}
	for i := 3; i < passwordLength; i++ {
		if buf[i], err = pick(all); err != nil {
			return "", err
		}
	}

	// Shuffle so the guaranteed classes are not always in front.
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("auth: generate password: %w", err)
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}
