package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// dummyDigest is a valid bcrypt digest of an unguessable throwaway value.
// Verified against unknown usernames so a login probe costs the same time
// whether or not the account exists.
const dummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashPassword produces a bcrypt digest of the password.
func HashPassword(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// CheckPassword verifies a password against a stored digest. bcrypt's
// comparison is constant-time over the digest.
func CheckPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// CheckDummy burns one bcrypt verification without revealing anything.
func CheckDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyDigest), []byte(password))
}
