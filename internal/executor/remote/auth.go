package remote

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrTokenEmpty is returned by HashToken when given an empty token.
var ErrTokenEmpty = errors.New("executor/remote: token cannot be empty")

const (
	bcryptCost  = 10
	bcryptLimit = 72
)

// HashToken bcrypt-hashes a worker bearer token for storage by
// internal/coordinator, mirroring internal/storage's HashAPIKey: tokens
// over bcryptLimit bytes are pre-hashed with SHA-256 so bcrypt's input
// limit never truncates the secret silently.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrTokenEmpty
	}

	hash, err := bcrypt.GenerateFromPassword(prepare(token), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("executor/remote: hash token: %w", err)
	}

	return string(hash), nil
}

// VerifyToken reports whether token matches hash, in constant time.
// Mirrors internal/storage's CompareAPIKeyHash: a malformed hash or empty
// input is treated as a mismatch rather than an error, so coordinator
// middleware can call it directly without a prior format check.
func VerifyToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), prepare(token)) == nil
}

// DummyVerify performs a bcrypt comparison against throwaway input,
// taking roughly the time of a real VerifyToken call. Its caller is
// internal/coordinator's WorkerTokenStore.Authenticate, which runs it
// after no registered hash matched, so a store with no workers registered
// still spends one bcrypt comparison on a rejected token (grounded on
// internal/api/middleware/auth.go's performDummyBcryptComparison).
func DummyVerify() {
	_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$dummydummydummydummydummydummydummydummydummydumm"), []byte("dummy"))
}

func prepare(token string) []byte {
	if len(token) > bcryptLimit {
		sum := sha256.Sum256([]byte(token))

		return sum[:]
	}

	return []byte(token)
}
