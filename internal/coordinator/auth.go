package coordinator

import (
	"context"
	"sync"

	"github.com/epyc-go/epyc/internal/coordinator/middleware"
	"github.com/epyc-go/epyc/internal/executor/remote"
)

// WorkerTokenStore authenticates worker bearer tokens against bcrypt
// hashes, implementing middleware.Authenticator. Tokens are registered
// at coordinator startup (cmd/labd loads them from EPYC_LAB_TOKENS);
// hashing/verification reuses internal/executor/remote's HashToken/
// VerifyToken so the coordinator and the remote executor agree on the
// same bcrypt parameters without duplicating them.
type WorkerTokenStore struct {
	mu     sync.RWMutex
	hashes map[string]string // worker id -> bcrypt hash
}

var _ middleware.Authenticator = (*WorkerTokenStore)(nil)

// NewWorkerTokenStore creates an empty store.
func NewWorkerTokenStore() *WorkerTokenStore {
	return &WorkerTokenStore{hashes: map[string]string{}}
}

// Register hashes and stores token under workerID, replacing any prior
// token for that worker.
func (s *WorkerTokenStore) Register(workerID, token string) error {
	hash, err := remote.HashToken(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.hashes[workerID] = hash
	s.mu.Unlock()

	return nil
}

// Authenticate implements middleware.Authenticator: it checks token
// against every registered worker's hash (worker ids aren't sent in the
// clear, only the token is) and returns the matching worker id.
func (s *WorkerTokenStore) Authenticate(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for workerID, hash := range s.hashes {
		if remote.VerifyToken(hash, token) {
			return workerID, nil
		}
	}

	remote.DummyVerify()

	return "", middleware.ErrInvalidToken
}
