package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/epyc-go/epyc/internal/coordinator/middleware"
)

func TestWorkerTokenStore_RegisterAuthenticate(t *testing.T) {
	store := NewWorkerTokenStore()

	if err := store.Register("worker-1", "s3cr3t-token"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	workerID, err := store.Authenticate(context.Background(), "s3cr3t-token")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if workerID != "worker-1" {
		t.Fatalf("expected worker-1, got %s", workerID)
	}
}

func TestWorkerTokenStore_AuthenticateUnknownToken(t *testing.T) {
	store := NewWorkerTokenStore()

	if err := store.Register("worker-1", "s3cr3t-token"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := store.Authenticate(context.Background(), "wrong-token"); !errors.Is(err, middleware.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestWorkerTokenStore_ReRegisterReplacesToken(t *testing.T) {
	store := NewWorkerTokenStore()

	if err := store.Register("worker-1", "first-token"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := store.Register("worker-1", "second-token"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := store.Authenticate(context.Background(), "first-token"); !errors.Is(err, middleware.ErrInvalidToken) {
		t.Fatalf("expected old token to be rejected, got %v", err)
	}

	workerID, err := store.Authenticate(context.Background(), "second-token")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if workerID != "worker-1" {
		t.Fatalf("expected worker-1, got %s", workerID)
	}
}
