package credential

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var ErrEmptyPassword = errors.New("password must not be empty")

// HasherAPI turns plaintext passwords into salted adaptive hashes and checks
// candidates against them.
type HasherAPI interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) bool
}

// Hasher is a bcrypt HasherAPI. bcrypt work is CPU bound, so calls are gated by
// a weighted semaphore of size concurrency.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

func NewHasher(cost, concurrency int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}, nil
}

func (h *Hasher) Cost() int {
	return h.cost
}

func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}

	var hashed []byte
	err := h.run(ctx, func() error {
		var herr error
		hashed, herr = bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
		return herr
	})
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify never errors: a malformed hash, a mismatch and a cancelled context
// all report false.
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	err := h.run(ctx, func() error {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	})
	return err == nil
}

func (h *Hasher) run(ctx context.Context, fn func() error) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer h.sem.Release(1)
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
