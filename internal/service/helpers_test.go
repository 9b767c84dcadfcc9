package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"go-tour-booking/internal/notify"
	"go-tour-booking/internal/repository"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendPasswordReset(ctx context.Context, msg notify.ResetMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type recordedEvent struct {
	operation string
	outcome   string
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) AuthEvent(operation string, outcome string) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{operation, outcome})
	r.mu.Unlock()
}

func (r *eventRecorder) has(operation string, outcome string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.operation == operation && e.outcome == outcome {
			return true
		}
	}
	return false
}

type authFixture struct {
	service  *AuthService
	store    *repository.MemoryUserRepository
	tokens   *TokenIssuer
	notifier *mockNotifier
	recorder *eventRecorder
	clock    *fakeClock
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	clock := newFakeClock()
	store := repository.NewMemoryUserRepository()
	tokens := NewTokenIssuer(testSecret, time.Hour).WithClock(clock.Now)
	notifier := &mockNotifier{}
	recorder := &eventRecorder{}

	svc := NewAuthService(
		store,
		NewBcryptHasher(bcrypt.MinCost),
		tokens,
		NewResetTokenService(store, clock.Now),
		notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	).WithRecorder(recorder).WithClock(clock.Now).WithResetURLBase("http://localhost/api/v1/users/resetPassword/")

	return &authFixture{
		service:  svc,
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		recorder: recorder,
		clock:    clock,
	}
}
