package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/evmarket-lifecycle/internal/mailbox"
)

func newRetryRepo() *PostgresRepository {
	return &PostgresRepository{retryDelays: []time.Duration{time.Millisecond, time.Millisecond}}
}

func TestWithRetry_RetriesSerializationFailure(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_GivesUpAfterDelays(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return errors.New("dial tcp: connection refused")
	})
	if err == nil {
		t.Fatalf("expected error after retries")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_DoesNotRetryOtherErrors(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	r := &PostgresRepository{retryDelays: []time.Duration{time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.withRetry(ctx, func() error {
		return errors.New("broken pipe")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type unsentError struct{}

func (unsentError) Error() string      { return "dial tcp: connection refused" }
func (unsentError) SafeToRetry() bool { return true }

func TestTakeRetry_OnlyBeforeSend(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "reset after send", err: errors.New("read tcp: connection reset by peer"), wantCalls: 1},
		{name: "failed before send", err: unsentError{}, wantCalls: 3},
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, wantCalls: 3},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRetryRepo()

			calls := 0
			err := r.withRetryIf(context.Background(), isRetryableBeforeSend, func() error {
				calls++
				return tt.err
			})
			if err == nil {
				t.Fatalf("expected error")
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestUnknownSlotRejectedBeforeQuery(t *testing.T) {
	r := &PostgresRepository{}

	if err := r.Put(context.Background(), 1, mailbox.Slot("cart"), "1"); !errors.Is(err, mailbox.ErrUnknownSlot) {
		t.Fatalf("Put error = %v, want ErrUnknownSlot", err)
	}
	if _, _, err := r.Take(context.Background(), 1, mailbox.Slot("cart")); !errors.Is(err, mailbox.ErrUnknownSlot) {
		t.Fatalf("Take error = %v, want ErrUnknownSlot", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("no migrations embedded")
	}
}
