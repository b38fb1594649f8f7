// Package repository содержит реализацию хранилища почтового ящика в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/evmarket-lifecycle/internal/mailbox"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var defaultRetryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository хранит ячейки почтового ящика в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

var _ mailbox.Store = (*PostgresRepository)(nil)

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, retryDelays: defaultRetryDelays}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	return r.withRetryIf(ctx, isRetryable, fn)
}

// withRetryIf повторяет fn, пока ошибка удовлетворяет retryable и не исчерпаны задержки.
func (r *PostgresRepository) withRetryIf(ctx context.Context, retryable func(error) bool, fn func() error) error {
	var err error
	delays := r.retryDelays

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !retryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

// isRetryableBeforeSend разрешает повтор только если команда точно не была применена:
// сервер откатил её сам или соединение оборвалось до отправки запроса.
// Обрыв после отправки DELETE ... RETURNING мог уже удалить значение, повтор вернул бы "не найдено".
func isRetryableBeforeSend(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return pgconn.SafeToRetry(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Ping проверяет соединение с БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Put сохраняет значение ячейки, перезаписывая предыдущее.
func (r *PostgresRepository) Put(ctx context.Context, userID int64, slot mailbox.Slot, value string) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %s", mailbox.ErrUnknownSlot, slot)
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO mailbox_slots (user_id, slot, value, stored_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (user_id, slot) DO UPDATE SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at`,
			userID, string(slot), value,
		)
		if err != nil {
			return fmt.Errorf("put mailbox slot: %w", err)
		}
		return nil
	})
}

// Take возвращает значение ячейки и удаляет его одной командой.
func (r *PostgresRepository) Take(ctx context.Context, userID int64, slot mailbox.Slot) (string, bool, error) {
	if !slot.Valid() {
		return "", false, fmt.Errorf("%w: %s", mailbox.ErrUnknownSlot, slot)
	}

	var (
		value string
		found bool
	)
	err := r.withRetryIf(ctx, isRetryableBeforeSend, func() error {
		err := r.pool.QueryRow(ctx,
			`DELETE FROM mailbox_slots WHERE user_id = $1 AND slot = $2 RETURNING value`,
			userID, string(slot),
		).Scan(&value)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("take mailbox slot: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Clear удаляет значение ячейки.
func (r *PostgresRepository) Clear(ctx context.Context, userID int64, slot mailbox.Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %s", mailbox.ErrUnknownSlot, slot)
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`DELETE FROM mailbox_slots WHERE user_id = $1 AND slot = $2`,
			userID, string(slot),
		)
		if err != nil {
			return fmt.Errorf("clear mailbox slot: %w", err)
		}
		return nil
	})
}
