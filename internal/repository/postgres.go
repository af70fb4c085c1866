// Package repository содержит реализацию хранения балансов и истории в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/numbermarket-system/internal/history"
	"github.com/mmeshcher/numbermarket-system/internal/ledger"
	"github.com/mmeshcher/numbermarket-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит балансы и журнал операций в PostgreSQL.
// Реализует ledger.Ledger и history.Log: балансы переживают перезапуск,
// в отличие от сессий тикетов, которые живут только в памяти.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

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

	r := &PostgresRepository{pool: pool}

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
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи нужны для Serialization Failure и Deadlocks; с обрывами
		// соединений pgxpool в основном справляется сам.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Balance возвращает текущий баланс пользователя в сентаво; 0 для неизвестного.
func (r *PostgresRepository) Balance(ctx context.Context, userID string) (int64, error) {
	var amount int64
	err := r.pool.QueryRow(ctx,
		`SELECT amount FROM balances WHERE user_id = $1`,
		userID,
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return amount, nil
}

// Credit увеличивает баланс пользователя и возвращает новое значение.
func (r *PostgresRepository) Credit(ctx context.Context, userID string, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ledger.ErrInvalidAmount
	}

	var newAmount int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO balances (user_id, amount) VALUES ($1, $2)
			 ON CONFLICT (user_id) DO UPDATE SET amount = balances.amount + $2
			 RETURNING amount`,
			userID, amountCents,
		).Scan(&newAmount)
	})
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return newAmount, nil
}

// Debit уменьшает баланс пользователя и возвращает новое значение.
// Использует блокировку строки для сериализации параллельных списаний.
func (r *PostgresRepository) Debit(ctx context.Context, userID string, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ledger.ErrInvalidAmount
	}

	var newAmount int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var current int64
		err = tx.QueryRow(ctx,
			`SELECT amount FROM balances WHERE user_id = $1 FOR UPDATE`,
			userID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ledger.ErrInsufficientFunds
			}
			return fmt.Errorf("lock balance: %w", err)
		}

		if current < amountCents {
			return ledger.ErrInsufficientFunds
		}

		err = tx.QueryRow(ctx,
			`UPDATE balances SET amount = amount - $2 WHERE user_id = $1 RETURNING amount`,
			userID, amountCents,
		).Scan(&newAmount)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return 0, err
		}
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	return newAmount, nil
}

// Append добавляет запись в журнал операций и возвращает её сохранённую форму.
func (r *PostgresRepository) Append(ctx context.Context, userID string, tx model.Transaction) (model.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO transactions (id, user_id, kind, amount, status, product, rental_id, number, code, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			tx.ID, userID, string(tx.Kind), tx.AmountCents, string(tx.Status),
			tx.Product, tx.RentalID, tx.Number, tx.Code, tx.CreatedAt,
		)
		return err
	})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	return tx, nil
}

// UpdateStatus меняет статус самой свежей записи с данным ref
// (идентификатор аренды или записи); code дописывается, если не пуст.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, userID, ref string, status model.TransactionStatus, code string) error {
	var cmdTag pgconn.CommandTag
	err := r.withRetry(ctx, func() error {
		var err error
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE transactions
			 SET status = $3, code = CASE WHEN $4 <> '' THEN $4 ELSE code END
			 WHERE id = (
				SELECT id FROM transactions
				WHERE user_id = $1 AND (rental_id = $2 OR id = $2)
				ORDER BY created_at DESC
				LIMIT 1
			 )`,
			userID, ref, string(status), code,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return history.ErrRecordNotFound
	}

	return nil
}

// List возвращает записи пользователя в порядке создания.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, amount, status, product, rental_id, number, code, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			tx     model.Transaction
			kind   string
			status string
		)
		if err := rows.Scan(&tx.ID, &kind, &tx.AmountCents, &status,
			&tx.Product, &tx.RentalID, &tx.Number, &tx.Code, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Kind = model.TransactionKind(kind)
		tx.Status = model.TransactionStatus(status)
		res = append(res, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
