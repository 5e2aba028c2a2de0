// Package uow - единица работы поверх gorm: транзакционная, best-effort и присоединенная к внешней.
package uow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UnitOfWork выполняет fn как одну единицу работы.
// AfterCommit откладывает побочные эффекты (уведомления) до фиксации изменений.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx *gorm.DB) error) error
	Transactional() bool
	AfterCommit(fn func())
}

// TransactionUnsupportedError - хранилище не смогло открыть транзакцию
type TransactionUnsupportedError struct {
	Err error
}

func (e *TransactionUnsupportedError) Error() string {
	return fmt.Sprintf("transactions unsupported: %v", e.Err)
}

func (e *TransactionUnsupportedError) Unwrap() error {
	return e.Err
}

// Transactional - все изменения fn фиксируются атомарно.
// Serialization failure и deadlock повторяются с экспоненциальной задержкой.
type Transactional struct {
	db         *gorm.DB
	log        *zap.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewTransactional создает транзакционную единицу работы
func NewTransactional(db *gorm.DB, maxRetries int, log *zap.Logger) *Transactional {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Transactional{
		db:         db,
		log:        log,
		maxRetries: maxRetries,
		baseDelay:  10 * time.Millisecond,
	}
}

func (t *Transactional) Transactional() bool { return true }

// AfterCommit выполняет fn сразу: Do к этому моменту уже зафиксировал изменения
func (t *Transactional) AfterCommit(fn func()) { fn() }

func (t *Transactional) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil {
			if attempt > 0 {
				t.log.Info("✅ Транзакция успешна после повторов", zap.Int("attempts", attempt+1))
			}
			return nil
		}
		if !IsSerializationFailure(err) {
			return err
		}
		if attempt == t.maxRetries-1 {
			break
		}

		delay := t.baseDelay*time.Duration(1<<uint(attempt)) + time.Duration(rand.Intn(10))*time.Millisecond
		t.log.Warn("⚠️ Serialization failure, повтор транзакции",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", t.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("serialization failure after %d attempts: %w", t.maxRetries, err)
}

func (t *Transactional) runOnce(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	tx := t.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return &TransactionUnsupportedError{Err: tx.Error}
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit().Error; err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// BestEffort - изменения пишутся по мере выполнения, отката нет
type BestEffort struct {
	db *gorm.DB
}

// NewBestEffort создает нетранзакционную единицу работы
func NewBestEffort(db *gorm.DB) *BestEffort {
	return &BestEffort{db: db}
}

func (b *BestEffort) Transactional() bool { return false }

func (b *BestEffort) AfterCommit(fn func()) { fn() }

func (b *BestEffort) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(b.db.WithContext(ctx))
}

// Joined - единица работы внутри уже открытой внешней (tx).
// В транзакционном режиме каждый Do выполняется в savepoint, чтобы неудачный шаг
// откатывался без отката внешней транзакции. Отложенные эффекты копятся до Flush.
type Joined struct {
	tx            *gorm.DB
	transactional bool

	mu      sync.Mutex
	pending []func()
}

// Join присоединяется к внешней единице работы
func Join(tx *gorm.DB, transactional bool) *Joined {
	return &Joined{tx: tx, transactional: transactional}
}

func (j *Joined) Transactional() bool { return j.transactional }

func (j *Joined) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := j.tx.WithContext(ctx)
	if j.transactional {
		return tx.Transaction(fn)
	}
	return fn(tx)
}

func (j *Joined) AfterCommit(fn func()) {
	j.mu.Lock()
	j.pending = append(j.pending, fn)
	j.mu.Unlock()
}

// Flush выполняет отложенные эффекты; вызывается после фиксации внешней единицы работы
func (j *Joined) Flush() {
	j.mu.Lock()
	pending := j.pending
	j.pending = nil
	j.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Discard отбрасывает отложенные эффекты (внешняя транзакция откатилась)
func (j *Joined) Discard() {
	j.mu.Lock()
	j.pending = nil
	j.mu.Unlock()
}

// IsSerializationFailure проверяет, является ли ошибка serialization failure или deadlock
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}

	// 40001 - serialization_failure, 40P01 - deadlock_detected
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "could not serialize") ||
		strings.Contains(errMsg, "deadlock detected")
}

// IsTransactionUnsupported проверяет ошибку открытия транзакции
func IsTransactionUnsupported(err error) bool {
	var target *TransactionUnsupportedError
	return errors.As(err, &target)
}
