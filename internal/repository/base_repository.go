package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"debate_arena/internal/storage"
)

type baseRepository struct {
	db *storage.PostgresDB
}

func (r *baseRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// read 執行冪等的讀取，連線層級的錯誤重試一次
func (r *baseRepository) read(ctx context.Context, fn func(db *gorm.DB) error) error {
	return retryOnce(ctx, func() error {
		return fn(r.conn(ctx))
	})
}

func retryOnce(ctx context.Context, op func() error) error {
	err := translate(op())
	if err == nil || !retryable(ctx, err) {
		return err
	}
	return translate(op())
}

// write 不做重試，避免重複寫入
func (r *baseRepository) write(ctx context.Context, fn func(db *gorm.DB) error) error {
	return translate(fn(r.conn(ctx)))
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// retryable 只接受連線失效或請求尚未送出到伺服器的錯誤
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// validID 過濾無法轉為 uuid 的 ID，避免 PostgreSQL 回報型別錯誤
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
