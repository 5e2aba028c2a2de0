package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
)

// ErrNotFound - заказа нет ни в одной таблице
var ErrNotFound = errors.New("order not found")

// Repository - доступ к таблицам заказов всех каналов
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

// Create сохраняет новый заказ в таблицу канала
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, t Type, order *models.Order) error {
	if order.Status == "" {
		order.Status = t.InitialStatus
	}
	if _, ok := t.Classify(order.Status); !ok {
		return fmt.Errorf("unknown %s status %q", t.Name, order.Status)
	}
	order.CalculateTotal()
	if err := r.conn(ctx, tx).Table(t.Table).Create(order).Error; err != nil {
		return fmt.Errorf("create %s order: %w", t.Name, err)
	}
	return nil
}

// Get читает заказ из таблицы канала
func (r *Repository) Get(ctx context.Context, tx *gorm.DB, t Type, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.conn(ctx, tx).Table(t.Table).Where("id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, t.Name, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s order %s: %w", t.Name, orderID, err)
	}
	return &order, nil
}

// Find ищет заказ во всех каналах
func (r *Repository) Find(ctx context.Context, tx *gorm.DB, orderID string) (*models.Order, Type, error) {
	for _, t := range All() {
		order, err := r.Get(ctx, tx, t, orderID)
		if err == nil {
			return order, t, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, Type{}, err
		}
	}
	return nil, Type{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
}

// UpdateStatus пишет статус и время входа в новую фазу
func (r *Repository) UpdateStatus(ctx context.Context, tx *gorm.DB, t Type, orderID, status string, bucket Bucket) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	switch bucket {
	case BucketCommitted:
		updates["committed_at"] = now
	case BucketFulfilled:
		updates["fulfilled_at"] = now
	case BucketCancelled:
		updates["cancelled_at"] = now
	}

	result := r.conn(ctx, tx).Table(t.Table).Where("id = ?", orderID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update %s order %s status: %w", t.Name, orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, t.Name, orderID)
	}
	return nil
}
