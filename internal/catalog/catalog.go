// Package catalog - поиск позиции меню (техкарта, цена, время приготовления) и настроек склада.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/utils"
)

// ErrNotFound - позиции нет в меню
var ErrNotFound = errors.New("menu item not found")

// Entry - данные позиции меню, нужные складу
type Entry struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Price           decimal.Decimal    `json:"price"`
	PreparationTime int                `json:"preparation_time"`
	Recipe          models.RecipeLines `json:"recipe"`
}

// Service - каталог меню с кешем в Redis
type Service struct {
	db    *gorm.DB
	cache *utils.RedisClient
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

// NewService создает каталог. cache может быть nil - тогда каждый запрос идет в БД.
func NewService(db *gorm.DB, cache *utils.RedisClient, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		db:    db,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

func cacheKey(itemID string) string {
	return "catalog:menu_item:" + itemID
}

// Lookup возвращает позицию меню: кеш, затем БД. Параллельные промахи схлопываются в один запрос.
func (s *Service) Lookup(ctx context.Context, itemID string) (*Entry, error) {
	if entry, ok := s.fromCache(ctx, itemID); ok {
		return entry, nil
	}

	value, err, _ := s.group.Do(itemID, func() (interface{}, error) {
		// Результат общий для всех ожидающих, отмена первого вызывающего не должна его ломать
		ctx := context.WithoutCancel(ctx)
		if entry, ok := s.fromCache(ctx, itemID); ok {
			return entry, nil
		}

		var item models.MenuItem
		err := s.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, itemID)
		}
		if err != nil {
			return nil, fmt.Errorf("load menu item %s: %w", itemID, err)
		}

		entry := &Entry{
			ID:              item.ID,
			Name:            item.Name,
			Price:           item.Price,
			PreparationTime: item.PreparationTime,
			Recipe:          item.Recipe,
		}
		if s.cache != nil {
			if err := s.cache.SetJSON(ctx, cacheKey(itemID), entry, s.ttl); err != nil {
				s.log.Warn("⚠️ Не удалось закешировать позицию меню", zap.String("menu_item_id", itemID), zap.Error(err))
			}
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Entry), nil
}

// Invalidate удаляет позицию из кеша (после изменения техкарты)
func (s *Service) Invalidate(ctx context.Context, itemID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey(itemID))
}

func (s *Service) fromCache(ctx context.Context, itemID string) (*Entry, bool) {
	if s.cache == nil {
		return nil, false
	}
	var entry Entry
	err := s.cache.GetJSON(ctx, cacheKey(itemID), &entry)
	if err == nil {
		return &entry, true
	}
	if !errors.Is(err, utils.ErrCacheMiss) {
		s.log.Warn("⚠️ Ошибка чтения кеша каталога", zap.String("menu_item_id", itemID), zap.Error(err))
	}
	return nil, false
}
