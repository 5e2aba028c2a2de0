package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/testsupport"
	"kitchenledger/server/internal/utils"
)

func newCache(t *testing.T) (*utils.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return utils.NewRedisClient(client), mr
}

func TestLookup_LoadsFromDBAndCaches(t *testing.T) {
	db := testsupport.NewDB(t)
	cache, mr := newCache(t)
	item := models.MenuItem{
		Name:            "Маргарита",
		Price:           testsupport.Dec("450"),
		PreparationTime: 12,
		Recipe: models.RecipeLines{
			{IngredientID: "flour", Quantity: testsupport.Dec("0.2"), Unit: "kg"},
		},
	}
	require.NoError(t, db.Create(&item).Error)

	svc := NewService(db, cache, time.Minute, zap.NewNop())
	entry, err := svc.Lookup(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Маргарита", entry.Name)
	assert.Equal(t, 12, entry.PreparationTime)
	require.Len(t, entry.Recipe, 1)
	testsupport.AssertDec(t, "0.2", entry.Recipe[0].Quantity)
	assert.True(t, mr.Exists(cacheKey(item.ID)))

	// кеш отвечает даже без строки в БД
	require.NoError(t, db.Delete(&models.MenuItem{}, "id = ?", item.ID).Error)
	cached, err := svc.Lookup(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, cached.ID)

	require.NoError(t, svc.Invalidate(context.Background(), item.ID))
	_, err = svc.Lookup(context.Background(), item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_WithoutCacheAndConcurrentMisses(t *testing.T) {
	db := testsupport.NewDB(t)
	item := models.MenuItem{Name: "Чай", Price: testsupport.Dec("90")}
	require.NoError(t, db.Create(&item).Error)

	svc := NewService(db, nil, time.Minute, zap.NewNop())

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Lookup(context.Background(), item.ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestWarehouses_Lookup(t *testing.T) {
	db := testsupport.NewDB(t)
	require.NoError(t, db.Create(&models.Warehouse{Name: "bar", AllowNegativeStock: true, IsOperational: true}).Error)
	w := NewWarehouses(db)

	bar, err := w.Lookup(context.Background(), nil, "bar")
	require.NoError(t, err)
	assert.True(t, bar.AllowNegativeStock)

	unknown, err := w.Lookup(context.Background(), db, "nowhere")
	require.NoError(t, err)
	assert.False(t, unknown.AllowNegativeStock)
	assert.Equal(t, "nowhere", unknown.Name)
}

func TestLookup_SharedLoadIgnoresCallerCancellation(t *testing.T) {
	db := testsupport.NewDB(t)
	item := models.MenuItem{Name: "Лимонад", Price: testsupport.Dec("120")}
	require.NoError(t, db.Create(&item).Error)

	svc := NewService(db, nil, time.Minute, zap.NewNop())

	// Загрузка общая для всех ожидающих: отмененный контекст первого вызывающего ее не прерывает
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entry, err := svc.Lookup(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Лимонад", entry.Name)
}

func TestWarehouses_Default(t *testing.T) {
	db := testsupport.NewDB(t)
	w := NewWarehouses(db)
	ctx := context.Background()

	name, err := w.Default(ctx, nil, "main")
	require.NoError(t, err)
	assert.Equal(t, "main", name, "без операционных складов используется fallback")

	require.NoError(t, db.Create(&models.Warehouse{Name: "main"}).Error)
	require.NoError(t, db.Create(&models.Warehouse{Name: "kitchen", IsOperational: true}).Error)
	require.NoError(t, db.Create(&models.Warehouse{Name: "bar", IsOperational: true}).Error)

	name, err = w.Default(ctx, db, "main")
	require.NoError(t, err)
	assert.Equal(t, "bar", name, "неоперационный fallback заменяется первым операционным")

	name, err = w.Default(ctx, db, "kitchen")
	require.NoError(t, err)
	assert.Equal(t, "kitchen", name)
}
