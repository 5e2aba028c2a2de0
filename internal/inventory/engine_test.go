package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kitchenledger/server/internal/catalog"
	"kitchenledger/server/internal/ledger"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/notify"
	"kitchenledger/server/internal/orders"
	"kitchenledger/server/internal/testsupport"
	"kitchenledger/server/internal/uow"
)

const wh = "main"

var dec = testsupport.Dec

type fakeCatalog map[string]*catalog.Entry

func (f fakeCatalog) Lookup(_ context.Context, itemID string) (*catalog.Entry, error) {
	if entry, ok := f[itemID]; ok {
		return entry, nil
	}
	return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, itemID)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.StockEvent
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.StockEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

type recordingAlerts struct {
	triggered []string
}

func (r *recordingAlerts) Trigger(itemID, warehouse string) {
	r.triggered = append(r.triggered, itemID+"@"+warehouse)
}

type fixture struct {
	db       *gorm.DB
	engine   *Engine
	repo     *orders.Repository
	tx       uow.UnitOfWork
	be       uow.UnitOfWork
	catalog  fakeCatalog
	notifier *recordingNotifier
	alerts   *recordingAlerts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.NewDB(t, orders.TableNames()...)
	f := &fixture{
		db:       db,
		repo:     orders.NewRepository(db),
		tx:       uow.NewTransactional(db, 1, zap.NewNop()),
		be:       uow.NewBestEffort(db),
		catalog:  fakeCatalog{},
		notifier: &recordingNotifier{},
		alerts:   &recordingAlerts{},
	}
	f.engine = NewEngine(f.catalog, catalog.NewWarehouses(db), f.repo, wh, zap.NewNop())
	f.engine.SetNotifier(f.notifier)
	f.engine.SetAlerts(f.alerts)
	return f
}

var receiptClock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// stock создает ингредиент и оприходует партии (qty, price) в порядке FIFO
func (f *fixture) stock(t *testing.T, name string, lots ...[2]string) models.InventoryItem {
	t.Helper()
	item := testsupport.SeedItem(t, f.db, models.InventoryItem{Name: name, Unit: "kg", WarehouseName: wh, MinStock: dec("1")})
	for _, lot := range lots {
		receiptClock = receiptClock.Add(time.Minute)
		_, err := ledger.Receive(f.db, ledger.Receipt{
			ItemID:     item.ID,
			Quantity:   dec(lot[0]),
			UnitPrice:  dec(lot[1]),
			ReceivedAt: receiptClock,
		})
		require.NoError(t, err)
	}
	return item
}

func (f *fixture) available(t *testing.T, itemID string) decimal.Decimal {
	t.Helper()
	item, err := ledger.LoadItem(f.db, itemID)
	require.NoError(t, err)
	available, err := ledger.Available(f.db, item, wh)
	require.NoError(t, err)
	return available
}

func (f *fixture) balance(t *testing.T, itemID string) decimal.Decimal {
	t.Helper()
	balance, err := ledger.LoadBalance(f.db, itemID, wh)
	require.NoError(t, err)
	require.NotNil(t, balance)
	return balance.Quantity
}

func (f *fixture) movements(t *testing.T, orderID string) []models.Movement {
	t.Helper()
	var movements []models.Movement
	require.NoError(t, f.db.Where("reference_id = ? AND movement_type = ?", orderID, models.MovementSale).Find(&movements).Error)
	return movements
}

func (f *fixture) reservations(t *testing.T, orderID string) []models.Reservation {
	t.Helper()
	var rows []models.Reservation
	require.NoError(t, f.db.Where("order_id = ?", orderID).Find(&rows).Error)
	return rows
}

func recipeItem(menuItemID string, qty int, lines ...models.RecipeLine) models.OrderItem {
	return models.OrderItem{MenuItemID: menuItemID, Quantity: qty, Price: dec("100"), Recipe: lines}
}

func line(ingredientID, qty string) models.RecipeLine {
	return models.RecipeLine{IngredientID: ingredientID, Quantity: dec(qty)}
}

func TestReserveReleaseConsume_AvailableAndBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})

	res, err := f.engine.Reserve(ctx, f.tx, "order-x", "X-1", orders.TypeDineIn, []models.OrderItem{recipeItem("pizza", 1, line(flour.ID, "2"))})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Reservations, 1)
	testsupport.AssertDec(t, "8", f.available(t, flour.ID))
	testsupport.AssertDec(t, "10", f.balance(t, flour.ID))

	rel, err := f.engine.Release(ctx, f.tx, "order-x", "X-1")
	require.NoError(t, err)
	assert.True(t, rel.Success)
	require.Len(t, rel.Released, 1)
	testsupport.AssertDec(t, "10", f.available(t, flour.ID))
	testsupport.AssertDec(t, "10", f.balance(t, flour.ID))

	_, err = f.engine.Reserve(ctx, f.tx, "order-y", "Y-1", orders.TypeDineIn, []models.OrderItem{recipeItem("pizza", 1, line(flour.ID, "2"))})
	require.NoError(t, err)
	testsupport.AssertDec(t, "8", f.available(t, flour.ID))

	con, err := f.engine.Consume(ctx, f.tx, "order-y", "Y-1")
	require.NoError(t, err)
	assert.True(t, con.Success)
	require.Len(t, con.Consumed, 1)
	testsupport.AssertDec(t, "8", f.balance(t, flour.ID))
	testsupport.AssertDec(t, "8", f.available(t, flour.ID))

	item, err := ledger.LoadItem(f.db, flour.ID)
	require.NoError(t, err)
	testsupport.AssertDec(t, "0", item.ReservedStock)
	testsupport.AssertDec(t, "8", item.CurrentStock)

	rows := f.reservations(t, "order-y")
	require.Len(t, rows, 1)
	assert.Equal(t, models.ReservationConsumed, rows[0].Status)
	assert.NotNil(t, rows[0].ConsumedAt)
}

func TestConsume_FIFOCostAcrossLayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cheese := f.stock(t, "Сыр", [2]string{"5", "10"}, [2]string{"5", "20"})

	_, err := f.engine.Reserve(ctx, f.tx, "order-fifo", "F-1", orders.TypeTakeaway, []models.OrderItem{recipeItem("pasta", 1, line(cheese.ID, "7"))})
	require.NoError(t, err)

	con, err := f.engine.Consume(ctx, f.tx, "order-fifo", "F-1")
	require.NoError(t, err)
	require.Len(t, con.Consumed, 1)
	testsupport.AssertDec(t, "90", con.Consumed[0].TotalCost)

	layers, err := ledger.LoadLayers(f.db, cheese.ID, wh)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	testsupport.AssertDec(t, "3", layers[0].RemainingQuantity)
	testsupport.AssertDec(t, "20", layers[0].UnitPrice)

	movements := f.movements(t, "order-fifo")
	require.Len(t, movements, 1)
	testsupport.AssertDec(t, "-7", movements[0].Quantity)
	testsupport.AssertDec(t, "-90", movements[0].TotalValue)
}

func TestReserve_InsufficientTransactionalLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})
	salt := f.stock(t, "Соль", [2]string{"1", "2"})

	res, err := f.engine.Reserve(ctx, f.tx, "order-big", "B-1", orders.TypeDelivery, []models.OrderItem{
		recipeItem("bread", 2, line(flour.ID, "1"), line(salt.ID, "1")),
	})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Соль")

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, salt.ID, insufficient.ItemID)
	testsupport.AssertDec(t, "1", insufficient.Available)
	testsupport.AssertDec(t, "2", insufficient.Required)

	assert.Empty(t, f.reservations(t, "order-big"))
	testsupport.AssertDec(t, "10", f.available(t, flour.ID))
	item, err := ledger.LoadItem(f.db, flour.ID)
	require.NoError(t, err)
	testsupport.AssertDec(t, "0", item.ReservedStock)
}

func TestReserve_BestEffortKeepsEarlierIngredients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})
	salt := f.stock(t, "Соль", [2]string{"1", "2"})

	res, err := f.engine.Reserve(ctx, f.be, "order-be", "BE-1", orders.TypeDelivery, []models.OrderItem{
		recipeItem("bread", 2, line(flour.ID, "1"), line(salt.ID, "1")),
	})
	require.Error(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Reservations, 1)
	assert.Contains(t, res.Message, "частично")
	testsupport.AssertDec(t, "8", f.available(t, flour.ID))
}

func TestReserve_AggregatesPerIngredientAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})
	items := []models.OrderItem{
		recipeItem("pizza", 2, line(flour.ID, "1.5")),
		recipeItem("bread", 1, line(flour.ID, "1")),
	}

	first, err := f.engine.Reserve(ctx, f.tx, "order-agg", "A-1", orders.TypeTable, items)
	require.NoError(t, err)
	require.Len(t, first.Reservations, 1)
	testsupport.AssertDec(t, "4", first.Reservations[0].ReservedQuantity)

	second, err := f.engine.Reserve(ctx, f.tx, "order-agg", "A-1", orders.TypeTable, items)
	require.NoError(t, err)
	require.Len(t, second.Reservations, 1)
	assert.Equal(t, first.Reservations[0].ID, second.Reservations[0].ID)

	assert.Len(t, f.reservations(t, "order-agg"), 1)
	testsupport.AssertDec(t, "6", f.available(t, flour.ID))
}

func TestReserve_UsesCatalogAndSkipsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tomato := f.stock(t, "Томаты", [2]string{"5", "3"})
	f.catalog["salad"] = &catalog.Entry{ID: "salad", Recipe: models.RecipeLines{line(tomato.ID, "0.5")}}

	res, err := f.engine.Reserve(ctx, f.tx, "order-cat", "C-1", orders.TypeQuickSale, []models.OrderItem{
		{MenuItemID: "salad", Quantity: 2},
		{MenuItemID: "ghost", Quantity: 1},
		recipeItem("mystery", 1, line("00000000-0000-0000-0000-0000000000c1", "1")),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Reservations, 1)
	testsupport.AssertDec(t, "1", res.Reservations[0].ReservedQuantity)
	testsupport.AssertDec(t, "4", f.available(t, tomato.ID))
}

func TestReserve_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Reserve(ctx, f.tx, "", "N-0", orders.TypeDineIn, nil)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = f.engine.Reserve(ctx, f.tx, "order-zero", "Z-0", orders.TypeDineIn, []models.OrderItem{{MenuItemID: "pizza", Quantity: 0}})
	require.ErrorAs(t, err, &validation)
}

func TestConsume_TwiceDoesNotDoubleDeduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})
	butter := f.stock(t, "Масло", [2]string{"4", "50"})

	res, err := f.engine.Reserve(ctx, f.tx, "order-twice", "T-1", orders.TypeDineIn, []models.OrderItem{
		recipeItem("croissant", 2, line(flour.ID, "1"), line(butter.ID, "0.5")),
	})
	require.NoError(t, err)

	_, err = f.engine.Consume(ctx, f.tx, "order-twice", "T-1")
	require.NoError(t, err)
	again, err := f.engine.Consume(ctx, f.tx, "order-twice", "T-1")
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Empty(t, again.Consumed)

	testsupport.AssertDec(t, "8", f.balance(t, flour.ID))
	testsupport.AssertDec(t, "3", f.balance(t, butter.ID))

	reserved := decimal.Zero
	for _, r := range res.Reservations {
		reserved = reserved.Add(r.ReservedQuantity)
	}
	moved := decimal.Zero
	for _, m := range f.movements(t, "order-twice") {
		moved = moved.Add(m.Quantity.Abs())
	}
	testsupport.AssertDec(t, reserved.String(), moved)
}

func TestConsume_DirectFromEmbeddedRecipe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})
	dineIn, _ := orders.Lookup(orders.TypeDineIn)

	order := &models.Order{
		OrderNumber: "D-7",
		Items:       models.OrderItems{recipeItem("pizza", 1, line(flour.ID, "2"))},
	}
	require.NoError(t, f.repo.Create(ctx, nil, dineIn, order))

	con, err := f.engine.Consume(ctx, f.tx, order.ID, "")
	require.NoError(t, err)
	assert.True(t, con.Success)
	testsupport.AssertDec(t, "8", f.balance(t, flour.ID))

	movements := f.movements(t, order.ID)
	require.Len(t, movements, 1)
	testsupport.AssertDec(t, "-2", movements[0].Quantity)
	assert.Equal(t, "D-7", movements[0].DocumentNumber)

	_, err = f.engine.Consume(ctx, f.tx, order.ID, "D-7")
	require.NoError(t, err)
	assert.Len(t, f.movements(t, order.ID), 1)
	testsupport.AssertDec(t, "8", f.balance(t, flour.ID))
}

func TestConsume_DirectOrderNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Consume(context.Background(), f.tx, "00000000-0000-0000-0000-0000000000d1", "?")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "order", notFound.Kind)
}

func TestConsume_NegativeStockGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	salt := f.stock(t, "Соль", [2]string{"1", "2"})
	takeaway, _ := orders.Lookup(orders.TypeTakeaway)

	order := &models.Order{OrderNumber: "N-1", Items: models.OrderItems{recipeItem("soup", 1, line(salt.ID, "2"))}}
	require.NoError(t, f.repo.Create(ctx, nil, takeaway, order))

	_, err := f.engine.Consume(ctx, f.tx, order.ID, "N-1")
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	testsupport.AssertDec(t, "1", f.balance(t, salt.ID))
	assert.Empty(t, f.movements(t, order.ID))
	assert.Empty(t, f.notifier.events)

	require.NoError(t, f.db.Create(&models.Warehouse{Name: wh, AllowNegativeStock: true, IsOperational: true}).Error)
	con, err := f.engine.Consume(ctx, f.tx, order.ID, "N-1")
	require.NoError(t, err)
	require.Len(t, con.Consumed, 1)
	testsupport.AssertDec(t, "-1", f.balance(t, salt.ID))
	// недостача оценена по средней цене
	testsupport.AssertDec(t, "4", con.Consumed[0].TotalCost)
}

func TestConsume_AdoptsLegacyMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	legacy := testsupport.SeedItem(t, f.db, models.InventoryItem{
		Name: "Сахар", Unit: "kg", CurrentStock: dec("6"), TotalValue: dec("18"), UnitPrice: dec("3"),
	})
	dineIn, _ := orders.Lookup(orders.TypeDineIn)
	order := &models.Order{OrderNumber: "L-1", Items: models.OrderItems{recipeItem("tea", 2, line(legacy.ID, "1"))}}
	require.NoError(t, f.repo.Create(ctx, nil, dineIn, order))

	con, err := f.engine.Consume(ctx, f.tx, order.ID, "L-1")
	require.NoError(t, err)
	require.Len(t, con.Consumed, 1)
	assert.Equal(t, wh, con.Consumed[0].WarehouseName)
	testsupport.AssertDec(t, "6", con.Consumed[0].TotalCost)
	testsupport.AssertDec(t, "4", f.balance(t, legacy.ID))

	item, err := ledger.LoadItem(f.db, legacy.ID)
	require.NoError(t, err)
	testsupport.AssertDec(t, "4", item.CurrentStock)
	testsupport.AssertDec(t, "12", item.TotalValue)
}

func TestConsume_NotifiesAndTriggersAlertsAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"3", "5"})

	_, err := f.engine.Reserve(ctx, f.tx, "order-n", "N-9", orders.TypeDelivery, []models.OrderItem{recipeItem("pie", 1, line(flour.ID, "2"))})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.events)

	_, err = f.engine.Consume(ctx, f.tx, "order-n", "N-9")
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 1)
	event := f.notifier.events[0]
	assert.Equal(t, flour.ID, event.ItemID)
	assert.Equal(t, models.MovementSale, event.MovementType)
	assert.Equal(t, "N-9", event.OrderNumber)
	testsupport.AssertDec(t, "-2", event.QuantityDelta)
	assert.Equal(t, []string{flour.ID + "@" + wh}, f.alerts.triggered)

	item, err := ledger.LoadItem(f.db, flour.ID)
	require.NoError(t, err)
	assert.True(t, item.IsLowStock)
}

func TestConsume_JoinedDefersEffectsUntilFlush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"5", "5"})
	_, err := f.engine.Reserve(ctx, f.tx, "order-j", "J-1", orders.TypeDineIn, []models.OrderItem{recipeItem("pie", 1, line(flour.ID, "1"))})
	require.NoError(t, err)

	var joined *uow.Joined
	err = f.tx.Do(ctx, func(tx *gorm.DB) error {
		joined = uow.Join(tx, true)
		_, err := f.engine.Consume(ctx, joined, "order-j", "J-1")
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.events)

	joined.Flush()
	assert.Len(t, f.notifier.events, 1)
}

func TestRelease_NoReservationsIsNoop(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Release(context.Background(), f.tx, "order-none", "0")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Released)
}

func TestRelease_DoesNotReverseConsumption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})

	_, err := f.engine.Reserve(ctx, f.tx, "order-r", "R-1", orders.TypeDineIn, []models.OrderItem{recipeItem("pie", 1, line(flour.ID, "3"))})
	require.NoError(t, err)
	_, err = f.engine.Consume(ctx, f.tx, "order-r", "R-1")
	require.NoError(t, err)

	res, err := f.engine.Release(ctx, f.tx, "order-r", "R-1")
	require.NoError(t, err)
	assert.Empty(t, res.Released)
	testsupport.AssertDec(t, "7", f.balance(t, flour.ID))
	assert.Equal(t, models.ReservationConsumed, f.reservations(t, "order-r")[0].Status)
}

func TestConsume_DirectRetryDeductsOnlyRemainingIngredients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})
	cheese := f.stock(t, "Сыр", [2]string{"1", "20"})
	quickSale, _ := orders.Lookup(orders.TypeQuickSale)

	order := &models.Order{
		OrderNumber: "Q-5",
		Items:       models.OrderItems{recipeItem("pizza", 1, line(flour.ID, "2"), line(cheese.ID, "3"))},
	}
	require.NoError(t, f.repo.Create(ctx, nil, quickSale, order))

	// best-effort: мука списана, сыра не хватило
	partial, err := f.engine.Consume(ctx, f.be, order.ID, "Q-5")
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, cheese.ID, insufficient.ItemID)
	require.Len(t, partial.Consumed, 1)
	testsupport.AssertDec(t, "8", f.balance(t, flour.ID))
	testsupport.AssertDec(t, "1", f.balance(t, cheese.ID))

	_, err = ledger.Receive(f.db, ledger.Receipt{ItemID: cheese.ID, Quantity: dec("10"), UnitPrice: dec("20"), ReceivedAt: receiptClock.Add(time.Hour)})
	require.NoError(t, err)

	retry, err := f.engine.Consume(ctx, f.be, order.ID, "Q-5")
	require.NoError(t, err)
	assert.True(t, retry.Success)
	require.Len(t, retry.Consumed, 1)
	assert.Equal(t, cheese.ID, retry.Consumed[0].IngredientID)

	testsupport.AssertDec(t, "8", f.balance(t, flour.ID))
	testsupport.AssertDec(t, "8", f.balance(t, cheese.ID))

	movements := f.movements(t, order.ID)
	require.Len(t, movements, 2)
	moved := map[string]decimal.Decimal{}
	for _, m := range movements {
		moved[m.ItemID] = moved[m.ItemID].Add(m.Quantity.Abs())
	}
	testsupport.AssertDec(t, "2", moved[flour.ID])
	testsupport.AssertDec(t, "3", moved[cheese.ID])

	// третий вызов ничего не списывает
	again, err := f.engine.Consume(ctx, f.be, order.ID, "Q-5")
	require.NoError(t, err)
	assert.Empty(t, again.Consumed)
	assert.Len(t, f.movements(t, order.ID), 2)
}

func TestReserve_ConditionalUpdateRejectsConcurrentReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})

	// Параллельный резерв уже занял 9 на строке баланса, но его Reservation еще не видна
	require.NoError(t, f.db.Model(&models.Balance{}).
		Where("item_id = ? AND warehouse_name = ?", flour.ID, wh).
		Update("reserved_quantity", 9).Error)

	res, err := f.engine.Reserve(ctx, f.tx, "order-race", "RC-1", orders.TypeDineIn, []models.OrderItem{recipeItem("pizza", 1, line(flour.ID, "2"))})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.False(t, res.Success)
	assert.Equal(t, flour.ID, insufficient.ItemID)
	testsupport.AssertDec(t, "2", insufficient.Required)

	assert.Empty(t, f.reservations(t, "order-race"))
	item, err := ledger.LoadItem(f.db, flour.ID)
	require.NoError(t, err)
	testsupport.AssertDec(t, "0", item.ReservedStock)

	balance, err := ledger.LoadBalance(f.db, flour.ID, wh)
	require.NoError(t, err)
	require.NotNil(t, balance)
	testsupport.AssertDec(t, "9", balance.ReservedQuantity)
}

func TestReserve_GuardIsScopedPerWarehouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.stock(t, "Мука", [2]string{"10", "5"})
	_, err := ledger.Receive(f.db, ledger.Receipt{ItemID: flour.ID, Warehouse: "kitchen", Quantity: dec("3"), UnitPrice: dec("5"), ReceivedAt: receiptClock})
	require.NoError(t, err)

	mainLine := line(flour.ID, "8")
	mainLine.WarehouseName = wh
	_, err = f.engine.Reserve(ctx, f.tx, "order-main", "W-1", orders.TypeDineIn, []models.OrderItem{recipeItem("pizza", 1, mainLine)})
	require.NoError(t, err)

	// резерв на основном складе не уменьшает доступное на кухне
	kitchenLine := line(flour.ID, "3")
	kitchenLine.WarehouseName = "kitchen"
	res, err := f.engine.Reserve(ctx, f.tx, "order-kitchen", "W-2", orders.TypeDineIn, []models.OrderItem{recipeItem("pizza", 1, kitchenLine)})
	require.NoError(t, err)
	require.Len(t, res.Reservations, 1)
	assert.Equal(t, "kitchen", res.Reservations[0].WarehouseName)

	kitchen, err := ledger.LoadBalance(f.db, flour.ID, "kitchen")
	require.NoError(t, err)
	require.NotNil(t, kitchen)
	testsupport.AssertDec(t, "3", kitchen.ReservedQuantity)
	testsupport.AssertDec(t, "2", f.available(t, flour.ID))

	item, err := ledger.LoadItem(f.db, flour.ID)
	require.NoError(t, err)
	testsupport.AssertDec(t, "11", item.ReservedStock)

	_, err = f.engine.Release(ctx, f.tx, "order-kitchen", "W-2")
	require.NoError(t, err)
	kitchen, err = ledger.LoadBalance(f.db, flour.ID, "kitchen")
	require.NoError(t, err)
	testsupport.AssertDec(t, "0", kitchen.ReservedQuantity)
}

func TestConsume_UndeclaredItemUsesOperationalWarehouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&models.Warehouse{Name: "kitchen", IsOperational: true}).Error)
	salt := testsupport.SeedItem(t, f.db, models.InventoryItem{Name: "Соль", Unit: "kg"})
	_, err := ledger.Receive(f.db, ledger.Receipt{ItemID: salt.ID, Warehouse: "kitchen", Quantity: dec("5"), UnitPrice: dec("2"), ReceivedAt: receiptClock})
	require.NoError(t, err)

	dineIn, _ := orders.Lookup(orders.TypeDineIn)
	order := &models.Order{OrderNumber: "K-1", Items: models.OrderItems{recipeItem("soup", 1, line(salt.ID, "2"))}}
	require.NoError(t, f.repo.Create(ctx, nil, dineIn, order))

	con, err := f.engine.Consume(ctx, f.tx, order.ID, "K-1")
	require.NoError(t, err)
	require.Len(t, con.Consumed, 1)
	assert.Equal(t, "kitchen", con.Consumed[0].WarehouseName)

	kitchen, err := ledger.LoadBalance(f.db, salt.ID, "kitchen")
	require.NoError(t, err)
	require.NotNil(t, kitchen)
	testsupport.AssertDec(t, "3", kitchen.Quantity)
}
