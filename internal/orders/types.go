// Package orders - каналы заказов (зал, самовывоз, доставка, стол, быстрая продажа) и их статусы.
package orders

import (
	"sort"
)

// Bucket - фаза жизненного цикла заказа, по ней склад решает что делать
type Bucket int

const (
	BucketUncommitted Bucket = iota // черновик/ожидание: склад не затронут
	BucketCommitted                 // принят в работу: ингредиенты зарезервированы
	BucketFulfilled                 // выдан/оплачен: ингредиенты списаны
	BucketCancelled                 // отменен: резерв снят
)

func (b Bucket) String() string {
	switch b {
	case BucketUncommitted:
		return "uncommitted"
	case BucketCommitted:
		return "committed"
	case BucketFulfilled:
		return "fulfilled"
	case BucketCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Type - канал заказов: своя таблица и свои названия статусов
type Type struct {
	Name          string
	Table         string
	InitialStatus string
	statuses      map[string]Bucket
}

// Classify возвращает фазу для статуса; ok=false для неизвестного статуса
func (t Type) Classify(status string) (Bucket, bool) {
	b, ok := t.statuses[status]
	return b, ok
}

// Statuses возвращает все допустимые статусы канала (отсортированы)
func (t Type) Statuses() []string {
	result := make([]string, 0, len(t.statuses))
	for s := range t.statuses {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

func newType(name, table, initial string, buckets map[Bucket][]string) Type {
	statuses := make(map[string]Bucket)
	for bucket, labels := range buckets {
		for _, label := range labels {
			statuses[label] = bucket
		}
	}
	return Type{Name: name, Table: table, InitialStatus: initial, statuses: statuses}
}

// Каналы заказов
const (
	TypeDineIn    = "dine_in"
	TypeTakeaway  = "takeaway"
	TypeDelivery  = "delivery"
	TypeTable     = "table"
	TypeQuickSale = "quick_sale"
)

var registry = map[string]Type{
	TypeDineIn: newType(TypeDineIn, "dine_in_orders", "pending", map[Bucket][]string{
		BucketUncommitted: {"pending"},
		BucketCommitted:   {"preparing", "ready", "served"},
		BucketFulfilled:   {"completed", "paid"},
		BucketCancelled:   {"cancelled"},
	}),
	TypeTakeaway: newType(TypeTakeaway, "takeaway_orders", "pending", map[Bucket][]string{
		BucketUncommitted: {"pending"},
		BucketCommitted:   {"confirmed", "preparing", "ready"},
		BucketFulfilled:   {"completed", "picked_up"},
		BucketCancelled:   {"cancelled"},
	}),
	TypeDelivery: newType(TypeDelivery, "delivery_orders", "pending", map[Bucket][]string{
		BucketUncommitted: {"pending"},
		BucketCommitted:   {"accepted", "preparing", "out_for_delivery"},
		BucketFulfilled:   {"delivered", "completed"},
		BucketCancelled:   {"cancelled", "rejected"},
	}),
	TypeTable: newType(TypeTable, "table_orders", "open", map[Bucket][]string{
		BucketUncommitted: {"open", "pending"},
		BucketCommitted:   {"confirmed", "preparing", "served"},
		BucketFulfilled:   {"paid", "closed"},
		BucketCancelled:   {"cancelled", "void"},
	}),
	TypeQuickSale: newType(TypeQuickSale, "quick_sale_orders", "draft", map[Bucket][]string{
		BucketUncommitted: {"draft"},
		BucketFulfilled:   {"completed", "paid"},
		BucketCancelled:   {"cancelled"},
	}),
}

// Lookup возвращает канал по имени
func Lookup(name string) (Type, bool) {
	t, ok := registry[name]
	return t, ok
}

// All возвращает все каналы в стабильном порядке
func All() []Type {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Type, 0, len(names))
	for _, name := range names {
		result = append(result, registry[name])
	}
	return result
}

// TableNames - таблицы всех каналов (для миграции)
func TableNames() []string {
	types := All()
	tables := make([]string, 0, len(types))
	for _, t := range types {
		tables = append(tables, t.Table)
	}
	return tables
}
