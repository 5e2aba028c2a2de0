package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
)

// Колонки накладной: ключевые слова заголовков (рус/англ)
var receiptColumns = map[string][]string{
	"item_id":    {"item_id", "ингредиент", "товар", "item"},
	"warehouse":  {"warehouse", "склад"},
	"quantity":   {"quantity", "количество", "кол-во", "qty"},
	"unit_price": {"unit_price", "цена", "price"},
	"document":   {"document", "документ", "накладная"},
}

// ErrMalformedReceipts - файл накладной не удалось разобрать
var ErrMalformedReceipts = errors.New("malformed receipts file")

// ParseReceiptsXLSX читает поступления с первого листа XLSX.
// Первая строка - заголовки. Пустая колонка склада остается пустой: Receive возьмет
// объявленный склад товара, а defaultWarehouse - только если и он не задан.
func ParseReceiptsXLSX(r io.Reader, defaultWarehouse string) ([]Receipt, error) {
	receipts, err := parseReceipts(r, defaultWarehouse)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReceipts, err)
	}
	return receipts, nil
}

func parseReceipts(r io.Reader, defaultWarehouse string) ([]Receipt, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия XLSX файла: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("файл не содержит листов")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения листа: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("файл пуст")
	}

	columns := mapHeader(rows[0])
	for _, required := range []string{"item_id", "quantity", "unit_price"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("не найдена колонка %s", required)
		}
	}

	var receipts []Receipt
	for i, row := range rows[1:] {
		line := i + 2
		itemID := cell(row, columns, "item_id")
		if itemID == "" {
			continue
		}

		qty, err := decimal.NewFromString(strings.ReplaceAll(cell(row, columns, "quantity"), ",", "."))
		if err != nil {
			return nil, fmt.Errorf("строка %d: неверный формат quantity: %w", line, err)
		}
		price, err := decimal.NewFromString(strings.ReplaceAll(cell(row, columns, "unit_price"), ",", "."))
		if err != nil {
			return nil, fmt.Errorf("строка %d: неверный формат unit_price: %w", line, err)
		}

		receipts = append(receipts, Receipt{
			ItemID:            itemID,
			Warehouse:         cell(row, columns, "warehouse"),
			FallbackWarehouse: defaultWarehouse,
			Quantity:          qty,
			UnitPrice:         price,
			DocumentNumber:    cell(row, columns, "document"),
		})
	}
	return receipts, nil
}

// ImportReceiptsXLSX разбирает XLSX и оприходует каждую строку через Receive.
// Возвращает движения поступлений в порядке строк файла.
func ImportReceiptsXLSX(tx *gorm.DB, r io.Reader, defaultWarehouse, performedBy string) ([]models.Movement, error) {
	receipts, err := ParseReceiptsXLSX(r, defaultWarehouse)
	if err != nil {
		return nil, err
	}

	movements := make([]models.Movement, 0, len(receipts))
	for i, receipt := range receipts {
		receipt.PerformedBy = performedBy
		receipt.Notes = "Импорт накладной XLSX"
		movement, err := Receive(tx, receipt)
		if err != nil {
			return movements, fmt.Errorf("receipt %d (%s): %w", i+1, receipt.ItemID, err)
		}
		movements = append(movements, *movement)
	}
	return movements, nil
}

func mapHeader(header []string) map[string]int {
	columns := make(map[string]int)
	for idx, title := range header {
		normalized := strings.ToLower(strings.TrimSpace(title))
		for key, keywords := range receiptColumns {
			if _, taken := columns[key]; taken {
				continue
			}
			for _, keyword := range keywords {
				if normalized == keyword {
					columns[key] = idx
					break
				}
			}
		}
	}
	return columns
}

func cell(row []string, columns map[string]int, key string) string {
	idx, ok := columns[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
