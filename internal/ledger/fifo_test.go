package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/testsupport"
)

var dec = testsupport.Dec

func TestPlanFIFO_ConsumesOldestFirst(t *testing.T) {
	layers := []models.FIFOLayer{
		{ID: "l1", RemainingQuantity: dec("5"), UnitPrice: dec("10")},
		{ID: "l2", RemainingQuantity: dec("5"), UnitPrice: dec("20")},
	}

	plan := PlanFIFO(layers, dec("7"), dec("99"))

	testsupport.AssertDec(t, "90", plan.TotalCost)
	testsupport.AssertDec(t, "0", plan.Shortfall)
	require.Len(t, plan.Draws, 2)
	assert.Equal(t, "l1", plan.Draws[0].LayerID)
	testsupport.AssertDec(t, "5", plan.Draws[0].Quantity)
	testsupport.AssertDec(t, "0", plan.Draws[0].Remaining)
	assert.Equal(t, "l2", plan.Draws[1].LayerID)
	testsupport.AssertDec(t, "2", plan.Draws[1].Quantity)
	testsupport.AssertDec(t, "3", plan.Draws[1].Remaining)

	// исходные слои не меняются
	testsupport.AssertDec(t, "5", layers[0].RemainingQuantity)
}

func TestPlanFIFO_ShortfallPricedAtFallback(t *testing.T) {
	layers := []models.FIFOLayer{
		{ID: "l1", RemainingQuantity: dec("2"), UnitPrice: dec("10")},
		{ID: "empty", RemainingQuantity: dec("0"), UnitPrice: dec("1000")},
	}

	plan := PlanFIFO(layers, dec("5"), dec("12"))

	require.Len(t, plan.Draws, 1)
	testsupport.AssertDec(t, "3", plan.Shortfall)
	testsupport.AssertDec(t, "56", plan.TotalCost)
	testsupport.AssertDec(t, "11.2", plan.UnitCost())
}

func TestPlanFIFO_NoLayers(t *testing.T) {
	plan := PlanFIFO(nil, dec("4"), dec("2.5"))

	assert.Empty(t, plan.Draws)
	testsupport.AssertDec(t, "4", plan.Shortfall)
	testsupport.AssertDec(t, "10", plan.TotalCost)
}

func TestFallbackPrice(t *testing.T) {
	item := &models.InventoryItem{UnitPrice: dec("7")}

	testsupport.AssertDec(t, "15", FallbackPrice(&models.Balance{Quantity: dec("4"), TotalValue: dec("60")}, item))
	testsupport.AssertDec(t, "7", FallbackPrice(&models.Balance{Quantity: dec("0"), TotalValue: dec("0")}, item))
	testsupport.AssertDec(t, "7", FallbackPrice(nil, item))
	testsupport.AssertDec(t, "0", FallbackPrice(nil, nil))
}
