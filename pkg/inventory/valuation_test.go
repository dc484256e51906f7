package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newTestValuationEngine(store Store) *ValuationEngine {
	return NewValuationEngine(store, zap.NewNop())
}

// inboundMovement 原価レイヤー用の入庫移動を作成
func inboundMovement(qty, cost string, createdAt time.Time) *Movement {
	unitCost := decimal.RequireFromString(cost)
	return &Movement{
		ID:           NewMovementID(),
		ItemID:       "item-001",
		Type:         MovementTypePurchase,
		Quantity:     decimal.RequireFromString(qty),
		UnitCost:     &unitCost,
		CreatedAt:    createdAt,
		BalanceAfter: decimal.Zero,
	}
}

// TestCalculateItemValue_WeightedAverage 加重平均法は在庫×単価
func TestCalculateItemValue_WeightedAverage(t *testing.T) {
	store := new(MockStore)
	engine := newTestValuationEngine(store)

	item := newTestItem() // 在庫100、単価10
	store.On("GetItem", mock.Anything, "item-001").Return(item, nil)

	result, err := engine.CalculateItemValue(context.Background(), "item-001", ValuationWeightedAverage)

	assert.NoError(t, err)
	assert.True(t, result.Value.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, ValuationWeightedAverage, result.Method)
}

// TestCalculateItemValue_FIFO 残在庫は新しい入庫レイヤーで構成される
func TestCalculateItemValue_FIFO(t *testing.T) {
	store := new(MockStore)
	engine := newTestValuationEngine(store)

	item := newTestItem()
	item.CurrentStock = decimal.NewFromInt(60)
	item.RecalculateDerived()

	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	movements := []*Movement{
		inboundMovement("40", "10", jan),
		inboundMovement("50", "12", feb),
	}

	store.On("GetItem", mock.Anything, "item-001").Return(item, nil)
	store.On("GetMovementHistory", mock.Anything, "item-001", movementHistoryLimit).Return(movements, nil)

	result, err := engine.CalculateItemValue(context.Background(), "item-001", ValuationFIFO)

	assert.NoError(t, err)
	// 古い層から消費済み: 残60 = 2月分50@12 + 1月分10@10 = 700
	assert.True(t, result.Value.Equal(decimal.NewFromInt(700)),
		"FIFO評価額が期待値と一致しません: %s", result.Value.String())
}

// TestCalculateItemValue_LIFO 残在庫は古い入庫レイヤーで構成される
func TestCalculateItemValue_LIFO(t *testing.T) {
	store := new(MockStore)
	engine := newTestValuationEngine(store)

	item := newTestItem()
	item.CurrentStock = decimal.NewFromInt(60)
	item.RecalculateDerived()

	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	movements := []*Movement{
		inboundMovement("40", "10", jan),
		inboundMovement("50", "12", feb),
	}

	store.On("GetItem", mock.Anything, "item-001").Return(item, nil)
	store.On("GetMovementHistory", mock.Anything, "item-001", movementHistoryLimit).Return(movements, nil)

	result, err := engine.CalculateItemValue(context.Background(), "item-001", ValuationLIFO)

	assert.NoError(t, err)
	// 新しい層から消費済み: 残60 = 1月分40@10 + 2月分20@12 = 640
	assert.True(t, result.Value.Equal(decimal.NewFromInt(640)),
		"LIFO評価額が期待値と一致しません: %s", result.Value.String())
}

// TestCalculateItemValue_LayerShortfall レイヤー不足分は加重平均単価で補完される
func TestCalculateItemValue_LayerShortfall(t *testing.T) {
	store := new(MockStore)
	engine := newTestValuationEngine(store)

	item := newTestItem()
	item.CurrentStock = decimal.NewFromInt(100)
	item.UnitCost = decimal.NewFromInt(9)
	item.RecalculateDerived()

	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	movements := []*Movement{
		inboundMovement("30", "12", jan),
	}

	store.On("GetItem", mock.Anything, "item-001").Return(item, nil)
	store.On("GetMovementHistory", mock.Anything, "item-001", movementHistoryLimit).Return(movements, nil)

	result, err := engine.CalculateItemValue(context.Background(), "item-001", ValuationFIFO)

	assert.NoError(t, err)
	// 30@12 + 残り70@9 = 360 + 630 = 990
	assert.True(t, result.Value.Equal(decimal.NewFromInt(990)))
}

// TestCalculateItemValue_InvalidMethod 無効な評価方法は拒否される
func TestCalculateItemValue_InvalidMethod(t *testing.T) {
	store := new(MockStore)
	engine := newTestValuationEngine(store)

	store.On("GetItem", mock.Anything, "item-001").Return(newTestItem(), nil)

	_, err := engine.CalculateItemValue(context.Background(), "item-001", ValuationMethod("MAGIC"))

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

// TestCalculateTotalValue_SkipsFailedItems 評価失敗の品目はスキップして集計する
func TestCalculateTotalValue_SkipsFailedItems(t *testing.T) {
	store := new(MockStore)
	engine := newTestValuationEngine(store)

	good := newTestItem()
	bad := newTestItem()
	bad.ID = "item-002"

	store.On("ListItems", mock.Anything, ItemFilter{}, 0, 200).Return([]*Item{good, bad}, nil)
	store.On("GetItem", mock.Anything, "item-001").Return(good, nil)
	store.On("GetItem", mock.Anything, "item-002").Return(nil, assert.AnError)

	result, err := engine.CalculateTotalValue(context.Background(), ValuationWeightedAverage)

	assert.NoError(t, err)
	assert.Equal(t, 1, result.ItemCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.True(t, result.TotalValue.Equal(decimal.NewFromInt(1000)))
}

// TestABCClassification 累積構成比80%/95%で区分される
func TestABCClassification(t *testing.T) {
	store := new(MockStore)
	engine := NewAnalysisEngine(store, newTestValuationEngine(store), zap.NewNop())

	high := newTestItem()
	high.TotalValue = decimal.NewFromInt(800)
	mid := newTestItem()
	mid.ID = "item-002"
	mid.ItemCode = "MED-PEN-001"
	mid.TotalValue = decimal.NewFromInt(150)
	low := newTestItem()
	low.ID = "item-003"
	low.ItemCode = "SUP-GLOVE-001"
	low.TotalValue = decimal.NewFromInt(50)

	store.On("ListItems", mock.Anything, ItemFilter{}, 0, 200).Return([]*Item{mid, low, high}, nil)

	entries, err := engine.ABCClassification(context.Background())

	assert.NoError(t, err)
	assert.Len(t, entries, 3)
	// 評価額降順に並び、累積80%までA、95%までB、残りC
	assert.Equal(t, "item-001", entries[0].ItemID)
	assert.Equal(t, ClassA, entries[0].Class)
	assert.Equal(t, ClassB, entries[1].Class)
	assert.Equal(t, ClassC, entries[2].Class)
}

// TestTurnoverRate 出庫数量から年換算回転率を計算する
func TestTurnoverRate(t *testing.T) {
	store := new(MockStore)
	engine := NewAnalysisEngine(store, newTestValuationEngine(store), zap.NewNop())

	item := newTestItem() // 在庫100
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 73) // 73日間（365/73 = 5）

	movements := []*Movement{
		{Type: MovementTypeSale, Quantity: decimal.NewFromInt(-120)},
		{Type: MovementTypeUse, Quantity: decimal.NewFromInt(-60)},
		{Type: MovementTypeWaste, Quantity: decimal.NewFromInt(-20)},
		{Type: MovementTypePurchase, Quantity: decimal.NewFromInt(300)}, // 入庫は対象外
	}

	store.On("GetItem", mock.Anything, "item-001").Return(item, nil)
	store.On("GetMovementsByDateRange", mock.Anything, "item-001", from, to).Return(movements, nil)

	report, err := engine.TurnoverRate(context.Background(), "item-001", from, to)

	assert.NoError(t, err)
	assert.True(t, report.TotalOutflow.Equal(decimal.NewFromInt(200)))
	// 期間回転率 200/100 = 2、年換算 2×365/73 = 10
	assert.True(t, report.AnnualRate.Equal(decimal.NewFromInt(10)),
		"年換算回転率が期待値と一致しません: %s", report.AnnualRate.String())
}

// TestExpirationLoss 廃棄移動から廃棄ロスを集計する
func TestExpirationLoss(t *testing.T) {
	store := new(MockStore)
	engine := NewAnalysisEngine(store, newTestValuationEngine(store), zap.NewNop())

	item := newTestItem() // 単価10
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	cost := decimal.NewFromInt(12)
	movements := []*Movement{
		{Type: MovementTypeWaste, Quantity: decimal.NewFromInt(-5), UnitCost: &cost}, // 5×12
		{Type: MovementTypeWaste, Quantity: decimal.NewFromInt(-3)},                  // 3×10（単価なしは品目単価）
		{Type: MovementTypeSale, Quantity: decimal.NewFromInt(-50)},                  // 廃棄以外は対象外
	}

	store.On("GetItem", mock.Anything, "item-001").Return(item, nil)
	store.On("GetMovementsByDateRange", mock.Anything, "item-001", from, to).Return(movements, nil)

	report, err := engine.ExpirationLoss(context.Background(), "item-001", from, to)

	assert.NoError(t, err)
	assert.True(t, report.WastedQty.Equal(decimal.NewFromInt(8)))
	assert.True(t, report.LossValue.Equal(decimal.NewFromInt(90)))
}

// TestCostVariance 期間中の仕入単価の幅と平均を算出する
func TestCostVariance(t *testing.T) {
	store := new(MockStore)
	engine := NewAnalysisEngine(store, newTestValuationEngine(store), zap.NewNop())

	item := newTestItem()
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	c1 := decimal.NewFromInt(8)
	c2 := decimal.NewFromInt(10)
	c3 := decimal.NewFromInt(12)
	movements := []*Movement{
		{Type: MovementTypePurchase, Quantity: decimal.NewFromInt(10), UnitCost: &c1},
		{Type: MovementTypePurchase, Quantity: decimal.NewFromInt(10), UnitCost: &c2},
		{Type: MovementTypePurchase, Quantity: decimal.NewFromInt(10), UnitCost: &c3},
		{Type: MovementTypeSale, Quantity: decimal.NewFromInt(-5)}, // 仕入以外は対象外
	}

	store.On("GetItem", mock.Anything, "item-001").Return(item, nil)
	store.On("GetMovementsByDateRange", mock.Anything, "item-001", from, to).Return(movements, nil)

	report, err := engine.CostVariance(context.Background(), "item-001", from, to)

	assert.NoError(t, err)
	assert.Equal(t, 3, report.SampleCount)
	assert.True(t, report.MinPurchase.Equal(decimal.NewFromInt(8)))
	assert.True(t, report.MaxPurchase.Equal(decimal.NewFromInt(12)))
	assert.True(t, report.AvgPurchase.Equal(decimal.NewFromInt(10)))
}
