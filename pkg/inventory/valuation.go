package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ValuationMethod defines the inventory valuation method
// 在庫評価方法を定義
type ValuationMethod string

const (
	ValuationWeightedAverage ValuationMethod = "WEIGHTED_AVERAGE" // 加重平均法
	ValuationFIFO            ValuationMethod = "FIFO"             // 先入先出法
	ValuationLIFO            ValuationMethod = "LIFO"             // 後入先出法
)

// ItemValuation is the valuation result for one item
// 品目1件の評価結果
type ItemValuation struct {
	ItemID   string          `json:"item_id"`   // 品目ID
	ItemCode string          `json:"item_code"` // 品目コード
	Method   ValuationMethod `json:"method"`    // 評価方法
	Quantity decimal.Decimal `json:"quantity"`  // 評価対象数量
	Value    decimal.Decimal `json:"value"`     // 評価額
	Currency string          `json:"currency"`  // 通貨
}

// TotalValuation is the valuation result across all items
// 全品目の評価結果
type TotalValuation struct {
	Method       ValuationMethod `json:"method"`        // 評価方法
	ItemCount    int             `json:"item_count"`    // 評価した品目数
	SkippedCount int             `json:"skipped_count"` // 失敗によりスキップした品目数
	TotalValue   decimal.Decimal `json:"total_value"`   // 合計評価額
}

// ValuationEngine computes inventory values under several costing methods
// 複数の原価計算方法で在庫評価額を計算
type ValuationEngine struct {
	store  Store
	logger *zap.Logger
}

// NewValuationEngine creates a ValuationEngine
// ValuationEngineを作成
func NewValuationEngine(store Store, logger *zap.Logger) *ValuationEngine {
	return &ValuationEngine{store: store, logger: logger}
}

// movementHistoryLimit 原価レイヤー構築時に遡る移動記録の上限
const movementHistoryLimit = 1000

// CalculateItemValue values one item's current stock under the given
// method. FIFO and LIFO build cost layers from costed inbound movements;
// quantity not covered by any layer is valued at the item's weighted
// average unit cost.
// 指定の評価方法で品目の現在在庫を評価する。FIFO・LIFOは単価付き入庫移動から
// 原価レイヤーを構築し、レイヤーで賄えない数量は加重平均単価で評価する
func (e *ValuationEngine) CalculateItemValue(ctx context.Context, itemID string, method ValuationMethod) (*ItemValuation, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	valuation := &ItemValuation{
		ItemID:   item.ID,
		ItemCode: item.ItemCode,
		Method:   method,
		Quantity: item.CurrentStock,
		Currency: item.Currency,
	}

	switch method {
	case ValuationWeightedAverage:
		valuation.Value = item.CurrentStock.Mul(item.UnitCost).Round(4)
	case ValuationFIFO, ValuationLIFO:
		value, err := e.layeredValue(ctx, item, method)
		if err != nil {
			return nil, err
		}
		valuation.Value = value
	default:
		return nil, NewValidationError("method", "無効な評価方法です: "+string(method))
	}

	return valuation, nil
}

// costLayer 入庫移動から構築する原価レイヤー
type costLayer struct {
	quantity  decimal.Decimal
	unitCost  decimal.Decimal
	createdAt time.Time
}

// layeredValue FIFO・LIFOの評価額を原価レイヤーから計算
func (e *ValuationEngine) layeredValue(ctx context.Context, item *Item, method ValuationMethod) (decimal.Decimal, error) {
	movements, err := e.store.GetMovementHistory(ctx, item.ID, movementHistoryLimit)
	if err != nil {
		return decimal.Zero, err
	}

	var layers []costLayer
	for _, m := range movements {
		if !m.Type.IsInbound() || m.UnitCost == nil || !m.Quantity.IsPositive() {
			continue
		}
		layers = append(layers, costLayer{
			quantity:  m.Quantity,
			unitCost:  *m.UnitCost,
			createdAt: m.CreatedAt,
		})
	}

	// FIFO: 古いレイヤーから消費されるため、残在庫は新しいレイヤーで構成される。
	// 新しい順に積み上げて現在庫を充当する。
	// LIFO: 新しいレイヤーから消費されるため、残在庫は古いレイヤーで構成される。
	if method == ValuationFIFO {
		sort.Slice(layers, func(i, j int) bool {
			return layers[i].createdAt.After(layers[j].createdAt)
		})
	} else {
		sort.Slice(layers, func(i, j int) bool {
			return layers[i].createdAt.Before(layers[j].createdAt)
		})
	}

	remaining := item.CurrentStock
	value := decimal.Zero
	for _, layer := range layers {
		if !remaining.IsPositive() {
			break
		}
		take := layer.quantity
		if take.GreaterThan(remaining) {
			take = remaining
		}
		value = value.Add(take.Mul(layer.unitCost))
		remaining = remaining.Sub(take)
	}

	// レイヤーで賄えない分は加重平均単価で評価（履歴欠落時のフォールバック）
	if remaining.IsPositive() {
		value = value.Add(remaining.Mul(item.UnitCost))
	}

	return value.Round(4), nil
}

// CalculateTotalValue values all items. Per-item failures are logged and
// skipped so one broken record never hides the rest of the report.
// 全品目を評価する。品目単位の失敗はログに記録してスキップする
func (e *ValuationEngine) CalculateTotalValue(ctx context.Context, method ValuationMethod) (*TotalValuation, error) {
	result := &TotalValuation{Method: method, TotalValue: decimal.Zero}

	offset := 0
	const pageSize = 200
	for {
		items, err := e.store.ListItems(ctx, ItemFilter{}, offset, pageSize)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			valuation, err := e.CalculateItemValue(ctx, item.ID, method)
			if err != nil {
				result.SkippedCount++
				e.logger.Warn("品目の評価に失敗したためスキップします",
					zap.String("item_id", item.ID),
					zap.Error(err))
				continue
			}
			result.ItemCount++
			result.TotalValue = result.TotalValue.Add(valuation.Value)
		}

		if len(items) < pageSize {
			break
		}
		offset += pageSize
	}

	return result, nil
}

// ABCClass ABC分析の区分
type ABCClass string

const (
	ClassA ABCClass = "A" // 累積評価額80%まで
	ClassB ABCClass = "B" // 累積評価額95%まで
	ClassC ABCClass = "C" // 残り
)

// ABCEntry is one item's ABC classification
// 品目1件のABC分類結果
type ABCEntry struct {
	ItemID     string          `json:"item_id"`    // 品目ID
	ItemCode   string          `json:"item_code"`  // 品目コード
	Value      decimal.Decimal `json:"value"`      // 評価額
	Cumulative decimal.Decimal `json:"cumulative"` // 累積構成比（0〜1）
	Class      ABCClass        `json:"class"`      // 区分
}

// TurnoverReport is the stock turnover analysis for one item
// 品目1件の在庫回転率分析
type TurnoverReport struct {
	ItemID       string          `json:"item_id"`       // 品目ID
	PeriodDays   int             `json:"period_days"`   // 分析期間（日）
	TotalOutflow decimal.Decimal `json:"total_outflow"` // 期間中の出庫数量
	AverageStock decimal.Decimal `json:"average_stock"` // 平均在庫（現在庫を近似値として使用）
	AnnualRate   decimal.Decimal `json:"annual_rate"`   // 年換算回転率
}

// ExpirationLossReport is the waste loss analysis for one item
// 品目1件の廃棄ロス分析
type ExpirationLossReport struct {
	ItemID     string          `json:"item_id"`     // 品目ID
	PeriodDays int             `json:"period_days"` // 分析期間（日）
	WastedQty  decimal.Decimal `json:"wasted_qty"`  // 廃棄数量
	LossValue  decimal.Decimal `json:"loss_value"`  // 廃棄金額
	Currency   string          `json:"currency"`    // 通貨
}

// CostVarianceReport compares purchase prices against the current average
// 仕入価格と現在の平均単価の乖離を分析
type CostVarianceReport struct {
	ItemID      string          `json:"item_id"`      // 品目ID
	CurrentCost decimal.Decimal `json:"current_cost"` // 現在の加重平均単価
	MinPurchase decimal.Decimal `json:"min_purchase"` // 期間中の最低仕入単価
	MaxPurchase decimal.Decimal `json:"max_purchase"` // 期間中の最高仕入単価
	AvgPurchase decimal.Decimal `json:"avg_purchase"` // 期間中の平均仕入単価
	SampleCount int             `json:"sample_count"` // 対象仕入件数
}

// AnalysisEngine provides read-only stock analytics
// 読み取り専用の在庫分析を提供
type AnalysisEngine struct {
	store     Store
	valuation *ValuationEngine
	logger    *zap.Logger
}

// NewAnalysisEngine creates an AnalysisEngine
// AnalysisEngineを作成
func NewAnalysisEngine(store Store, valuation *ValuationEngine, logger *zap.Logger) *AnalysisEngine {
	return &AnalysisEngine{store: store, valuation: valuation, logger: logger}
}

// ABCClassification classifies all items by cumulative value share:
// A up to 80%, B up to 95%, C for the rest. Items that fail to value
// are skipped with a warning.
// 全品目を累積評価額構成比で分類する（80%までA、95%までB、残りC）。
// 評価に失敗した品目は警告を記録してスキップ
func (e *AnalysisEngine) ABCClassification(ctx context.Context) ([]*ABCEntry, error) {
	var entries []*ABCEntry
	total := decimal.Zero

	offset := 0
	const pageSize = 200
	for {
		items, err := e.store.ListItems(ctx, ItemFilter{}, offset, pageSize)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			entries = append(entries, &ABCEntry{
				ItemID:   item.ID,
				ItemCode: item.ItemCode,
				Value:    item.TotalValue,
			})
			total = total.Add(item.TotalValue)
		}
		if len(items) < pageSize {
			break
		}
		offset += pageSize
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Value.GreaterThan(entries[j].Value)
	})

	if total.IsZero() {
		for _, entry := range entries {
			entry.Class = ClassC
		}
		return entries, nil
	}

	thresholdA := decimal.NewFromFloat(0.80)
	thresholdB := decimal.NewFromFloat(0.95)
	cumulative := decimal.Zero
	for _, entry := range entries {
		cumulative = cumulative.Add(entry.Value)
		entry.Cumulative = cumulative.DivRound(total, 4)
		switch {
		case entry.Cumulative.LessThanOrEqual(thresholdA):
			entry.Class = ClassA
		case entry.Cumulative.LessThanOrEqual(thresholdB):
			entry.Class = ClassB
		default:
			entry.Class = ClassC
		}
	}

	return entries, nil
}

// TurnoverRate computes the annualized stock turnover for one item over
// a period, using current stock as the average-inventory proxy.
// 期間中の出庫数量から年換算の在庫回転率を計算する
// （平均在庫の近似値として現在庫を使用）
func (e *AnalysisEngine) TurnoverRate(ctx context.Context, itemID string, from, to time.Time) (*TurnoverReport, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	movements, err := e.store.GetMovementsByDateRange(ctx, itemID, from, to)
	if err != nil {
		return nil, err
	}

	outflow := decimal.Zero
	for _, m := range movements {
		switch m.Type {
		case MovementTypeSale, MovementTypeUse, MovementTypeWaste:
			outflow = outflow.Add(m.Quantity.Abs())
		}
	}

	days := int(to.Sub(from).Hours() / 24)
	if days <= 0 {
		days = 1
	}

	report := &TurnoverReport{
		ItemID:       item.ID,
		PeriodDays:   days,
		TotalOutflow: outflow,
		AverageStock: item.CurrentStock,
	}

	if item.CurrentStock.IsPositive() {
		periodRate := outflow.DivRound(item.CurrentStock, 4)
		report.AnnualRate = periodRate.Mul(decimal.NewFromInt(365)).DivRound(decimal.NewFromInt(int64(days)), 4)
	}

	return report, nil
}

// ExpirationLoss sums waste movements for one item over a period
// 期間中の廃棄移動から廃棄ロスを集計する
func (e *AnalysisEngine) ExpirationLoss(ctx context.Context, itemID string, from, to time.Time) (*ExpirationLossReport, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	movements, err := e.store.GetMovementsByDateRange(ctx, itemID, from, to)
	if err != nil {
		return nil, err
	}

	days := int(to.Sub(from).Hours() / 24)
	if days <= 0 {
		days = 1
	}

	report := &ExpirationLossReport{
		ItemID:     item.ID,
		PeriodDays: days,
		WastedQty:  decimal.Zero,
		LossValue:  decimal.Zero,
		Currency:   item.Currency,
	}

	for _, m := range movements {
		if m.Type != MovementTypeWaste {
			continue
		}
		qty := m.Quantity.Abs()
		report.WastedQty = report.WastedQty.Add(qty)
		unitCost := item.UnitCost
		if m.UnitCost != nil {
			unitCost = *m.UnitCost
		}
		report.LossValue = report.LossValue.Add(qty.Mul(unitCost))
	}
	report.LossValue = report.LossValue.Round(4)

	return report, nil
}

// CostVariance compares an item's purchase prices over a period against
// its current weighted average cost
// 期間中の仕入単価と現在の加重平均単価の乖離を分析する
func (e *AnalysisEngine) CostVariance(ctx context.Context, itemID string, from, to time.Time) (*CostVarianceReport, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	movements, err := e.store.GetMovementsByDateRange(ctx, itemID, from, to)
	if err != nil {
		return nil, err
	}

	report := &CostVarianceReport{
		ItemID:      item.ID,
		CurrentCost: item.UnitCost,
	}

	sum := decimal.Zero
	for _, m := range movements {
		if m.Type != MovementTypePurchase || m.UnitCost == nil {
			continue
		}
		cost := *m.UnitCost
		if report.SampleCount == 0 {
			report.MinPurchase = cost
			report.MaxPurchase = cost
		} else {
			if cost.LessThan(report.MinPurchase) {
				report.MinPurchase = cost
			}
			if cost.GreaterThan(report.MaxPurchase) {
				report.MaxPurchase = cost
			}
		}
		sum = sum.Add(cost)
		report.SampleCount++
	}

	if report.SampleCount > 0 {
		report.AvgPurchase = sum.DivRound(decimal.NewFromInt(int64(report.SampleCount)), 4)
	}

	return report, nil
}
