package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReorderConfig holds auto-reorder settings
// 自動発注の設定を保持
type ReorderConfig struct {
	Enabled bool // 自動発注を有効化
}

// ReorderEngine creates replenishment purchase orders when stock falls to
// or below the reorder point. Exactly one pending order per item.
// 在庫が発注点以下になった際に補充発注を作成する。品目ごとに納品待ち発注は1件のみ
type ReorderEngine struct {
	orders   PurchaseOrderStore
	notifier NotificationSink
	clock    Clock
	logger   *zap.Logger
	config   ReorderConfig
}

// インターフェース実装の確認
var _ ReorderTrigger = (*ReorderEngine)(nil)

// NewReorderEngine creates a ReorderEngine. notifier may be nil.
// ReorderEngineを作成（notifierはnil可）
func NewReorderEngine(orders PurchaseOrderStore, notifier NotificationSink, clock Clock, logger *zap.Logger, config ReorderConfig) *ReorderEngine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ReorderEngine{
		orders:   orders,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		config:   config,
	}
}

// TriggerIfBelowReorderPoint creates a purchase order when the item has
// fallen to or below its reorder point. Returns (nil, nil) when no order
// is needed. A creation failure returns ReorderCreationError: the caller's
// stock mutation is already committed and stands.
// 品目が発注点以下の場合に発注書を作成する。発注不要なら(nil, nil)。
// 作成失敗はReorderCreationError（呼び出し側の在庫更新は確定済み）
func (e *ReorderEngine) TriggerIfBelowReorderPoint(ctx context.Context, item *Item) (*PurchaseOrder, error) {
	if !e.config.Enabled {
		return nil, nil
	}
	// 発注点が未設定の品目は対象外
	if item.ReorderPoint.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}
	if item.CurrentStock.GreaterThan(item.ReorderPoint) {
		return nil, nil
	}

	// 既に納品待ちの発注があれば重複発注しない
	pending, err := e.orders.GetPendingOrderByItem(ctx, item.ID)
	if err != nil {
		return nil, NewReorderCreationError(item.ID, err)
	}
	if pending != nil {
		e.logger.Debug("納品待ち発注が存在するためスキップします",
			zap.String("item_id", item.ID),
			zap.String("order_number", pending.OrderNumber))
		return nil, nil
	}

	quantity := e.orderQuantity(item)
	now := e.clock.Now()

	order := &PurchaseOrder{
		ID:               NewOrderID(),
		OrderNumber:      fmt.Sprintf("PO-%s-%s", now.Format("20060102"), order8(item.ID)),
		ItemID:           item.ID,
		SupplierID:       item.SupplierID,
		Quantity:         quantity,
		UnitCost:         item.UnitCost,
		ExpectedDelivery: now.AddDate(0, 0, item.LeadTimeDays),
		Status:           OrderStatusPending,
		Reference:        item.ItemCode,
		CreatedAt:        now,
		CreatedBy:        getUserFromContext(ctx),
	}

	if err := e.orders.CreatePurchaseOrder(ctx, order); err != nil {
		return nil, NewReorderCreationError(item.ID, err)
	}

	reordersTriggered.Inc()
	e.logger.Info("自動発注を作成しました",
		zap.String("item_id", item.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("quantity", quantity.String()),
		zap.String("supplier_id", item.SupplierID))

	// 発注通知は送達保証なし（失敗はログのみ）
	if e.notifier != nil {
		if err := e.notifier.SendReorderNotice(ctx, order); err != nil {
			e.logger.Error("発注通知の送信に失敗しました",
				zap.String("order_number", order.OrderNumber),
				zap.Error(err))
		}
	}

	return order, nil
}

// orderQuantity computes the replenishment quantity:
// the largest of the configured reorder quantity, the gap up to the
// maximum stock (or 3x minimum when no maximum is set), and the supplier
// minimum order (1 when unset).
// 発注数量を計算する。設定発注数量・最大在庫までの差分（最大未設定時は
// 最小在庫×3）・仕入先最小発注数量（未設定時は1）の最大値
func (e *ReorderEngine) orderQuantity(item *Item) decimal.Decimal {
	target := item.MaximumStock
	if target.LessThanOrEqual(decimal.Zero) {
		target = item.MinimumStock.Mul(decimal.NewFromInt(3))
	}
	gap := target.Sub(item.CurrentStock)

	minOrder := item.SupplierMinOrder
	if minOrder.LessThanOrEqual(decimal.Zero) {
		minOrder = decimal.NewFromInt(1)
	}

	quantity := item.ReorderQuantity
	if gap.GreaterThan(quantity) {
		quantity = gap
	}
	if minOrder.GreaterThan(quantity) {
		quantity = minOrder
	}
	return quantity
}

// order8 発注番号用に品目IDの先頭8文字を取り出す
func order8(itemID string) string {
	if len(itemID) > 8 {
		return itemID[:8]
	}
	return itemID
}
