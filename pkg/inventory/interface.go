package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store defines the persistence boundary for items, movements and alerts
// 品目・移動・アラートの永続化境界を定義
type Store interface {
	// 品目操作
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, itemID string) (*Item, error)
	GetItemByCode(ctx context.Context, itemCode string) (*Item, error)
	// UpdateItem persists the item only when the stored version matches
	// item.Version-1; otherwise it returns ErrVersionMismatch.
	// 保存済みバージョンがitem.Version-1と一致する場合のみ更新（不一致はErrVersionMismatch）
	UpdateItem(ctx context.Context, item *Item) error
	ListItems(ctx context.Context, filter ItemFilter, offset, limit int) ([]*Item, error)

	// 移動記録操作（追記専用）
	AppendMovement(ctx context.Context, movement *Movement) error
	GetMovementHistory(ctx context.Context, itemID string, limit int) ([]*Movement, error)
	GetMovementsByDateRange(ctx context.Context, itemID string, from, to time.Time) ([]*Movement, error)

	// アラート操作
	CreateAlert(ctx context.Context, alert *Alert) error
	UpdateAlert(ctx context.Context, alert *Alert) error
	GetActiveAlertsByItem(ctx context.Context, itemID string) ([]*Alert, error)
	ListActiveAlerts(ctx context.Context, limit int) ([]*Alert, error)
	ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error

	// 接続管理
	Ping(ctx context.Context) error
	Close() error
}

// PurchaseOrderStore defines persistence for auto-generated purchase orders
// 自動補充発注の永続化を定義
type PurchaseOrderStore interface {
	CreatePurchaseOrder(ctx context.Context, order *PurchaseOrder) error
	// GetPendingOrderByItem returns nil (no error) when the item has no
	// pending order.
	// 納品待ち発注が無い場合はnilを返す（エラーにしない）
	GetPendingOrderByItem(ctx context.Context, itemID string) (*PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, itemID string, limit int) ([]*PurchaseOrder, error)
}

// NotificationSink receives outbound alert and reorder notifications.
// Implementations must not be relied on for correctness: failures are
// logged by callers and never propagated.
// アラート・発注通知の送信先（失敗は呼び出し側でログに記録され伝播しない）
type NotificationSink interface {
	SendAlert(ctx context.Context, alert *Alert) error
	SendReorderNotice(ctx context.Context, order *PurchaseOrder) error
}

// StockLedger defines the core stock mutation and query operations
// 在庫元帳の中核操作を定義
type StockLedger interface {
	ApplyMovement(ctx context.Context, itemID string, input MovementInput) (*Item, error)
	Reserve(ctx context.Context, itemID string, quantity decimal.Decimal, reference string) (*Item, error)
	Release(ctx context.Context, itemID string, quantity decimal.Decimal, reference string) (*Item, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	GetItemByCode(ctx context.Context, itemCode string) (*Item, error)
	ListItems(ctx context.Context, filter ItemFilter, offset, limit int) ([]*Item, error)
	GetHistory(ctx context.Context, itemID string, limit int) ([]*Movement, error)
	GetHistoryByDateRange(ctx context.Context, itemID string, from, to time.Time) ([]*Movement, error)
}

// AlertChecker evaluates alert conditions for items
// 品目のアラート条件を評価
type AlertChecker interface {
	CheckItem(ctx context.Context, item *Item) ([]*Alert, error)
	Sweep(ctx context.Context) (*SweepResult, error)
}

// ReorderTrigger creates replenishment orders for depleted items
// 在庫が発注点を下回った品目の補充発注を作成
type ReorderTrigger interface {
	TriggerIfBelowReorderPoint(ctx context.Context, item *Item) (*PurchaseOrder, error)
}
