// Package inventory provides the ranch stock ledger, alerting and
// auto-replenishment core.
// 牧場在庫の元帳・アラート・自動補充のコア機能を提供
package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item represents a stocked SKU on the ranch (feed, medication, vaccines...)
// 牧場で在庫管理される品目（飼料、薬品、ワクチンなど）を表現
type Item struct {
	ID                 string          `json:"id" db:"id"`                                     // 品目ID
	ItemCode           string          `json:"item_code" db:"item_code"`                       // 品目コード（一意）
	Name               string          `json:"name" db:"name"`                                 // 品目名
	Category           Category        `json:"category" db:"category"`                         // カテゴリ
	CurrentStock       decimal.Decimal `json:"current_stock" db:"current_stock"`               // 現在在庫数量
	ReservedStock      decimal.Decimal `json:"reserved_stock" db:"reserved_stock"`             // 予約済み数量
	AvailableStock     decimal.Decimal `json:"available_stock" db:"available_stock"`           // 利用可能数量（導出値）
	MinimumStock       decimal.Decimal `json:"minimum_stock" db:"minimum_stock"`               // 最小在庫（低在庫閾値）
	MaximumStock       decimal.Decimal `json:"maximum_stock" db:"maximum_stock"`               // 最大在庫（0は未設定）
	ReorderPoint       decimal.Decimal `json:"reorder_point" db:"reorder_point"`               // 発注点
	ReorderQuantity    decimal.Decimal `json:"reorder_quantity" db:"reorder_quantity"`         // 発注数量
	UnitCost           decimal.Decimal `json:"unit_cost" db:"unit_cost"`                       // 単価（加重平均）
	TotalValue         decimal.Decimal `json:"total_value" db:"total_value"`                   // 在庫金額（導出値）
	Currency           string          `json:"currency" db:"currency"`                         // 通貨
	ExpirationDate     *time.Time      `json:"expiration_date" db:"expiration_date"`           // 有効期限
	ManufacturingDate  *time.Time      `json:"manufacturing_date" db:"manufacturing_date"`     // 製造日
	LastMovementDate   *time.Time      `json:"last_movement_date" db:"last_movement_date"`     // 最終移動日時
	Status             Status          `json:"status" db:"status"`                             // 在庫ステータス（常に再分類で設定）
	TrackExpiration    bool            `json:"track_expiration" db:"track_expiration"`         // 有効期限を追跡
	AllowNegativeStock bool            `json:"allow_negative_stock" db:"allow_negative_stock"` // 負の在庫を許可
	IsCritical         bool            `json:"is_critical" db:"is_critical"`                   // 重要品目フラグ
	SupplierID         string          `json:"supplier_id" db:"supplier_id"`                   // 仕入先ID
	SupplierMinOrder   decimal.Decimal `json:"supplier_min_order" db:"supplier_min_order"`     // 仕入先最小発注数量
	LeadTimeDays       int             `json:"lead_time_days" db:"lead_time_days"`             // 納品リードタイム（日）
	Version            int64           `json:"version" db:"version"`                           // 楽観的ロック用バージョン
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`                     // 作成日時
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`                     // 更新日時
	UpdatedBy          string          `json:"updated_by" db:"updated_by"`                     // 更新者
}

// Category defines the ranch item category
// 牧場品目のカテゴリを定義
type Category string

const (
	CategoryFeed       Category = "FEED"       // 飼料
	CategoryMedication Category = "MEDICATION" // 薬品
	CategoryVaccines   Category = "VACCINES"   // ワクチン
	CategoryEquipment  Category = "EQUIPMENT"  // 設備・器具
	CategorySupplies   Category = "SUPPLIES"   // 消耗品
	CategoryOther      Category = "OTHER"      // その他
)

// Status defines the derived stock status of an item
// 品目の在庫ステータスを定義（閾値と日付からの導出値）
type Status string

const (
	StatusInStock      Status = "IN_STOCK"     // 在庫あり
	StatusLowStock     Status = "LOW_STOCK"    // 低在庫
	StatusOutOfStock   Status = "OUT_OF_STOCK" // 在庫切れ
	StatusOverstocked  Status = "OVERSTOCKED"  // 過剰在庫
	StatusExpired      Status = "EXPIRED"      // 期限切れ
	StatusBackordered  Status = "BACKORDERED"  // 入荷待ち（仕入先起因、分類では設定しない）
	StatusDamaged      Status = "DAMAGED"      // 破損
	StatusDiscontinued Status = "DISCONTINUED" // 廃番
	StatusReserved     Status = "RESERVED"     // 全量予約済み
)

// Movement represents one append-only stock movement record
// 追記専用の在庫移動記録を表現（作成後は不変）
type Movement struct {
	ID           string           `json:"id" db:"id"`                       // 移動記録ID
	ItemID       string           `json:"item_id" db:"item_id"`             // 品目ID
	Type         MovementType     `json:"type" db:"type"`                   // 移動タイプ
	Quantity     decimal.Decimal  `json:"quantity" db:"quantity"`           // 符号付き数量
	UnitCost     *decimal.Decimal `json:"unit_cost" db:"unit_cost"`         // 単価（入庫時のみ）
	BalanceAfter decimal.Decimal  `json:"balance_after" db:"balance_after"` // 移動後の物理在庫
	Reason       string           `json:"reason" db:"reason"`               // 理由
	Reference    string           `json:"reference" db:"reference"`         // 参照番号（発注書番号など）
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`       // 作成日時
	CreatedBy    string           `json:"created_by" db:"created_by"`       // 作成者
}

// MovementType defines the type of stock movement
// 在庫移動のタイプを定義
type MovementType string

const (
	MovementTypePurchase    MovementType = "PURCHASE"    // 仕入
	MovementTypeSale        MovementType = "SALE"        // 販売
	MovementTypeUse         MovementType = "USE"         // 使用（給餌・投薬など）
	MovementTypeAdjustment  MovementType = "ADJUSTMENT"  // 棚卸調整
	MovementTypeReturn      MovementType = "RETURN"      // 返品入庫
	MovementTypeWaste       MovementType = "WASTE"       // 廃棄
	MovementTypeFound       MovementType = "FOUND"       // 棚卸発見
	MovementTypeReservation MovementType = "RESERVATION" // 予約（物理在庫は変化しない）
	MovementTypeRelease     MovementType = "RELEASE"     // 予約解除
)

// IsInbound reports whether the movement type increases physical stock
// 移動タイプが物理在庫を増加させるかを判定
func (t MovementType) IsInbound() bool {
	switch t {
	case MovementTypePurchase, MovementTypeReturn, MovementTypeFound:
		return true
	}
	return false
}

// Alert represents a persisted inventory alert with a resolution lifecycle
// 解決状態を持つ永続化された在庫アラートを表現
type Alert struct {
	ID             string          `json:"id" db:"id"`                           // アラートID
	ItemID         string          `json:"item_id" db:"item_id"`                 // 品目ID
	Type           AlertType       `json:"type" db:"type"`                       // アラートタイプ
	Priority       AlertPriority   `json:"priority" db:"priority"`               // 優先度
	CurrentValue   decimal.Decimal `json:"current_value" db:"current_value"`     // 現在値
	ThresholdValue decimal.Decimal `json:"threshold_value" db:"threshold_value"` // 閾値
	Message        string          `json:"message" db:"message"`                 // メッセージ
	AutoResolvable bool            `json:"auto_resolvable" db:"auto_resolvable"` // 条件解消時に自動解決可能
	NotifiedAt     *time.Time      `json:"notified_at" db:"notified_at"`         // 通知日時
	IsActive       bool            `json:"is_active" db:"is_active"`             // アクティブ状態
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`           // 作成日時
	ResolvedAt     *time.Time      `json:"resolved_at" db:"resolved_at"`         // 解決日時
}

// AlertType defines types of inventory alerts
// 在庫アラートのタイプを定義
type AlertType string

const (
	AlertTypeLowStock     AlertType = "LOW_STOCK"     // 低在庫
	AlertTypeExpiringSoon AlertType = "EXPIRING_SOON" // 期限切れ間近
	AlertTypeExpired      AlertType = "EXPIRED"       // 期限切れ
	AlertTypeOverstocked  AlertType = "OVERSTOCKED"   // 過剰在庫
)

// AlertPriority defines alert priority levels
// アラート優先度を定義
type AlertPriority string

const (
	PriorityLow      AlertPriority = "LOW"      // 低
	PriorityMedium   AlertPriority = "MEDIUM"   // 中
	PriorityHigh     AlertPriority = "HIGH"     // 高
	PriorityCritical AlertPriority = "CRITICAL" // 緊急
)

// priorityRank 優先度の比較用ランク
var priorityRank = map[AlertPriority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// HigherThan reports whether p ranks above other
// 優先度pがotherより高いかを判定
func (p AlertPriority) HigherThan(other AlertPriority) bool {
	return priorityRank[p] > priorityRank[other]
}

// PurchaseOrder represents an auto-generated replenishment order
// 自動補充で生成される発注書を表現
type PurchaseOrder struct {
	ID               string          `json:"id" db:"id"`                               // 発注ID
	OrderNumber      string          `json:"order_number" db:"order_number"`           // 発注番号
	ItemID           string          `json:"item_id" db:"item_id"`                     // 品目ID
	SupplierID       string          `json:"supplier_id" db:"supplier_id"`             // 仕入先ID
	Quantity         decimal.Decimal `json:"quantity" db:"quantity"`                   // 発注数量
	UnitCost         decimal.Decimal `json:"unit_cost" db:"unit_cost"`                 // 発注時単価
	ExpectedDelivery time.Time       `json:"expected_delivery" db:"expected_delivery"` // 納品予定日
	Status           OrderStatus     `json:"status" db:"status"`                       // ステータス
	Reference        string          `json:"reference" db:"reference"`                 // 参照（契機となった移動など）
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`               // 作成日時
	CreatedBy        string          `json:"created_by" db:"created_by"`               // 作成者
}

// OrderStatus defines the purchase order status
// 発注書のステータスを定義
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // 発注済み・納品待ち
	OrderStatusReceived  OrderStatus = "RECEIVED"  // 納品済み
	OrderStatusCancelled OrderStatus = "CANCELLED" // キャンセル
)

// MovementInput is the caller-supplied input for a ledger movement
// 元帳移動操作の呼び出し側入力
type MovementInput struct {
	Type      MovementType     `json:"type"`      // 移動タイプ
	Quantity  decimal.Decimal  `json:"quantity"`  // 数量（符号なし、正の値）
	UnitCost  *decimal.Decimal `json:"unit_cost"` // 単価（PURCHASE時のみ任意）
	Reason    string           `json:"reason"`    // 理由
	Reference string           `json:"reference"` // 参照番号
}

// ItemFilter narrows item queries
// 品目照会の絞り込み条件
type ItemFilter struct {
	Category     Category `json:"category"`      // カテゴリ（空は全件）
	Status       Status   `json:"status"`        // ステータス（空は全件）
	OnlyCritical bool     `json:"only_critical"` // 重要品目のみ
}

// categoryLabels カテゴリの表示名（静的マッピング）
var categoryLabels = map[Category]string{
	CategoryFeed:       "飼料",
	CategoryMedication: "薬品",
	CategoryVaccines:   "ワクチン",
	CategoryEquipment:  "設備・器具",
	CategorySupplies:   "消耗品",
	CategoryOther:      "その他",
}

// statusLabels ステータスの表示名（静的マッピング）
var statusLabels = map[Status]string{
	StatusInStock:      "在庫あり",
	StatusLowStock:     "低在庫",
	StatusOutOfStock:   "在庫切れ",
	StatusOverstocked:  "過剰在庫",
	StatusExpired:      "期限切れ",
	StatusBackordered:  "入荷待ち",
	StatusDamaged:      "破損",
	StatusDiscontinued: "廃番",
	StatusReserved:     "全量予約済み",
}

// Label returns the display label for a category
// カテゴリの表示名を返す
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Label returns the display label for a status
// ステータスの表示名を返す
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// NewItemID generates a new item ID
// 新しい品目IDを生成
func NewItemID() string {
	return uuid.New().String()
}

// NewMovementID generates a new movement record ID
// 新しい移動記録IDを生成
func NewMovementID() string {
	return uuid.New().String()
}

// NewAlertID generates a new alert ID
// 新しいアラートIDを生成
func NewAlertID() string {
	return uuid.New().String()
}

// NewOrderID generates a new purchase order ID
// 新しい発注IDを生成
func NewOrderID() string {
	return uuid.New().String()
}

// RecalculateDerived recomputes available stock and total value from the
// owning fields. Derived fields are never adjusted by independent arithmetic.
// 利用可能数量と在庫金額を所有フィールドから再計算（導出値を独立に加減算しない）
func (i *Item) RecalculateDerived() {
	i.AvailableStock = i.CurrentStock.Sub(i.ReservedStock)
	i.TotalValue = i.CurrentStock.Mul(i.UnitCost).Round(4)
}

// IsExpired checks whether the item has passed its expiration date
// 品目が有効期限を過ぎているかチェック
func (i *Item) IsExpired(now time.Time) bool {
	if i.ExpirationDate == nil {
		return false
	}
	return i.ExpirationDate.Before(now)
}

// Clock abstracts the current time for deterministic tests
// テストで決定的に時刻を扱うための抽象
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now
// time.Nowを用いる本番用Clock
type SystemClock struct{}

// Now returns the current time
// 現在時刻を返す
func (SystemClock) Now() time.Time {
	return time.Now()
}
