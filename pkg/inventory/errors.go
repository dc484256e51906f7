package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 定義済みエラー
var (
	// ErrItemNotFound 品目が見つからない
	ErrItemNotFound = errors.New("品目が見つかりません")

	// ErrDuplicateItem 品目コードが重複している
	ErrDuplicateItem = errors.New("品目コードが既に存在します")

	// ErrVersionMismatch 楽観的ロックの競合
	ErrVersionMismatch = errors.New("バージョンが一致しません（他の処理により更新されています）")

	// ErrInvalidQuantity 無効な数量
	ErrInvalidQuantity = errors.New("数量は正の値である必要があります")

	// ErrInvalidMovementType 無効な移動タイプ
	ErrInvalidMovementType = errors.New("無効な移動タイプです")

	// ErrAlertNotFound アラートが見つからない
	ErrAlertNotFound = errors.New("アラートが見つかりません")

	// ErrOrderNotFound 発注書が見つからない
	ErrOrderNotFound = errors.New("発注書が見つかりません")

	// ErrConflictRetryExceeded 競合リトライ回数の上限に到達
	ErrConflictRetryExceeded = errors.New("更新競合のリトライ上限に達しました")
)

// InsufficientStockError is returned when an outbound movement would drive
// physical stock negative on an item that does not allow it.
// 出庫により物理在庫が負になる場合に返されるエラー
type InsufficientStockError struct {
	ItemID    string          `json:"item_id"`   // 品目ID
	Available decimal.Decimal `json:"available"` // 現在の物理在庫
	Requested decimal.Decimal `json:"requested"` // 要求数量
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("在庫が不足しています: 品目=%s, 在庫=%s, 要求=%s",
		e.ItemID, e.Available.String(), e.Requested.String())
}

// NewInsufficientStockError creates an InsufficientStockError
// InsufficientStockErrorを作成
func NewInsufficientStockError(itemID string, available, requested decimal.Decimal) *InsufficientStockError {
	return &InsufficientStockError{ItemID: itemID, Available: available, Requested: requested}
}

// InsufficientAvailableStockError is returned when a reservation exceeds
// the unreserved quantity.
// 予約が利用可能数量を超える場合に返されるエラー
type InsufficientAvailableStockError struct {
	ItemID    string          `json:"item_id"`   // 品目ID
	Available decimal.Decimal `json:"available"` // 利用可能数量
	Requested decimal.Decimal `json:"requested"` // 要求数量
}

func (e *InsufficientAvailableStockError) Error() string {
	return fmt.Sprintf("利用可能在庫が不足しています: 品目=%s, 利用可能=%s, 要求=%s",
		e.ItemID, e.Available.String(), e.Requested.String())
}

// NewInsufficientAvailableStockError creates an InsufficientAvailableStockError
// InsufficientAvailableStockErrorを作成
func NewInsufficientAvailableStockError(itemID string, available, requested decimal.Decimal) *InsufficientAvailableStockError {
	return &InsufficientAvailableStockError{ItemID: itemID, Available: available, Requested: requested}
}

// OverReleaseError is returned when a release exceeds the reserved quantity.
// 予約解除が予約済み数量を超える場合に返されるエラー
type OverReleaseError struct {
	ItemID    string          `json:"item_id"`   // 品目ID
	Reserved  decimal.Decimal `json:"reserved"`  // 予約済み数量
	Requested decimal.Decimal `json:"requested"` // 解除要求数量
}

func (e *OverReleaseError) Error() string {
	return fmt.Sprintf("予約済み数量を超える解除はできません: 品目=%s, 予約済み=%s, 要求=%s",
		e.ItemID, e.Reserved.String(), e.Requested.String())
}

// NewOverReleaseError creates an OverReleaseError
// OverReleaseErrorを作成
func NewOverReleaseError(itemID string, reserved, requested decimal.Decimal) *OverReleaseError {
	return &OverReleaseError{ItemID: itemID, Reserved: reserved, Requested: requested}
}

// ValidationError represents an input validation failure
// 入力バリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // フィールド名
	Message string `json:"message"` // エラーメッセージ
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
// ValidationErrorを作成
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvariantViolationError blocks a persist whose record state would violate
// a stock invariant. The write never happens.
// 在庫不変条件に違反する永続化を阻止するエラー（書き込みは行われない）
type InvariantViolationError struct {
	ItemID  string `json:"item_id"` // 品目ID
	Rule    string `json:"rule"`    // 違反した不変条件
	Message string `json:"message"` // 詳細メッセージ
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("不変条件違反 [%s]: 品目=%s, %s", e.Rule, e.ItemID, e.Message)
}

// NewInvariantViolationError creates an InvariantViolationError
// InvariantViolationErrorを作成
func NewInvariantViolationError(itemID, rule, message string) *InvariantViolationError {
	return &InvariantViolationError{ItemID: itemID, Rule: rule, Message: message}
}

// ReorderCreationError is returned when a movement committed but the
// follow-up purchase order could not be created. The stock mutation stands.
// 移動は確定したが補充発注の作成に失敗した場合のエラー（在庫更新は取り消さない）
type ReorderCreationError struct {
	ItemID string `json:"item_id"` // 品目ID
	Err    error  `json:"-"`       // 原因
}

func (e *ReorderCreationError) Error() string {
	return fmt.Sprintf("自動発注の作成に失敗しました: 品目=%s: %v", e.ItemID, e.Err)
}

func (e *ReorderCreationError) Unwrap() error {
	return e.Err
}

// NewReorderCreationError creates a ReorderCreationError
// ReorderCreationErrorを作成
func NewReorderCreationError(itemID string, err error) *ReorderCreationError {
	return &ReorderCreationError{ItemID: itemID, Err: err}
}

// StorageError wraps a storage layer failure
// ストレージ層の失敗をラップ
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Err       error  `json:"-"`         // 原因
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ストレージエラー [%s]: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageError
// StorageErrorを作成
func NewStorageError(operation string, err error) *StorageError {
	return &StorageError{Operation: operation, Err: err}
}
