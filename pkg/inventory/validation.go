package inventory

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// itemCodePattern 品目コードの形式（英数字・ハイフン・アンダースコア、1〜50文字）
var itemCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// valueTolerance 在庫金額の恒等式チェックに許容する丸め誤差
var valueTolerance = decimal.NewFromFloat(0.0001)

// ValidateItemCode 品目コードをバリデーション
func ValidateItemCode(code string) error {
	if code == "" {
		return NewValidationError("item_code", "品目コードは必須です")
	}
	if !itemCodePattern.MatchString(code) {
		return NewValidationError("item_code", "品目コードは英数字・ハイフン・アンダースコアで1〜50文字である必要があります")
	}
	return nil
}

// ValidateItemName 品目名をバリデーション
func ValidateItemName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return NewValidationError("name", "品目名は必須です")
	}
	if len(trimmed) > 200 {
		return NewValidationError("name", "品目名は200文字以内である必要があります")
	}
	return nil
}

// ValidateCategory カテゴリをバリデーション
func ValidateCategory(category Category) error {
	if _, ok := categoryLabels[category]; !ok {
		return NewValidationError("category", "無効なカテゴリです: "+string(category))
	}
	return nil
}

// ValidateQuantity 数量をバリデーション（移動入力は符号なしの正の値）
func ValidateQuantity(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return NewValidationError("quantity", "数量は正の値である必要があります")
	}
	return nil
}

// ValidateUnitCost 単価をバリデーション
func ValidateUnitCost(unitCost decimal.Decimal) error {
	if unitCost.IsNegative() {
		return NewValidationError("unit_cost", "単価は0以上である必要があります")
	}
	return nil
}

// ValidateMovementType 移動タイプをバリデーション
func ValidateMovementType(movementType MovementType) error {
	switch movementType {
	case MovementTypePurchase, MovementTypeSale, MovementTypeUse,
		MovementTypeAdjustment, MovementTypeReturn, MovementTypeWaste,
		MovementTypeFound, MovementTypeReservation, MovementTypeRelease:
		return nil
	}
	return NewValidationError("type", "無効な移動タイプです: "+string(movementType))
}

// ValidateMovementInput 移動入力全体をバリデーション
// RESERVATION/RELEASEは専用操作経由でのみ記録されるため入力としては拒否する
func ValidateMovementInput(input MovementInput) error {
	if err := ValidateMovementType(input.Type); err != nil {
		return err
	}
	if input.Type == MovementTypeReservation || input.Type == MovementTypeRelease {
		return NewValidationError("type", "予約・解除は専用の操作を使用してください")
	}
	// ADJUSTMENTのみ符号付き数量を受け付ける（棚卸の増減両方向）
	if input.Type == MovementTypeAdjustment {
		if input.Quantity.IsZero() {
			return NewValidationError("quantity", "調整数量は0以外である必要があります")
		}
	} else if err := ValidateQuantity(input.Quantity); err != nil {
		return err
	}
	if input.UnitCost != nil {
		if err := ValidateUnitCost(*input.UnitCost); err != nil {
			return err
		}
	}
	if len(input.Reason) > 500 {
		return NewValidationError("reason", "理由は500文字以内である必要があります")
	}
	if len(input.Reference) > 100 {
		return NewValidationError("reference", "参照番号は100文字以内である必要があります")
	}
	return nil
}

// ValidateItemInvariants checks the stock record invariants before persist.
// A violation blocks the write entirely.
// 永続化前に在庫レコードの不変条件をチェック（違反時は書き込みを阻止）
func ValidateItemInvariants(item *Item) error {
	// 予約数量は0以上
	if item.ReservedStock.IsNegative() {
		return NewInvariantViolationError(item.ID, "reserved_non_negative",
			"予約済み数量が負になっています: "+item.ReservedStock.String())
	}

	// 予約数量は物理在庫を超えない。負在庫許可品目のみ一時的な超過を認める
	if !item.AllowNegativeStock && item.ReservedStock.GreaterThan(item.CurrentStock) {
		return NewInvariantViolationError(item.ID, "reserved_within_stock",
			"予約済み数量が物理在庫を超えています: 予約="+item.ReservedStock.String()+
				", 在庫="+item.CurrentStock.String())
	}

	// 物理在庫は負の在庫を許可しない限り0以上
	if !item.AllowNegativeStock && item.CurrentStock.IsNegative() {
		return NewInvariantViolationError(item.ID, "stock_non_negative",
			"物理在庫が負になっています: "+item.CurrentStock.String())
	}

	// 利用可能数量の恒等式: available = current - reserved
	expectedAvailable := item.CurrentStock.Sub(item.ReservedStock)
	if !item.AvailableStock.Equal(expectedAvailable) {
		return NewInvariantViolationError(item.ID, "available_identity",
			"利用可能数量が恒等式を満たしません: "+item.AvailableStock.String()+
				" != "+expectedAvailable.String())
	}

	// 最小在庫 < 最大在庫（最大在庫が設定されている場合）
	if item.MaximumStock.IsPositive() && item.MinimumStock.GreaterThanOrEqual(item.MaximumStock) {
		return NewInvariantViolationError(item.ID, "min_below_max",
			"最小在庫は最大在庫より小さい必要があります: min="+item.MinimumStock.String()+
				", max="+item.MaximumStock.String())
	}

	// 有効期限 > 製造日（両方設定されている場合）
	if item.ExpirationDate != nil && item.ManufacturingDate != nil &&
		!item.ExpirationDate.After(*item.ManufacturingDate) {
		return NewInvariantViolationError(item.ID, "expiry_after_manufacture",
			"有効期限は製造日より後である必要があります")
	}

	// 在庫金額の恒等式: total = current × unit cost（丸め誤差を許容）
	expectedValue := item.CurrentStock.Mul(item.UnitCost).Round(4)
	if item.TotalValue.Sub(expectedValue).Abs().GreaterThan(valueTolerance) {
		return NewInvariantViolationError(item.ID, "value_identity",
			"在庫金額が恒等式を満たしません: "+item.TotalValue.String()+
				" != "+expectedValue.String())
	}

	return nil
}

// ValidateNewItem 新規品目をバリデーション
func ValidateNewItem(item *Item) error {
	if err := ValidateItemCode(item.ItemCode); err != nil {
		return err
	}
	if err := ValidateItemName(item.Name); err != nil {
		return err
	}
	if err := ValidateCategory(item.Category); err != nil {
		return err
	}
	if err := ValidateUnitCost(item.UnitCost); err != nil {
		return err
	}
	if item.MinimumStock.IsNegative() {
		return NewValidationError("minimum_stock", "最小在庫は0以上である必要があります")
	}
	if item.MaximumStock.IsNegative() {
		return NewValidationError("maximum_stock", "最大在庫は0以上である必要があります")
	}
	if item.ReorderPoint.IsNegative() {
		return NewValidationError("reorder_point", "発注点は0以上である必要があります")
	}
	if item.ReorderQuantity.IsNegative() {
		return NewValidationError("reorder_quantity", "発注数量は0以上である必要があります")
	}
	if item.LeadTimeDays < 0 {
		return NewValidationError("lead_time_days", "リードタイムは0以上である必要があります")
	}
	return ValidateItemInvariants(item)
}
