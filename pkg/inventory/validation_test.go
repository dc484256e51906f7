package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// TestValidateItemInvariants_ReservedBounds 予約数量の境界チェック
func TestValidateItemInvariants_ReservedBounds(t *testing.T) {
	item := newTestItem()
	item.ReservedStock = decimal.NewFromInt(120) // 在庫100を超過
	item.AvailableStock = item.CurrentStock.Sub(item.ReservedStock)

	err := ValidateItemInvariants(item)

	var invariantErr *InvariantViolationError
	assert.ErrorAs(t, err, &invariantErr)
	assert.Equal(t, "reserved_within_stock", invariantErr.Rule)
}

// TestValidateItemInvariants_ReservedExceedsZeroStock 在庫ゼロでも予約残があれば違反
func TestValidateItemInvariants_ReservedExceedsZeroStock(t *testing.T) {
	item := newTestItem()
	item.CurrentStock = decimal.Zero
	item.ReservedStock = decimal.NewFromInt(60)
	item.AvailableStock = item.CurrentStock.Sub(item.ReservedStock)
	item.TotalValue = decimal.Zero

	err := ValidateItemInvariants(item)

	var invariantErr *InvariantViolationError
	assert.ErrorAs(t, err, &invariantErr)
	assert.Equal(t, "reserved_within_stock", invariantErr.Rule)

	// 負在庫許可品目は一時的な超過を認める
	item.AllowNegativeStock = true
	assert.NoError(t, ValidateItemInvariants(item))
}

// TestValidateItemInvariants_AvailableIdentity 利用可能数量は恒等式で検査される
func TestValidateItemInvariants_AvailableIdentity(t *testing.T) {
	item := newTestItem()
	item.AvailableStock = decimal.NewFromInt(999) // 手で書き換えられた導出値

	err := ValidateItemInvariants(item)

	var invariantErr *InvariantViolationError
	assert.ErrorAs(t, err, &invariantErr)
	assert.Equal(t, "available_identity", invariantErr.Rule)
}

// TestValidateItemInvariants_MinBelowMax 最大在庫設定時は最小在庫がそれ未満であること
func TestValidateItemInvariants_MinBelowMax(t *testing.T) {
	item := newTestItem()
	item.MinimumStock = decimal.NewFromInt(500)
	item.MaximumStock = decimal.NewFromInt(500)

	err := ValidateItemInvariants(item)

	var invariantErr *InvariantViolationError
	assert.ErrorAs(t, err, &invariantErr)
	assert.Equal(t, "min_below_max", invariantErr.Rule)
}

// TestValidateItemInvariants_ExpiryAfterManufacture 有効期限は製造日より後
func TestValidateItemInvariants_ExpiryAfterManufacture(t *testing.T) {
	item := newTestItem()
	manufactured := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expired := manufactured.AddDate(0, 0, -10)
	item.ManufacturingDate = &manufactured
	item.ExpirationDate = &expired

	err := ValidateItemInvariants(item)

	var invariantErr *InvariantViolationError
	assert.ErrorAs(t, err, &invariantErr)
	assert.Equal(t, "expiry_after_manufacture", invariantErr.Rule)
}

// TestValidateItemInvariants_ValueIdentity 在庫金額は丸め誤差の範囲で一致すること
func TestValidateItemInvariants_ValueIdentity(t *testing.T) {
	item := newTestItem()
	item.TotalValue = decimal.NewFromInt(9999)

	err := ValidateItemInvariants(item)

	var invariantErr *InvariantViolationError
	assert.ErrorAs(t, err, &invariantErr)
	assert.Equal(t, "value_identity", invariantErr.Rule)
}

// TestValidateMovementInput 移動入力のバリデーション
func TestValidateMovementInput(t *testing.T) {
	// 通常タイプは正の数量のみ
	err := ValidateMovementInput(MovementInput{Type: MovementTypeSale, Quantity: decimal.NewFromInt(-5)})
	assert.Error(t, err)

	// 調整は負数を受け付ける
	err = ValidateMovementInput(MovementInput{Type: MovementTypeAdjustment, Quantity: decimal.NewFromInt(-5)})
	assert.NoError(t, err)

	// 調整でもゼロは拒否
	err = ValidateMovementInput(MovementInput{Type: MovementTypeAdjustment, Quantity: decimal.Zero})
	assert.Error(t, err)

	// 不明なタイプは拒否
	err = ValidateMovementInput(MovementInput{Type: MovementType("TELEPORT"), Quantity: decimal.NewFromInt(5)})
	assert.Error(t, err)
}

// TestValidateItemCode 品目コードの形式チェック
func TestValidateItemCode(t *testing.T) {
	assert.NoError(t, ValidateItemCode("FEED-HAY-001"))
	assert.NoError(t, ValidateItemCode("vac_fmd_01"))
	assert.Error(t, ValidateItemCode(""))
	assert.Error(t, ValidateItemCode("飼料001"))
	assert.Error(t, ValidateItemCode("has space"))
}

// TestStatusLabels 静的ラベルは未知の値をそのまま返す
func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "低在庫", StatusLowStock.Label())
	assert.Equal(t, "過剰在庫", StatusOverstocked.Label())
	assert.Equal(t, "飼料", CategoryFeed.Label())
	assert.Equal(t, "UNKNOWN", Status("UNKNOWN").Label())
}
