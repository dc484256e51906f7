package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// overstockFactor 最大在庫に対する過剰在庫判定の係数（最大在庫×1.2超で過剰）
var overstockFactor = decimal.NewFromFloat(1.2)

// ClassifyStatus derives the stock status from quantities and dates.
// Precedence is fixed: expired > out of stock > low stock > overstocked >
// in stock. Equality at the minimum threshold counts as low stock. A zero
// maximum means the overstock check is skipped. Pure and stateless: the
// same inputs always produce the same status.
// 数量と日付から在庫ステータスを導出する純粋関数。
// 優先順位は固定: 期限切れ > 在庫切れ > 低在庫 > 過剰在庫 > 在庫あり。
// 最小在庫と等しい場合は低在庫。最大在庫が0の場合は過剰判定をスキップ。
func ClassifyStatus(current, minimum, maximum decimal.Decimal, expiration *time.Time, now time.Time) Status {
	if expiration != nil && expiration.Before(now) {
		return StatusExpired
	}
	if current.LessThanOrEqual(decimal.Zero) {
		return StatusOutOfStock
	}
	if current.LessThanOrEqual(minimum) {
		return StatusLowStock
	}
	if maximum.GreaterThan(decimal.Zero) && current.GreaterThan(maximum.Mul(overstockFactor)) {
		return StatusOverstocked
	}
	return StatusInStock
}

// StatusAt classifies the item's stock status at the given time.
// The expiration date counts only when TrackExpiration is set, matching
// the alert engine: an item that does not track expiration is never
// classified EXPIRED even if its expiration date has passed.
// 指定時刻時点の品目の在庫ステータスを分類する。有効期限は
// TrackExpirationが有効な場合のみ考慮する（アラートエンジンと同一の判定）。
// 期限管理しない品目は期限日が過ぎていてもEXPIREDにはならない
func (i *Item) StatusAt(now time.Time) Status {
	expiration := i.ExpirationDate
	if !i.TrackExpiration {
		expiration = nil
	}
	return ClassifyStatus(i.CurrentStock, i.MinimumStock, i.MaximumStock, expiration, now)
}

// DaysToExpiry returns the number of days until expiration, rounded up.
// Zero or negative means the date has passed.
// 有効期限までの日数を切り上げで返す（0以下は期限超過）
func DaysToExpiry(expiration time.Time, now time.Time) int {
	hours := expiration.Sub(now).Hours()
	days := int(hours / 24)
	if hours > float64(days)*24 {
		days++
	}
	return days
}
