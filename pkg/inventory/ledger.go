package inventory

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerConfig holds ledger behavior settings
// 元帳の動作設定を保持
type LedgerConfig struct {
	DefaultCurrency    string // 新規品目の既定通貨
	MaxConflictRetries int    // バージョン競合時の最大リトライ回数
}

// DefaultLedgerConfig returns the default ledger configuration
// 既定の元帳設定を返す
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		DefaultCurrency:    "JPY",
		MaxConflictRetries: 3,
	}
}

// lockStripes 品目ロックのストライプ数
const lockStripes = 64

// Ledger is the core stock ledger: it owns every mutation of item
// quantities and records each one as an append-only movement.
// 在庫元帳の中核。品目数量のすべての変更を所有し、追記専用の移動記録として残す
type Ledger struct {
	store   Store
	alerts  AlertChecker
	reorder ReorderTrigger
	clock   Clock
	logger  *zap.Logger
	config  LedgerConfig

	// 品目単位の直列化用ロック。品目IDのハッシュで固定数のストライプに
	// 割り当てるため、品目数が増えてもロックのメモリは増えない
	locks [lockStripes]sync.Mutex
}

// インターフェース実装の確認
var _ StockLedger = (*Ledger)(nil)

// NewLedger creates a Ledger. alerts and reorder may be nil: side effects
// are then skipped.
// Ledgerを作成（alerts・reorderはnil可、その場合は副作用をスキップ）
func NewLedger(store Store, alerts AlertChecker, reorder ReorderTrigger, clock Clock, logger *zap.Logger, config LedgerConfig) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	if config.MaxConflictRetries <= 0 {
		config.MaxConflictRetries = 3
	}
	return &Ledger{
		store:   store,
		alerts:  alerts,
		reorder: reorder,
		clock:   clock,
		logger:  logger,
		config:  config,
	}
}

// lockItem returns the stripe mutex serializing writers of an item.
// Two items may share a stripe, which only costs extra serialization.
// 品目の書き込みを直列化するストライプのミューテックスを返す。
// 別品目が同一ストライプに載る場合は直列化が増えるだけで正しさは変わらない
func (l *Ledger) lockItem(itemID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(itemID))
	return &l.locks[h.Sum32()%lockStripes]
}

// getUserFromContext コンテキストからユーザーIDを取得（なければsystem）
func getUserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value("user_id").(string); ok && user != "" {
		return user
	}
	return "system"
}

// CreateItem registers a new item after full validation
// バリデーション後に新規品目を登録
func (l *Ledger) CreateItem(ctx context.Context, item *Item) (*Item, error) {
	now := l.clock.Now()
	if item.ID == "" {
		item.ID = NewItemID()
	}
	if item.Currency == "" {
		item.Currency = l.config.DefaultCurrency
	}
	item.RecalculateDerived()
	item.Status = item.StatusAt(now)
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now
	item.UpdatedBy = getUserFromContext(ctx)

	if err := ValidateNewItem(item); err != nil {
		return nil, err
	}

	if err := l.store.CreateItem(ctx, item); err != nil {
		l.logger.Error("品目の登録に失敗しました",
			zap.String("item_code", item.ItemCode),
			zap.Error(err))
		return nil, err
	}

	l.logger.Info("品目を登録しました",
		zap.String("item_id", item.ID),
		zap.String("item_code", item.ItemCode),
		zap.String("category", string(item.Category)))

	return item, nil
}

// ApplyMovement applies one stock movement to an item: validate, compute
// the new record state, persist, then run post-commit side effects
// (alert check, auto-reorder). A ReorderCreationError is returned with a
// non-nil item: the stock mutation stands.
// 品目に在庫移動を1件適用する。バリデーション→状態計算→永続化→確定後の
// 副作用（アラートチェック・自動発注）の順で実行。ReorderCreationErrorは
// 品目と共に返される（在庫更新は取り消さない）
func (l *Ledger) ApplyMovement(ctx context.Context, itemID string, input MovementInput) (*Item, error) {
	if err := ValidateMovementInput(input); err != nil {
		return nil, err
	}

	lock := l.lockItem(itemID)
	lock.Lock()
	defer lock.Unlock()

	var item *Item
	var movement *Movement
	for attempt := 0; ; attempt++ {
		var err error
		item, movement, err = l.applyMovementOnce(ctx, itemID, input)
		if err == nil {
			break
		}
		if errors.Is(err, ErrVersionMismatch) && attempt < l.config.MaxConflictRetries {
			movementConflicts.Inc()
			l.logger.Warn("更新競合を検出しました。リトライします",
				zap.String("item_id", itemID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, ErrVersionMismatch) {
			return nil, ErrConflictRetryExceeded
		}
		return nil, err
	}

	movementsTotal.WithLabelValues(string(input.Type)).Inc()
	l.logger.Info("在庫移動を適用しました",
		zap.String("item_id", item.ID),
		zap.String("type", string(input.Type)),
		zap.String("quantity", movement.Quantity.String()),
		zap.String("balance_after", movement.BalanceAfter.String()),
		zap.String("status", string(item.Status)))

	// 確定後の副作用: アラートチェック（失敗は伝播しない）
	if l.alerts != nil {
		if _, err := l.alerts.CheckItem(ctx, item); err != nil {
			l.logger.Error("移動後のアラートチェックに失敗しました",
				zap.String("item_id", item.ID),
				zap.Error(err))
		}
	}

	// 確定後の副作用: 自動発注（作成失敗は品目と共に返す）
	if l.reorder != nil {
		if _, err := l.reorder.TriggerIfBelowReorderPoint(ctx, item); err != nil {
			l.logger.Error("自動発注のトリガーに失敗しました",
				zap.String("item_id", item.ID),
				zap.Error(err))
			return item, err
		}
	}

	return item, nil
}

// applyMovementOnce 読み取り→計算→バージョン付き更新を1回試行
func (l *Ledger) applyMovementOnce(ctx context.Context, itemID string, input MovementInput) (*Item, *Movement, error) {
	item, err := l.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}

	now := l.clock.Now()

	// 符号の決定: 入庫は正、出庫は負。ADJUSTMENTは符号なし入力を
	// そのまま加算（棚卸の減算はWASTE/負許可品目のADJUSTMENTで扱う）
	signed := input.Quantity
	if !input.Type.IsInbound() && input.Type != MovementTypeAdjustment {
		signed = input.Quantity.Neg()
	}

	newStock := item.CurrentStock.Add(signed)

	// 非負ガード: ADJUSTMENTと負在庫許可品目のみ例外
	if newStock.IsNegative() && input.Type != MovementTypeAdjustment && !item.AllowNegativeStock {
		return nil, nil, NewInsufficientStockError(item.ID, item.CurrentStock, input.Quantity)
	}

	// 加重平均単価: 単価付きの仕入のみ更新
	if input.Type == MovementTypePurchase && input.UnitCost != nil && newStock.IsPositive() {
		existingValue := item.CurrentStock.Mul(item.UnitCost)
		incomingValue := input.Quantity.Mul(*input.UnitCost)
		item.UnitCost = existingValue.Add(incomingValue).DivRound(newStock, 4)
	}

	item.CurrentStock = newStock
	item.RecalculateDerived()
	item.Status = item.StatusAt(now)
	item.LastMovementDate = &now
	item.UpdatedAt = now
	item.UpdatedBy = getUserFromContext(ctx)

	if err := ValidateItemInvariants(item); err != nil {
		return nil, nil, err
	}

	item.Version++
	if err := l.store.UpdateItem(ctx, item); err != nil {
		return nil, nil, err
	}

	movement := &Movement{
		ID:           NewMovementID(),
		ItemID:       item.ID,
		Type:         input.Type,
		Quantity:     signed,
		UnitCost:     input.UnitCost,
		BalanceAfter: item.CurrentStock,
		Reason:       input.Reason,
		Reference:    input.Reference,
		CreatedAt:    now,
		CreatedBy:    item.UpdatedBy,
	}

	// 移動記録の追記失敗は致命的にしない（在庫更新は確定済み）
	if err := l.store.AppendMovement(ctx, movement); err != nil {
		l.logger.Error("移動記録の追記に失敗しました",
			zap.String("item_id", item.ID),
			zap.String("movement_id", movement.ID),
			zap.Error(err))
	}

	return item, movement, nil
}

// Reserve earmarks quantity for upcoming use. Physical stock is untouched;
// only reserved and available change. The movement row records a negated
// quantity because availability decreases.
// 数量を予約する。物理在庫は変化せず、予約済み・利用可能のみ変化する。
// 利用可能数量が減るため移動記録の数量は負で記録する
func (l *Ledger) Reserve(ctx context.Context, itemID string, quantity decimal.Decimal, reference string) (*Item, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	lock := l.lockItem(itemID)
	lock.Lock()
	defer lock.Unlock()

	return l.mutateReservation(ctx, itemID, quantity, reference, MovementTypeReservation)
}

// Release frees previously reserved quantity
// 予約済み数量を解放する
func (l *Ledger) Release(ctx context.Context, itemID string, quantity decimal.Decimal, reference string) (*Item, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	lock := l.lockItem(itemID)
	lock.Lock()
	defer lock.Unlock()

	return l.mutateReservation(ctx, itemID, quantity, reference, MovementTypeRelease)
}

// mutateReservation 予約・解除の共通処理（バージョン競合リトライ付き）
func (l *Ledger) mutateReservation(ctx context.Context, itemID string, quantity decimal.Decimal, reference string, movementType MovementType) (*Item, error) {
	for attempt := 0; ; attempt++ {
		item, err := l.reservationOnce(ctx, itemID, quantity, reference, movementType)
		if err == nil {
			movementsTotal.WithLabelValues(string(movementType)).Inc()
			l.logger.Info("予約状態を更新しました",
				zap.String("item_id", item.ID),
				zap.String("type", string(movementType)),
				zap.String("quantity", quantity.String()),
				zap.String("reserved", item.ReservedStock.String()),
				zap.String("available", item.AvailableStock.String()))
			return item, nil
		}
		if errors.Is(err, ErrVersionMismatch) && attempt < l.config.MaxConflictRetries {
			movementConflicts.Inc()
			continue
		}
		if errors.Is(err, ErrVersionMismatch) {
			return nil, ErrConflictRetryExceeded
		}
		return nil, err
	}
}

// reservationOnce 予約・解除を1回試行
func (l *Ledger) reservationOnce(ctx context.Context, itemID string, quantity decimal.Decimal, reference string, movementType MovementType) (*Item, error) {
	item, err := l.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	recorded := quantity

	switch movementType {
	case MovementTypeReservation:
		if quantity.GreaterThan(item.AvailableStock) {
			return nil, NewInsufficientAvailableStockError(item.ID, item.AvailableStock, quantity)
		}
		item.ReservedStock = item.ReservedStock.Add(quantity)
		recorded = quantity.Neg()
	case MovementTypeRelease:
		if quantity.GreaterThan(item.ReservedStock) {
			return nil, NewOverReleaseError(item.ID, item.ReservedStock, quantity)
		}
		item.ReservedStock = item.ReservedStock.Sub(quantity)
	default:
		return nil, ErrInvalidMovementType
	}

	item.RecalculateDerived()
	item.UpdatedAt = now
	item.UpdatedBy = getUserFromContext(ctx)

	if err := ValidateItemInvariants(item); err != nil {
		return nil, err
	}

	item.Version++
	if err := l.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	movement := &Movement{
		ID:           NewMovementID(),
		ItemID:       item.ID,
		Type:         movementType,
		Quantity:     recorded,
		BalanceAfter: item.CurrentStock,
		Reference:    reference,
		CreatedAt:    now,
		CreatedBy:    item.UpdatedBy,
	}
	if err := l.store.AppendMovement(ctx, movement); err != nil {
		l.logger.Error("予約移動記録の追記に失敗しました",
			zap.String("item_id", item.ID),
			zap.Error(err))
	}

	return item, nil
}

// GetItem returns one item by ID
// IDで品目を1件取得
func (l *Ledger) GetItem(ctx context.Context, itemID string) (*Item, error) {
	return l.store.GetItem(ctx, itemID)
}

// GetItemByCode returns one item by its unique code
// 品目コードで品目を1件取得
func (l *Ledger) GetItemByCode(ctx context.Context, itemCode string) (*Item, error) {
	return l.store.GetItemByCode(ctx, itemCode)
}

// ListItems returns items matching the filter
// 絞り込み条件に一致する品目を取得
func (l *Ledger) ListItems(ctx context.Context, filter ItemFilter, offset, limit int) ([]*Item, error) {
	return l.store.ListItems(ctx, filter, offset, limit)
}

// GetHistory returns the most recent movements for an item
// 品目の直近の移動記録を取得
func (l *Ledger) GetHistory(ctx context.Context, itemID string, limit int) ([]*Movement, error) {
	return l.store.GetMovementHistory(ctx, itemID, limit)
}

// GetHistoryByDateRange returns movements within a time window
// 期間内の移動記録を取得
func (l *Ledger) GetHistoryByDateRange(ctx context.Context, itemID string, from, to time.Time) ([]*Movement, error) {
	return l.store.GetMovementsByDateRange(ctx, itemID, from, to)
}
