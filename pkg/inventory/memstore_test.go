package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// memStore 並行性テスト用のインメモリStore実装。
// 本物のストレージと同じくバージョン一致を検査する
type memStore struct {
	mu        sync.Mutex
	items     map[string]*Item
	movements []*Movement
	alerts    map[string]*Alert
}

func newMemStore() *memStore {
	return &memStore{
		items:  make(map[string]*Item),
		alerts: make(map[string]*Alert),
	}
}

func (s *memStore) CreateItem(_ context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[item.ID]; exists {
		return ErrDuplicateItem
	}
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *memStore) GetItem(_ context.Context, itemID string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	clone := *item
	return &clone, nil
}

func (s *memStore) GetItemByCode(_ context.Context, itemCode string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ItemCode == itemCode {
			clone := *item
			return &clone, nil
		}
	}
	return nil, ErrItemNotFound
}

func (s *memStore) UpdateItem(_ context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[item.ID]
	if !ok {
		return ErrItemNotFound
	}
	if stored.Version != item.Version-1 {
		return ErrVersionMismatch
	}
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *memStore) ListItems(_ context.Context, _ ItemFilter, offset, limit int) ([]*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*Item
	for _, item := range s.items {
		clone := *item
		items = append(items, &clone)
	}
	if offset >= len(items) {
		return nil, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], nil
}

func (s *memStore) AppendMovement(_ context.Context, movement *Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *movement
	s.movements = append(s.movements, &clone)
	return nil
}

func (s *memStore) GetMovementHistory(_ context.Context, itemID string, limit int) ([]*Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var movements []*Movement
	for i := len(s.movements) - 1; i >= 0 && len(movements) < limit; i-- {
		if s.movements[i].ItemID == itemID {
			clone := *s.movements[i]
			movements = append(movements, &clone)
		}
	}
	return movements, nil
}

func (s *memStore) GetMovementsByDateRange(_ context.Context, itemID string, from, to time.Time) ([]*Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var movements []*Movement
	for _, m := range s.movements {
		if m.ItemID == itemID && !m.CreatedAt.Before(from) && !m.CreatedAt.After(to) {
			clone := *m
			movements = append(movements, &clone)
		}
	}
	return movements, nil
}

func (s *memStore) CreateAlert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *alert
	s.alerts[alert.ID] = &clone
	return nil
}

func (s *memStore) UpdateAlert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.ID]; !ok {
		return ErrAlertNotFound
	}
	clone := *alert
	s.alerts[alert.ID] = &clone
	return nil
}

func (s *memStore) GetActiveAlertsByItem(_ context.Context, itemID string) ([]*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var alerts []*Alert
	for _, a := range s.alerts {
		if a.ItemID == itemID && a.IsActive {
			clone := *a
			alerts = append(alerts, &clone)
		}
	}
	return alerts, nil
}

func (s *memStore) ListActiveAlerts(_ context.Context, limit int) ([]*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var alerts []*Alert
	for _, a := range s.alerts {
		if a.IsActive && len(alerts) < limit {
			clone := *a
			alerts = append(alerts, &clone)
		}
	}
	return alerts, nil
}

func (s *memStore) ResolveAlert(_ context.Context, alertID string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok || !alert.IsActive {
		return ErrAlertNotFound
	}
	alert.IsActive = false
	alert.ResolvedAt = &resolvedAt
	return nil
}

func (s *memStore) Ping(_ context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

// seedMemItem インメモリストアに品目を登録
func seedMemItem(t *testing.T, store *memStore) *Item {
	t.Helper()
	item := newTestItem()
	assert.NoError(t, store.CreateItem(context.Background(), item))
	return item
}

// TestConcurrentReserves_ExactlyOneSucceeds 利用可能数量を合計で超える
// 2件の同時予約は、ちょうど1件だけ成功する
func TestConcurrentReserves_ExactlyOneSucceeds(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, nil, nil, fixedClock{now: testNow}, zap.NewNop(), DefaultLedgerConfig())
	seedMemItem(t, store) // 在庫100、予約0

	qty := decimal.NewFromInt(60) // 2件で120 > 100

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ledger.Reserve(context.Background(), "item-001", qty, "concurrent")
		}(i)
	}
	wg.Wait()

	var successes, failures int
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			var availableErr *InsufficientAvailableStockError
			assert.ErrorAs(t, err, &availableErr)
			failures++
		}
	}
	assert.Equal(t, 1, successes, "成功はちょうど1件")
	assert.Equal(t, 1, failures)

	// 最終状態は不変条件を満たす
	final, err := store.GetItem(context.Background(), "item-001")
	assert.NoError(t, err)
	assert.True(t, final.ReservedStock.Equal(decimal.NewFromInt(60)))
	assert.True(t, final.AvailableStock.Equal(decimal.NewFromInt(40)))
	assert.NoError(t, ValidateItemInvariants(final))
}

// TestApplyMovement_RejectsSellingReservedStock 予約済み数量に食い込む出庫は
// 拒否され、書き込みは一切行われない
func TestApplyMovement_RejectsSellingReservedStock(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, nil, nil, fixedClock{now: testNow}, zap.NewNop(), DefaultLedgerConfig())
	seedMemItem(t, store) // 在庫100、負在庫不可

	_, err := ledger.Reserve(context.Background(), "item-001", decimal.NewFromInt(60), "winter-stock")
	assert.NoError(t, err)

	// 全量出庫: 物理在庫は0になるが予約60が残るため不変条件違反
	result, err := ledger.ApplyMovement(context.Background(), "item-001", MovementInput{
		Type:     MovementTypeSale,
		Quantity: decimal.NewFromInt(100),
	})
	assert.Nil(t, result)
	var invariantErr *InvariantViolationError
	assert.ErrorAs(t, err, &invariantErr)
	assert.Equal(t, "reserved_within_stock", invariantErr.Rule)

	// 部分出庫でも予約に食い込めば拒否
	_, err = ledger.ApplyMovement(context.Background(), "item-001", MovementInput{
		Type:     MovementTypeSale,
		Quantity: decimal.NewFromInt(50),
	})
	assert.ErrorAs(t, err, &invariantErr)

	// 状態は予約直後のまま: 在庫100、予約60、利用可能40
	item, err := store.GetItem(context.Background(), "item-001")
	assert.NoError(t, err)
	assert.True(t, item.CurrentStock.Equal(decimal.NewFromInt(100)))
	assert.True(t, item.ReservedStock.Equal(decimal.NewFromInt(60)))
	assert.True(t, item.AvailableStock.Equal(decimal.NewFromInt(40)))
	assert.NoError(t, ValidateItemInvariants(item))

	// 記録されている移動は予約の1件のみ
	movements, err := store.GetMovementHistory(context.Background(), "item-001", 10)
	assert.NoError(t, err)
	assert.Len(t, movements, 1)
	assert.Equal(t, MovementTypeReservation, movements[0].Type)

	// 予約の範囲内に収まる出庫は受け付けられる
	result, err = ledger.ApplyMovement(context.Background(), "item-001", MovementInput{
		Type:     MovementTypeSale,
		Quantity: decimal.NewFromInt(40),
	})
	assert.NoError(t, err)
	assert.True(t, result.CurrentStock.Equal(decimal.NewFromInt(60)))
	assert.True(t, result.AvailableStock.Equal(decimal.Zero))
}

// TestConcurrentMovements_AllApplied 同一品目への並行出庫は直列化され全件反映される
func TestConcurrentMovements_AllApplied(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, nil, nil, fixedClock{now: testNow}, zap.NewNop(), DefaultLedgerConfig())
	seedMemItem(t, store)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.ApplyMovement(context.Background(), "item-001", MovementInput{
				Type:     MovementTypeUse,
				Quantity: decimal.NewFromInt(5),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := store.GetItem(context.Background(), "item-001")
	assert.NoError(t, err)
	assert.True(t, final.CurrentStock.Equal(decimal.NewFromInt(50)), "100 - 10×5 = 50")
	assert.Equal(t, int64(11), final.Version)

	// 移動記録も全件残っている
	movements, err := store.GetMovementHistory(context.Background(), "item-001", 100)
	assert.NoError(t, err)
	assert.Len(t, movements, workers)
}

// TestLedgerEndToEnd_AlertLifecycle 実ストア相当で発火→解消の往復を確認する
func TestLedgerEndToEnd_AlertLifecycle(t *testing.T) {
	store := newMemStore()
	engine := newTestAlertEngine(store, nil)
	ledger := NewLedger(store, engine, nil, fixedClock{now: testNow}, zap.NewNop(), DefaultLedgerConfig())
	seedMemItem(t, store)

	// 在庫を最小在庫以下まで減らす → 低在庫アラート発火
	item, err := ledger.ApplyMovement(context.Background(), "item-001", MovementInput{
		Type:     MovementTypeUse,
		Quantity: decimal.NewFromInt(85),
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusLowStock, item.Status)

	alerts, err := store.GetActiveAlertsByItem(context.Background(), "item-001")
	assert.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, AlertTypeLowStock, alerts[0].Type)

	// 仕入で回復 → アラート自動解決
	cost := decimal.NewFromInt(10)
	item, err = ledger.ApplyMovement(context.Background(), "item-001", MovementInput{
		Type:     MovementTypePurchase,
		Quantity: decimal.NewFromInt(50),
		UnitCost: &cost,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusInStock, item.Status)

	alerts, err = store.GetActiveAlertsByItem(context.Background(), "item-001")
	assert.NoError(t, err)
	assert.Empty(t, alerts)
}
