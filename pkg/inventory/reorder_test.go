package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// mockOrderStore PurchaseOrderStoreのモック
type mockOrderStore struct {
	mock.Mock
}

func (m *mockOrderStore) CreatePurchaseOrder(ctx context.Context, order *PurchaseOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderStore) GetPendingOrderByItem(ctx context.Context, itemID string) (*PurchaseOrder, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PurchaseOrder), args.Error(1)
}

func (m *mockOrderStore) ListPurchaseOrders(ctx context.Context, itemID string, limit int) ([]*PurchaseOrder, error) {
	args := m.Called(ctx, itemID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*PurchaseOrder), args.Error(1)
}

func newTestReorderEngine(orders PurchaseOrderStore, notifier NotificationSink) *ReorderEngine {
	return NewReorderEngine(orders, notifier, fixedClock{now: testNow}, zap.NewNop(), ReorderConfig{Enabled: true})
}

// newReorderItem 発注点を下回ったワクチン品目を作成
func newReorderItem() *Item {
	item := &Item{
		ID:               "item-010",
		ItemCode:         "VAC-FMD-001",
		Name:             "口蹄疫ワクチン",
		Category:         CategoryVaccines,
		CurrentStock:     decimal.NewFromInt(10),
		MinimumStock:     decimal.NewFromInt(15),
		MaximumStock:     decimal.NewFromInt(60),
		ReorderPoint:     decimal.NewFromInt(15),
		ReorderQuantity:  decimal.NewFromInt(30),
		UnitCost:         decimal.NewFromInt(1200),
		Currency:         "JPY",
		SupplierID:       "sup-001",
		SupplierMinOrder: decimal.NewFromInt(20),
		LeadTimeDays:     5,
		Version:          3,
	}
	item.RecalculateDerived()
	return item
}

// TestTrigger_CreatesOrder 発注点以下で発注書が作成される
func TestTrigger_CreatesOrder(t *testing.T) {
	orders := new(mockOrderStore)
	notifier := new(mockNotifier)
	engine := newTestReorderEngine(orders, notifier)
	item := newReorderItem()

	orders.On("GetPendingOrderByItem", mock.Anything, "item-010").Return(nil, nil)
	orders.On("CreatePurchaseOrder", mock.Anything, mock.AnythingOfType("*inventory.PurchaseOrder")).Return(nil)
	notifier.On("SendReorderNotice", mock.Anything, mock.AnythingOfType("*inventory.PurchaseOrder")).Return(nil)

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), item)

	assert.NoError(t, err)
	assert.NotNil(t, order)
	// max(発注数量30, 最大在庫60-現在庫10=50, 仕入先最小20) = 50
	assert.True(t, order.Quantity.Equal(decimal.NewFromInt(50)),
		"発注数量が期待値と一致しません: %s", order.Quantity.String())
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, "sup-001", order.SupplierID)
	assert.Equal(t, testNow.AddDate(0, 0, 5), order.ExpectedDelivery)
	notifier.AssertCalled(t, "SendReorderNotice", mock.Anything, mock.Anything)
}

// TestTrigger_QuantityFallsBackToMinimumTimesThree 最大在庫未設定時は最小在庫×3を目標にする
func TestTrigger_QuantityFallsBackToMinimumTimesThree(t *testing.T) {
	orders := new(mockOrderStore)
	engine := newTestReorderEngine(orders, nil)

	item := newReorderItem()
	item.MaximumStock = decimal.Zero
	item.ReorderQuantity = decimal.Zero
	item.SupplierMinOrder = decimal.Zero
	item.RecalculateDerived()

	orders.On("GetPendingOrderByItem", mock.Anything, "item-010").Return(nil, nil)
	orders.On("CreatePurchaseOrder", mock.Anything, mock.AnythingOfType("*inventory.PurchaseOrder")).Return(nil)

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), item)

	assert.NoError(t, err)
	// 最小在庫15×3 - 現在庫10 = 35
	assert.True(t, order.Quantity.Equal(decimal.NewFromInt(35)))
}

// TestTrigger_SupplierMinimumFloor 仕入先最小発注数量が下限になる
func TestTrigger_SupplierMinimumFloor(t *testing.T) {
	orders := new(mockOrderStore)
	engine := newTestReorderEngine(orders, nil)

	item := newReorderItem()
	item.CurrentStock = decimal.NewFromInt(14) // 差分46 < 仕入先最小100
	item.ReorderQuantity = decimal.NewFromInt(10)
	item.SupplierMinOrder = decimal.NewFromInt(100)
	item.RecalculateDerived()

	orders.On("GetPendingOrderByItem", mock.Anything, "item-010").Return(nil, nil)
	orders.On("CreatePurchaseOrder", mock.Anything, mock.AnythingOfType("*inventory.PurchaseOrder")).Return(nil)

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), item)

	assert.NoError(t, err)
	assert.True(t, order.Quantity.Equal(decimal.NewFromInt(100)))
}

// TestTrigger_SkipsWhenDisabled 機能フラグ無効時は何もしない
func TestTrigger_SkipsWhenDisabled(t *testing.T) {
	orders := new(mockOrderStore)
	engine := NewReorderEngine(orders, nil, fixedClock{now: testNow}, zap.NewNop(), ReorderConfig{Enabled: false})

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), newReorderItem())

	assert.NoError(t, err)
	assert.Nil(t, order)
	orders.AssertNotCalled(t, "GetPendingOrderByItem", mock.Anything, mock.Anything)
}

// TestTrigger_SkipsAboveReorderPoint 発注点より上では発注しない
func TestTrigger_SkipsAboveReorderPoint(t *testing.T) {
	orders := new(mockOrderStore)
	engine := newTestReorderEngine(orders, nil)

	item := newReorderItem()
	item.CurrentStock = decimal.NewFromInt(40)
	item.RecalculateDerived()

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), item)

	assert.NoError(t, err)
	assert.Nil(t, order)
	orders.AssertNotCalled(t, "CreatePurchaseOrder", mock.Anything, mock.Anything)
}

// TestTrigger_SkipsWhenPendingOrderExists 納品待ち発注があれば重複発注しない
func TestTrigger_SkipsWhenPendingOrderExists(t *testing.T) {
	orders := new(mockOrderStore)
	engine := newTestReorderEngine(orders, nil)

	pending := &PurchaseOrder{ID: "po-001", OrderNumber: "PO-20250601-item-010", Status: OrderStatusPending}
	orders.On("GetPendingOrderByItem", mock.Anything, "item-010").Return(pending, nil)

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), newReorderItem())

	assert.NoError(t, err)
	assert.Nil(t, order)
	orders.AssertNotCalled(t, "CreatePurchaseOrder", mock.Anything, mock.Anything)
}

// TestTrigger_CreationFailure 発注作成の失敗はReorderCreationErrorになる
func TestTrigger_CreationFailure(t *testing.T) {
	orders := new(mockOrderStore)
	engine := newTestReorderEngine(orders, nil)

	orders.On("GetPendingOrderByItem", mock.Anything, "item-010").Return(nil, nil)
	orders.On("CreatePurchaseOrder", mock.Anything, mock.AnythingOfType("*inventory.PurchaseOrder")).Return(assert.AnError)

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), newReorderItem())

	assert.Nil(t, order)
	var reorderErr *ReorderCreationError
	assert.ErrorAs(t, err, &reorderErr)
	assert.Equal(t, "item-010", reorderErr.ItemID)
}

// TestTrigger_NotifyFailureNotFatal 通知失敗でも発注は成功扱い
func TestTrigger_NotifyFailureNotFatal(t *testing.T) {
	orders := new(mockOrderStore)
	notifier := new(mockNotifier)
	engine := newTestReorderEngine(orders, notifier)

	orders.On("GetPendingOrderByItem", mock.Anything, "item-010").Return(nil, nil)
	orders.On("CreatePurchaseOrder", mock.Anything, mock.AnythingOfType("*inventory.PurchaseOrder")).Return(nil)
	notifier.On("SendReorderNotice", mock.Anything, mock.AnythingOfType("*inventory.PurchaseOrder")).Return(assert.AnError)

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), newReorderItem())

	assert.NoError(t, err)
	assert.NotNil(t, order)
}

// TestTrigger_SkipsWithoutReorderPoint 発注点未設定の品目は対象外
func TestTrigger_SkipsWithoutReorderPoint(t *testing.T) {
	orders := new(mockOrderStore)
	engine := newTestReorderEngine(orders, nil)

	item := newReorderItem()
	item.ReorderPoint = decimal.Zero

	order, err := engine.TriggerIfBelowReorderPoint(context.Background(), item)

	assert.NoError(t, err)
	assert.Nil(t, order)
}
