// Package storage provides the PostgreSQL persistence layer for the
// stock ledger.
// 在庫元帳のPostgreSQL永続化層を提供
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/makibaGoStock/pkg/inventory"
)

// PostgresStore implements inventory.Store and inventory.PurchaseOrderStore
// backed by PostgreSQL.
// PostgreSQLを用いたinventory.Store・inventory.PurchaseOrderStoreの実装
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// インターフェース実装の確認
var (
	_ inventory.Store              = (*PostgresStore)(nil)
	_ inventory.PurchaseOrderStore = (*PostgresStore)(nil)
)

// NewPostgresStore opens a connection pool and verifies connectivity
// 接続プールを作成し疎通を確認
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続のオープンに失敗しました: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	logger.Info("データベース接続が確立されました")

	return &PostgresStore{db: db, logger: logger}, nil
}

// itemColumns 品目テーブルの選択カラム
const itemColumns = `
	id, item_code, name, category,
	current_stock, reserved_stock, available_stock,
	minimum_stock, maximum_stock, reorder_point, reorder_quantity,
	unit_cost, total_value, currency,
	expiration_date, manufacturing_date, last_movement_date,
	status, track_expiration, allow_negative_stock, is_critical,
	supplier_id, supplier_min_order, lead_time_days,
	version, created_at, updated_at, updated_by`

// CreateItem inserts a new item row
// 品目を新規登録
func (s *PostgresStore) CreateItem(ctx context.Context, item *inventory.Item) error {
	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`

	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.ItemCode, item.Name, item.Category,
		item.CurrentStock, item.ReservedStock, item.AvailableStock,
		item.MinimumStock, item.MaximumStock, item.ReorderPoint, item.ReorderQuantity,
		item.UnitCost, item.TotalValue, item.Currency,
		item.ExpirationDate, item.ManufacturingDate, item.LastMovementDate,
		item.Status, item.TrackExpiration, item.AllowNegativeStock, item.IsCritical,
		item.SupplierID, item.SupplierMinOrder, item.LeadTimeDays,
		item.Version, item.CreatedAt, item.UpdatedAt, item.UpdatedBy,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return inventory.ErrDuplicateItem
		}
		return inventory.NewStorageError("CreateItem", err)
	}

	return nil
}

// GetItem retrieves one item by ID
// IDで品目を1件取得
func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return s.scanItem(s.db.QueryRowContext(ctx, query, itemID))
}

// GetItemByCode retrieves one item by its unique code
// 品目コードで品目を1件取得
func (s *PostgresStore) GetItemByCode(ctx context.Context, itemCode string) (*inventory.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE item_code = $1`
	return s.scanItem(s.db.QueryRowContext(ctx, query, itemCode))
}

// scanItem 1行を品目にスキャン
func (s *PostgresStore) scanItem(row *sql.Row) (*inventory.Item, error) {
	item := &inventory.Item{}
	err := row.Scan(
		&item.ID, &item.ItemCode, &item.Name, &item.Category,
		&item.CurrentStock, &item.ReservedStock, &item.AvailableStock,
		&item.MinimumStock, &item.MaximumStock, &item.ReorderPoint, &item.ReorderQuantity,
		&item.UnitCost, &item.TotalValue, &item.Currency,
		&item.ExpirationDate, &item.ManufacturingDate, &item.LastMovementDate,
		&item.Status, &item.TrackExpiration, &item.AllowNegativeStock, &item.IsCritical,
		&item.SupplierID, &item.SupplierMinOrder, &item.LeadTimeDays,
		&item.Version, &item.CreatedAt, &item.UpdatedAt, &item.UpdatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, inventory.ErrItemNotFound
	}
	if err != nil {
		return nil, inventory.NewStorageError("GetItem", err)
	}
	return item, nil
}

// UpdateItem persists an item with an optimistic version check. The row is
// updated only when the stored version equals item.Version-1; a mismatch
// returns ErrVersionMismatch.
// 楽観的バージョンチェック付きで品目を更新する。保存済みバージョンが
// item.Version-1と一致する場合のみ更新（不一致はErrVersionMismatch）
func (s *PostgresStore) UpdateItem(ctx context.Context, item *inventory.Item) error {
	query := `
		UPDATE items SET
			name = $2, category = $3,
			current_stock = $4, reserved_stock = $5, available_stock = $6,
			minimum_stock = $7, maximum_stock = $8, reorder_point = $9, reorder_quantity = $10,
			unit_cost = $11, total_value = $12, currency = $13,
			expiration_date = $14, manufacturing_date = $15, last_movement_date = $16,
			status = $17, track_expiration = $18, allow_negative_stock = $19, is_critical = $20,
			supplier_id = $21, supplier_min_order = $22, lead_time_days = $23,
			version = $24, updated_at = $25, updated_by = $26
		WHERE id = $1 AND version = $27`

	result, err := s.db.ExecContext(ctx, query,
		item.ID, item.Name, item.Category,
		item.CurrentStock, item.ReservedStock, item.AvailableStock,
		item.MinimumStock, item.MaximumStock, item.ReorderPoint, item.ReorderQuantity,
		item.UnitCost, item.TotalValue, item.Currency,
		item.ExpirationDate, item.ManufacturingDate, item.LastMovementDate,
		item.Status, item.TrackExpiration, item.AllowNegativeStock, item.IsCritical,
		item.SupplierID, item.SupplierMinOrder, item.LeadTimeDays,
		item.Version, item.UpdatedAt, item.UpdatedBy,
		item.Version-1,
	)
	if err != nil {
		return inventory.NewStorageError("UpdateItem", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return inventory.NewStorageError("UpdateItem", err)
	}
	if rowsAffected == 0 {
		// 行が存在しないかバージョン不一致。存在確認で切り分ける
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM items WHERE id = $1)", item.ID,
		).Scan(&exists); err != nil {
			return inventory.NewStorageError("UpdateItem", err)
		}
		if !exists {
			return inventory.ErrItemNotFound
		}
		return inventory.ErrVersionMismatch
	}

	return nil
}

// ListItems retrieves items matching the filter with pagination
// 絞り込み条件に一致する品目をページングで取得
func (s *PostgresStore) ListItems(ctx context.Context, filter inventory.ItemFilter, offset, limit int) ([]*inventory.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argPos)
		args = append(args, filter.Category)
		argPos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.OnlyCritical {
		query += " AND is_critical = TRUE"
	}

	query += fmt.Sprintf(" ORDER BY item_code OFFSET $%d LIMIT $%d", argPos, argPos+1)
	args = append(args, offset, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, inventory.NewStorageError("ListItems", err)
	}
	defer rows.Close()

	var items []*inventory.Item
	for rows.Next() {
		item := &inventory.Item{}
		if err := rows.Scan(
			&item.ID, &item.ItemCode, &item.Name, &item.Category,
			&item.CurrentStock, &item.ReservedStock, &item.AvailableStock,
			&item.MinimumStock, &item.MaximumStock, &item.ReorderPoint, &item.ReorderQuantity,
			&item.UnitCost, &item.TotalValue, &item.Currency,
			&item.ExpirationDate, &item.ManufacturingDate, &item.LastMovementDate,
			&item.Status, &item.TrackExpiration, &item.AllowNegativeStock, &item.IsCritical,
			&item.SupplierID, &item.SupplierMinOrder, &item.LeadTimeDays,
			&item.Version, &item.CreatedAt, &item.UpdatedAt, &item.UpdatedBy,
		); err != nil {
			return nil, inventory.NewStorageError("ListItems", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// AppendMovement inserts one movement row. Movement rows are append-only:
// there is no update or delete path.
// 移動記録を1件追記する（追記専用で更新・削除の経路は存在しない）
func (s *PostgresStore) AppendMovement(ctx context.Context, movement *inventory.Movement) error {
	query := `
		INSERT INTO stock_movements (
			id, item_id, type, quantity, unit_cost, balance_after,
			reason, reference, created_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	unitCost := decimal.NullDecimal{}
	if movement.UnitCost != nil {
		unitCost = decimal.NullDecimal{Decimal: *movement.UnitCost, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		movement.ID, movement.ItemID, movement.Type, movement.Quantity,
		unitCost, movement.BalanceAfter,
		movement.Reason, movement.Reference, movement.CreatedAt, movement.CreatedBy,
	)
	if err != nil {
		return inventory.NewStorageError("AppendMovement", err)
	}

	return nil
}

// GetMovementHistory retrieves the most recent movements for an item
// 品目の直近の移動記録を新しい順に取得
func (s *PostgresStore) GetMovementHistory(ctx context.Context, itemID string, limit int) ([]*inventory.Movement, error) {
	query := `
		SELECT id, item_id, type, quantity, unit_cost, balance_after,
			reason, reference, created_at, created_by
		FROM stock_movements
		WHERE item_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, itemID, limit)
	if err != nil {
		return nil, inventory.NewStorageError("GetMovementHistory", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

// GetMovementsByDateRange retrieves movements within a time window
// 期間内の移動記録を古い順に取得
func (s *PostgresStore) GetMovementsByDateRange(ctx context.Context, itemID string, from, to time.Time) ([]*inventory.Movement, error) {
	query := `
		SELECT id, item_id, type, quantity, unit_cost, balance_after,
			reason, reference, created_at, created_by
		FROM stock_movements
		WHERE item_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, itemID, from, to)
	if err != nil {
		return nil, inventory.NewStorageError("GetMovementsByDateRange", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

// scanMovements 結果セットを移動記録にスキャン
func scanMovements(rows *sql.Rows) ([]*inventory.Movement, error) {
	var movements []*inventory.Movement
	for rows.Next() {
		movement := &inventory.Movement{}
		var unitCost decimal.NullDecimal
		if err := rows.Scan(
			&movement.ID, &movement.ItemID, &movement.Type, &movement.Quantity,
			&unitCost, &movement.BalanceAfter,
			&movement.Reason, &movement.Reference, &movement.CreatedAt, &movement.CreatedBy,
		); err != nil {
			return nil, inventory.NewStorageError("scanMovements", err)
		}
		if unitCost.Valid {
			cost := unitCost.Decimal
			movement.UnitCost = &cost
		}
		movements = append(movements, movement)
	}
	return movements, rows.Err()
}

// CreateAlert inserts a new alert row
// アラートを新規登録
func (s *PostgresStore) CreateAlert(ctx context.Context, alert *inventory.Alert) error {
	query := `
		INSERT INTO stock_alerts (
			id, item_id, type, priority, current_value, threshold_value,
			message, auto_resolvable, notified_at, is_active, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.ItemID, alert.Type, alert.Priority,
		alert.CurrentValue, alert.ThresholdValue,
		alert.Message, alert.AutoResolvable, alert.NotifiedAt,
		alert.IsActive, alert.CreatedAt, alert.ResolvedAt,
	)
	if err != nil {
		return inventory.NewStorageError("CreateAlert", err)
	}

	return nil
}

// UpdateAlert updates an existing alert row
// 既存アラートを更新
func (s *PostgresStore) UpdateAlert(ctx context.Context, alert *inventory.Alert) error {
	query := `
		UPDATE stock_alerts SET
			priority = $2, current_value = $3, message = $4,
			notified_at = $5, is_active = $6, resolved_at = $7
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.Priority, alert.CurrentValue, alert.Message,
		alert.NotifiedAt, alert.IsActive, alert.ResolvedAt,
	)
	if err != nil {
		return inventory.NewStorageError("UpdateAlert", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return inventory.NewStorageError("UpdateAlert", err)
	}
	if rowsAffected == 0 {
		return inventory.ErrAlertNotFound
	}

	return nil
}

// alertColumns アラートテーブルの選択カラム
const alertColumns = `
	id, item_id, type, priority, current_value, threshold_value,
	message, auto_resolvable, notified_at, is_active, created_at, resolved_at`

// GetActiveAlertsByItem retrieves the active alerts for one item
// 品目のアクティブなアラートを取得
func (s *PostgresStore) GetActiveAlertsByItem(ctx context.Context, itemID string) ([]*inventory.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM stock_alerts WHERE item_id = $1 AND is_active = TRUE ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, inventory.NewStorageError("GetActiveAlertsByItem", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// ListActiveAlerts retrieves active alerts across all items
// 全品目のアクティブなアラートを取得
func (s *PostgresStore) ListActiveAlerts(ctx context.Context, limit int) ([]*inventory.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM stock_alerts WHERE is_active = TRUE ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, inventory.NewStorageError("ListActiveAlerts", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// scanAlerts 結果セットをアラートにスキャン
func scanAlerts(rows *sql.Rows) ([]*inventory.Alert, error) {
	var alerts []*inventory.Alert
	for rows.Next() {
		alert := &inventory.Alert{}
		if err := rows.Scan(
			&alert.ID, &alert.ItemID, &alert.Type, &alert.Priority,
			&alert.CurrentValue, &alert.ThresholdValue,
			&alert.Message, &alert.AutoResolvable, &alert.NotifiedAt,
			&alert.IsActive, &alert.CreatedAt, &alert.ResolvedAt,
		); err != nil {
			return nil, inventory.NewStorageError("scanAlerts", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// ResolveAlert marks an alert resolved and inactive
// アラートを解決済み・非アクティブにする
func (s *PostgresStore) ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error {
	query := `
		UPDATE stock_alerts SET is_active = FALSE, resolved_at = $2
		WHERE id = $1 AND is_active = TRUE`

	result, err := s.db.ExecContext(ctx, query, alertID, resolvedAt)
	if err != nil {
		return inventory.NewStorageError("ResolveAlert", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return inventory.NewStorageError("ResolveAlert", err)
	}
	if rowsAffected == 0 {
		return inventory.ErrAlertNotFound
	}

	return nil
}

// CreatePurchaseOrder inserts a new purchase order row
// 発注書を新規登録
func (s *PostgresStore) CreatePurchaseOrder(ctx context.Context, order *inventory.PurchaseOrder) error {
	query := `
		INSERT INTO purchase_orders (
			id, order_number, item_id, supplier_id, quantity, unit_cost,
			expected_delivery, status, reference, created_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		order.ID, order.OrderNumber, order.ItemID, order.SupplierID,
		order.Quantity, order.UnitCost,
		order.ExpectedDelivery, order.Status, order.Reference,
		order.CreatedAt, order.CreatedBy,
	)
	if err != nil {
		return inventory.NewStorageError("CreatePurchaseOrder", err)
	}

	return nil
}

// orderColumns 発注テーブルの選択カラム
const orderColumns = `
	id, order_number, item_id, supplier_id, quantity, unit_cost,
	expected_delivery, status, reference, created_at, created_by`

// GetPendingOrderByItem returns the pending order for an item, or nil
// when there is none
// 品目の納品待ち発注を取得（存在しない場合はnil）
func (s *PostgresStore) GetPendingOrderByItem(ctx context.Context, itemID string) (*inventory.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders
		WHERE item_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC LIMIT 1`

	order := &inventory.PurchaseOrder{}
	err := s.db.QueryRowContext(ctx, query, itemID).Scan(
		&order.ID, &order.OrderNumber, &order.ItemID, &order.SupplierID,
		&order.Quantity, &order.UnitCost,
		&order.ExpectedDelivery, &order.Status, &order.Reference,
		&order.CreatedAt, &order.CreatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, inventory.NewStorageError("GetPendingOrderByItem", err)
	}

	return order, nil
}

// ListPurchaseOrders retrieves purchase orders, optionally filtered by item
// 発注書を取得（品目IDで絞り込み可能）
func (s *PostgresStore) ListPurchaseOrders(ctx context.Context, itemID string, limit int) ([]*inventory.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders`
	args := []interface{}{}
	if itemID != "" {
		query += ` WHERE item_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, itemID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, inventory.NewStorageError("ListPurchaseOrders", err)
	}
	defer rows.Close()

	var orders []*inventory.PurchaseOrder
	for rows.Next() {
		order := &inventory.PurchaseOrder{}
		if err := rows.Scan(
			&order.ID, &order.OrderNumber, &order.ItemID, &order.SupplierID,
			&order.Quantity, &order.UnitCost,
			&order.ExpectedDelivery, &order.Status, &order.Reference,
			&order.CreatedAt, &order.CreatedBy,
		); err != nil {
			return nil, inventory.NewStorageError("ListPurchaseOrders", err)
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// Ping verifies database connectivity
// データベース疎通を確認
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
// 接続プールをクローズ
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
